package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/repositories"
)

// Registry wires every Firestore repository over one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	coupons  *CouponRepository
	catalog  *CatalogRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. extraChecks are appended to the Firestore readiness probe.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		orders:   orders,
		coupons:  coupons,
		catalog:  catalog,
		health:   health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository   { return r.coupons }
func (r *Registry) Products() repositories.ProductRepository { return r.catalog }
func (r *Registry) Stock() repositories.StockRepository      { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository       { return r.catalog }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }
