package memory

import (
	"context"

	"github.com/tienda-online/api/internal/repositories"
)

// Registry bundles the in-memory repositories behind repositories.Registry.
type Registry struct {
	orders  *OrderRepository
	coupons *CouponRepository
	catalog *CatalogRepository
	health  repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry. Seed it through Catalog and CouponStore.
func NewRegistry() (*Registry, error) {
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	if err != nil {
		return nil, err
	}
	return &Registry{
		orders:  NewOrderRepository(),
		coupons: NewCouponRepository(),
		catalog: NewCatalogRepository(),
		health:  health,
	}, nil
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository   { return r.coupons }
func (r *Registry) Products() repositories.ProductRepository { return r.catalog }
func (r *Registry) Stock() repositories.StockRepository      { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository       { return r.catalog }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// Catalog exposes the concrete catalog for seeding products and carts.
func (r *Registry) Catalog() *CatalogRepository { return r.catalog }

// CouponStore exposes the concrete coupon repository.
func (r *Registry) CouponStore() *CouponRepository { return r.coupons }
