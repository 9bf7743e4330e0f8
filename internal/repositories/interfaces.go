package repositories

import (
	"context"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Coupons() CouponRepository
	Products() ProductRepository
	Stock() StockRepository
	Carts() CartRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows administrative order listings.
type OrderListFilter struct {
	Status              domain.OrderStatus
	NeedsReconciliation bool
	Limit               int
}

// OrderRepository persists orders. Create must fail with a conflict when the order number is taken.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	NumberExists(ctx context.Context, orderNumber string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// CouponRepository stores single-use coupons keyed by normalised code.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	Create(ctx context.Context, coupon domain.Coupon) error
	List(ctx context.Context) ([]domain.Coupon, error)
	// MarkUsed flips used=false to true atomically for orderNumber. Repeating the claim for the
	// same order succeeds; a coupon held by any other order yields a conflict.
	MarkUsed(ctx context.Context, code, userID, orderNumber string, usedAt time.Time) (domain.Coupon, error)
	// ReleaseClaim undoes a claim held by orderNumber.
	ReleaseClaim(ctx context.Context, code, orderNumber string) error
}

// ProductRepository reads catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// StockRepository mutates the per-product stock counters atomically.
type StockRepository interface {
	ReserveAndConfirmSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
	ReleaseReservation(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
	ConfirmReservedSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
}

// CartRepository reads and clears user carts.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// HealthRepository aggregates dependency probes for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
