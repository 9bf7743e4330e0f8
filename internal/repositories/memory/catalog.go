package memory

import (
	"context"
	"sync"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// CatalogRepository holds products, their stock counters and carts.
// It implements ProductRepository, StockRepository and CartRepository.
type CatalogRepository struct {
	mu       sync.Mutex
	products map[string]domain.Product
	carts    map[string]domain.Cart
}

var (
	_ repositories.ProductRepository = (*CatalogRepository)(nil)
	_ repositories.StockRepository   = (*CatalogRepository)(nil)
	_ repositories.CartRepository    = (*CatalogRepository)(nil)
)

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
	}
}

// PutProduct inserts or replaces a product.
func (r *CatalogRepository) PutProduct(p domain.Product) {
	r.mu.Lock()
	r.products[p.ID] = p
	r.mu.Unlock()
}

// PutCart inserts or replaces a cart.
func (r *CatalogRepository) PutCart(c domain.Cart) {
	r.mu.Lock()
	c.Items = append([]domain.CartItem(nil), c.Items...)
	r.carts[c.UserID] = c
	r.mu.Unlock()
}

func (r *CatalogRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NotFound("products.find", "product %s not found", productID)
	}
	return p, nil
}

func (r *CatalogRepository) ReserveAndConfirmSale(_ context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.mutate("stock.reserve_and_confirm", productID, qty, func(s *domain.ProductStock) bool {
		if s.Stock < qty {
			return false
		}
		s.Stock -= qty
		s.SoldStock += qty
		return true
	})
}

func (r *CatalogRepository) ReleaseReservation(_ context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.mutate("stock.release", productID, qty, func(s *domain.ProductStock) bool {
		if s.ReservedStock < qty {
			return false
		}
		s.ReservedStock -= qty
		s.Stock += qty
		return true
	})
}

func (r *CatalogRepository) ConfirmReservedSale(_ context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.mutate("stock.confirm", productID, qty, func(s *domain.ProductStock) bool {
		if s.ReservedStock < qty {
			return false
		}
		s.ReservedStock -= qty
		s.SoldStock += qty
		return true
	})
}

func (r *CatalogRepository) mutate(op, productID string, qty int, apply func(*domain.ProductStock) bool) (domain.ProductStock, error) {
	if qty <= 0 {
		return domain.ProductStock{}, repositories.NewLedgerError(op, repositories.LedgerErrorInvalidQuantity, "quantity must be positive", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return domain.ProductStock{}, repositories.NewLedgerError(op, repositories.LedgerErrorProductNotFound, "product "+productID+" not found", nil)
	}
	stock := p.Stock
	if !apply(&stock) {
		return p.Stock, repositories.NewLedgerError(op, repositories.LedgerErrorInsufficientStock, "insufficient stock for "+productID, nil)
	}
	p.Stock = stock
	r.products[productID] = p
	return stock, nil
}

func (r *CatalogRepository) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return c, nil
}

func (r *CatalogRepository) ClearCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.carts[userID]
	c.UserID = userID
	c.Items = nil
	r.carts[userID] = c
	return nil
}
