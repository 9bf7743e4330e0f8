// Package memory provides in-process repository implementations used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// OrderRepository keeps orders in a map with a unique order-number index.
type OrderRepository struct {
	mu       sync.RWMutex
	byID     map[string]domain.Order
	byNumber map[string]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:     make(map[string]domain.Order),
		byNumber: make(map[string]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byNumber[order.OrderNumber]; taken {
		return domain.Order{}, repositories.Conflict("orders.create", "order number %s already exists", order.OrderNumber)
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = ulid.Make().String()
	}
	if _, taken := r.byID[order.ID]; taken {
		return domain.Order{}, repositories.Conflict("orders.create", "order %s already exists", order.ID)
	}
	stored := cloneOrder(order)
	r.byID[order.ID] = stored
	r.byNumber[order.OrderNumber] = order.ID
	return cloneOrder(stored), nil
}

func (r *OrderRepository) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[order.ID]; !ok {
		return repositories.NotFound("orders.update", "order %s not found", order.ID)
	}
	r.byID[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.find", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) FindByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[orderNumber]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.find_by_number", "order number %s not found", orderNumber)
	}
	return cloneOrder(r.byID[id]), nil
}

func (r *OrderRepository) NumberExists(_ context.Context, orderNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byNumber[orderNumber]
	return ok, nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.UserID == userID }, limit), nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool {
		if filter.NeedsReconciliation && !o.Metadata.NeedsReconciliation {
			return false
		}
		return filter.Status == "" || o.Status == filter.Status
	}, filter.Limit), nil
}

// Len returns the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *OrderRepository) list(keep func(domain.Order) bool, limit int) []domain.Order {
	r.mu.RLock()
	out := make([]domain.Order, 0)
	for _, order := range r.byID {
		if keep(order) {
			out = append(out, cloneOrder(order))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.Metadata.ReconciliationNotes = append([]string(nil), o.Metadata.ReconciliationNotes...)
	return o
}
