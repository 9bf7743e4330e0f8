package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// RefundServiceDeps bundles collaborators for the refund workflow.
type RefundServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger Logger
}

type refundService struct {
	orders repositories.OrderRepository
	now    func() time.Time
	logger Logger
}

// NewRefundService constructs the per-item refund workflow.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &refundService{orders: deps.Orders, now: utcClock(deps.Clock), logger: logger}, nil
}

// RequestRefund moves a shipped or delivered item to return_requested.
func (s *refundService) RequestRefund(ctx context.Context, actor Actor, orderID, itemID string) (domain.Order, error) {
	order, err := loadOwnedOrder(ctx, s.orders, actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	idx := order.FindItem(strings.TrimSpace(itemID))
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	item := order.Items[idx]
	if !item.Refundable() {
		return domain.Order{}, fmt.Errorf("%w: item %s is %s", ErrItemNotRefundable, item.ID, item.ItemStatus)
	}
	order.Items[idx].ItemStatus = domain.ItemStatusReturnRequested
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	s.logger(ctx, "refund.requested", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"itemId":      item.ID,
		"userId":      actor.UserID,
	})
	return order, nil
}

func (s *refundService) RefundableItems(ctx context.Context, actor Actor, orderID string) ([]domain.OrderItem, error) {
	order, err := loadOwnedOrder(ctx, s.orders, actor, orderID)
	if err != nil {
		return nil, err
	}
	return order.RefundableItems(), nil
}

func loadOwnedOrder(ctx context.Context, orders repositories.OrderRepository, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if err := authorizeOrder(actor, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func authorizeOrder(actor Actor, order domain.Order) error {
	if actor.Admin || (actor.UserID != "" && actor.UserID == order.UserID) {
		return nil
	}
	return ErrForbidden
}
