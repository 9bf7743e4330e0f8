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

const (
	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

// OrderServiceDeps bundles collaborators for order queries and transitions.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger Logger
}

type orderService struct {
	orders repositories.OrderRepository
	now    func() time.Time
	logger Logger
}

// NewOrderService constructs the order query service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &orderService{orders: deps.Orders, now: utcClock(deps.Clock), logger: logger}, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	return loadOwnedOrder(ctx, s.orders, actor, orderID)
}

func (s *orderService) GetByNumber(ctx context.Context, actor Actor, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrValidation)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
		}
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderNumber, err)
	}
	if err := authorizeOrder(actor, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) ListByUser(ctx context.Context, actor Actor, userID string, limit int) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !actor.Admin && actor.UserID != userID {
		return nil, ErrForbidden
	}
	return s.orders.ListByUser(ctx, userID, clampLimit(limit))
}

func (s *orderService) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.orders.List(ctx, filter)
}

// Cancel moves a pending or processing order to cancelled and cascades its items.
func (s *orderService) Cancel(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	order, err := loadOwnedOrder(ctx, s.orders, actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := domain.Cancel(&order, s.now()); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderNotCancellable, err)
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	s.logger(ctx, "order.cancelled", map[string]any{"orderId": order.ID, "orderNumber": order.OrderNumber, "actor": actor.UserID})
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if cmd.Status == "" && cmd.DeliveryStatus == "" {
		return domain.Order{}, fmt.Errorf("%w: status or deliveryStatus is required", ErrValidation)
	}
	order, err := loadOwnedOrder(ctx, s.orders, Actor{Admin: true}, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	previous := order.Status
	if err := domain.UpdateFulfilment(&order, cmd.Status, cmd.DeliveryStatus, s.now()); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	s.logger(ctx, "order.status_updated", map[string]any{
		"orderId":        order.ID,
		"from":           string(previous),
		"to":             string(order.Status),
		"deliveryStatus": string(order.DeliveryStatus),
	})
	return order, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultOrderListLimit
	case limit > maxOrderListLimit:
		return maxOrderListLimit
	default:
		return limit
	}
}
