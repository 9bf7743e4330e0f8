package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("domain: invalid order transition")

// CascadeItemStatuses propagates order-level status onto item statuses.
// Items already refunded or returned are never overwritten.
func CascadeItemStatuses(order *Order) {
	if order == nil {
		return
	}
	var next ItemStatus
	switch order.Status {
	case OrderStatusCancelled:
		next = ItemStatusCancelled
	case OrderStatusCompleted:
		if order.DeliveryStatus == DeliveryStatusDelivered {
			next = ItemStatusDelivered
		}
	case OrderStatusProcessing:
		if order.DeliveryStatus == DeliveryStatusShipped {
			next = ItemStatusShipped
		}
	}
	if next == "" {
		return
	}
	for i := range order.Items {
		switch order.Items[i].ItemStatus {
		case ItemStatusRefunded, ItemStatusReturned:
			continue
		}
		order.Items[i].ItemStatus = next
	}
}

// ApplyPaymentStatus records a gateway status on the order and cascades items.
func ApplyPaymentStatus(order *Order, status PaymentStatus, now time.Time) {
	if order == nil {
		return
	}
	order.PaymentStatus = status
	order.Status = OrderStatusFor(status)
	switch order.Status {
	case OrderStatusPaymentFailed, OrderStatusCancelled:
		if order.FailedAt == nil {
			t := now
			order.FailedAt = &t
		}
	}
	order.UpdatedAt = now
	CascadeItemStatuses(order)
}

// Cancel moves a pending or processing order to cancelled.
func Cancel(order *Order, now time.Time) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidTransition)
	}
	switch order.Status {
	case OrderStatusPending, OrderStatusProcessing:
	default:
		return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, order.Status)
	}
	order.Status = OrderStatusCancelled
	order.UpdatedAt = now
	CascadeItemStatuses(order)
	return nil
}

// UpdateFulfilment applies an administrative status and delivery change.
// Zero values leave the corresponding field untouched.
func UpdateFulfilment(order *Order, status OrderStatus, delivery DeliveryStatus, now time.Time) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidTransition)
	}
	if status != "" && !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if delivery != "" && !delivery.Valid() {
		return fmt.Errorf("%w: unknown delivery status %q", ErrInvalidTransition, delivery)
	}
	if order.Status == OrderStatusCancelled && status != "" && status != OrderStatusCancelled {
		return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
	}
	if status != "" {
		order.Status = status
	}
	if delivery != "" {
		order.DeliveryStatus = delivery
	}
	order.UpdatedAt = now
	CascadeItemStatuses(order)
	return nil
}

// Refundable reports whether an item may enter the return flow.
func (i OrderItem) Refundable() bool {
	return i.ItemStatus == ItemStatusDelivered || i.ItemStatus == ItemStatusShipped
}

// RefundableItems lists the items currently eligible for a refund request.
func (o Order) RefundableItems() []OrderItem {
	out := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Refundable() {
			out = append(out, item)
		}
	}
	return out
}
