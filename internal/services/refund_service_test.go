package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories/memory"
)

func seedOrder(t *testing.T, repo *memory.OrderRepository, order domain.Order) domain.Order {
	t.Helper()
	created, err := repo.Create(context.Background(), order)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return created
}

func shippedOrder() domain.Order {
	return domain.Order{
		OrderNumber:    "202501010000001",
		UserID:         "u1",
		Status:         domain.OrderStatusProcessing,
		DeliveryStatus: domain.DeliveryStatusShipped,
		Items: []domain.OrderItem{
			{ID: "i1", ProductID: "p1", Quantity: 1, Price: 10, ItemStatus: domain.ItemStatusShipped},
			{ID: "i2", ProductID: "p2", Quantity: 1, Price: 20, ItemStatus: domain.ItemStatusPending},
		},
	}
}

func TestRequestRefund(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := seedOrder(t, repo, shippedOrder())
	svc, err := NewRefundService(RefundServiceDeps{Orders: repo, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewRefundService: %v", err)
	}
	ctx := context.Background()
	owner := Actor{UserID: "u1"}

	items, err := svc.RefundableItems(ctx, owner, order.ID)
	if err != nil || len(items) != 1 || items[0].ID != "i1" {
		t.Fatalf("unexpected refundable items %+v err=%v", items, err)
	}

	updated, err := svc.RequestRefund(ctx, owner, order.ID, "i1")
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if updated.Items[0].ItemStatus != domain.ItemStatusReturnRequested || !updated.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected item %+v", updated.Items[0])
	}
	stored, _ := repo.FindByID(ctx, order.ID)
	if stored.Items[0].ItemStatus != domain.ItemStatusReturnRequested {
		t.Fatal("refund request was not persisted")
	}

	if _, err := svc.RequestRefund(ctx, owner, order.ID, "i1"); !errors.Is(err, ErrItemNotRefundable) {
		t.Fatalf("second request: expected ErrItemNotRefundable, got %v", err)
	}
	if _, err := svc.RequestRefund(ctx, owner, order.ID, "i2"); !errors.Is(err, ErrItemNotRefundable) {
		t.Fatalf("pending item: expected ErrItemNotRefundable, got %v", err)
	}
	if _, err := svc.RequestRefund(ctx, owner, order.ID, "zzz"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := svc.RequestRefund(ctx, Actor{UserID: "u2"}, order.ID, "i1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.RequestRefund(ctx, owner, "missing", "i1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
