//go:build integration

package firestore

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tienda-online/api/internal/domain"
	pconfig "github.com/tienda-online/api/internal/platform/config"
	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/repositories"
)

func newTestProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "tienda-test-" + ulid.Make().String(),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newTestProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("NewOrderRepository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		OrderNumber: "202501010000001",
		UserID:      "u1",
		Status:      domain.OrderStatusProcessing,
		Items:       []domain.OrderItem{{ID: "p1", ProductID: "p1", Name: "Remera", Price: 100, Quantity: 2}},
		TotalAmount: 200,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := repo.Create(ctx, order)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(ctx, order); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate number, got %v", err)
	}
	found, err := repo.FindByNumber(ctx, order.OrderNumber)
	if err != nil {
		t.Fatalf("FindByNumber: %v", err)
	}
	if found.ID != created.ID || len(found.Items) != 1 {
		t.Fatalf("unexpected order %+v", found)
	}
	exists, err := repo.NumberExists(ctx, order.OrderNumber)
	if err != nil || !exists {
		t.Fatalf("NumberExists: %v %v", exists, err)
	}
	listed, err := repo.ListByUser(ctx, "u1", 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListByUser: %d %v", len(listed), err)
	}
}

func TestCatalogAndCouponIntegration(t *testing.T) {
	provider := newTestProvider(t)
	catalog, _ := NewCatalogRepository(provider)
	coupons, _ := NewCouponRepository(provider)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if _, err := client.Collection(productsCollection).Doc("p1").Set(ctx, productDocument{Name: "Remera", Price: 100, Stock: 5}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	var wg sync.WaitGroup
	var sold int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.ReserveAndConfirmSale(ctx, "p1", 1); err == nil {
				atomic.AddInt32(&sold, 1)
			}
		}()
	}
	wg.Wait()
	if sold != 5 {
		t.Fatalf("expected 5 sales, got %d", sold)
	}
	product, err := catalog.FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if product.Stock.Stock != 0 || product.Stock.SoldStock != 5 {
		t.Fatalf("unexpected counters %+v", product.Stock)
	}

	if err := coupons.Create(ctx, domain.Coupon{Code: "save10", DiscountPercentage: 10, ValidUntil: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Create coupon: %v", err)
	}
	if _, err := coupons.MarkUsed(ctx, "SAVE10", "u1", "202501010000001", time.Now()); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if _, err := coupons.MarkUsed(ctx, "SAVE10", "u1", "202501010000001", time.Now()); err != nil {
		t.Fatalf("repeat MarkUsed: %v", err)
	}
	if _, err := coupons.MarkUsed(ctx, "SAVE10", "u2", "202501010000002", time.Now()); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := coupons.ReleaseClaim(ctx, "SAVE10", "202501010000001"); err != nil {
		t.Fatalf("ReleaseClaim: %v", err)
	}
	if _, err := coupons.MarkUsed(ctx, "SAVE10", "u2", "202501010000002", time.Now()); err != nil {
		t.Fatalf("MarkUsed after release: %v", err)
	}
}
