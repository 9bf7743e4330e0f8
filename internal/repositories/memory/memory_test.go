package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

func TestOrderRepositoryUniqueNumber(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.Order{OrderNumber: "202501010000001", UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	_, err = repo.Create(ctx, domain.Order{OrderNumber: "202501010000001", UserID: "u2"})
	if !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	exists, _ := repo.NumberExists(ctx, "202501010000001")
	if !exists {
		t.Fatal("expected number to exist")
	}
	if _, err := repo.FindByNumber(ctx, "nope"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCouponMarkUsedConcurrent(t *testing.T) {
	repo := NewCouponRepository(domain.Coupon{Code: "SAVE10", DiscountPercentage: 10})
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.MarkUsed(ctx, "save10", "u1", fmt.Sprintf("2025010100000%02d", i), time.Now()); err == nil {
				atomic.AddInt32(&wins, 1)
			} else if !repositories.IsConflict(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestCouponClaimIsScopedToOrder(t *testing.T) {
	repo := NewCouponRepository(domain.Coupon{Code: "SAVE10", DiscountPercentage: 10})
	ctx := context.Background()

	if _, err := repo.MarkUsed(ctx, "SAVE10", "u1", "202501010000001", time.Now()); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if _, err := repo.MarkUsed(ctx, "SAVE10", "u1", "202501010000001", time.Now()); err != nil {
		t.Fatalf("repeat claim for the same order: %v", err)
	}
	if _, err := repo.MarkUsed(ctx, "SAVE10", "u1", "202501010000002", time.Now()); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for another order, got %v", err)
	}
	if err := repo.ReleaseClaim(ctx, "SAVE10", "202501010000002"); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict releasing a claim held elsewhere, got %v", err)
	}
	if err := repo.ReleaseClaim(ctx, "save10", "202501010000001"); err != nil {
		t.Fatalf("ReleaseClaim: %v", err)
	}
	coupon, err := repo.FindByCode(ctx, "SAVE10")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if coupon.Used || coupon.UsedOrder != "" || coupon.UsedAt != nil {
		t.Fatalf("expected released coupon, got %+v", coupon)
	}
	if _, err := repo.MarkUsed(ctx, "SAVE10", "u2", "202501010000002", time.Now()); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestCatalogStockConservation(t *testing.T) {
	repo := NewCatalogRepository()
	repo.PutProduct(domain.Product{ID: "p1", Stock: domain.ProductStock{Stock: 10, ReservedStock: 2}})
	ctx := context.Background()

	var wg sync.WaitGroup
	var sold int32
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ReserveAndConfirmSale(ctx, "p1", 1); err == nil {
				atomic.AddInt32(&sold, 1)
			}
		}()
	}
	wg.Wait()
	if sold != 10 {
		t.Fatalf("expected 10 sales, got %d", sold)
	}

	stock, err := repo.ConfirmReservedSale(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("ConfirmReservedSale: %v", err)
	}
	stock, err = repo.ReleaseReservation(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("ReleaseReservation: %v", err)
	}
	if stock.Total() != 12 || stock.Stock != 1 || stock.SoldStock != 11 || stock.ReservedStock != 0 {
		t.Fatalf("unexpected counters %+v", stock)
	}

	_, err = repo.ReleaseReservation(ctx, "p1", 1)
	if code, _ := repositories.LedgerCode(err); code != repositories.LedgerErrorInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	_, err = repo.ReserveAndConfirmSale(ctx, "p1", 0)
	if code, _ := repositories.LedgerCode(err); code != repositories.LedgerErrorInvalidQuantity {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	_, err = repo.ReserveAndConfirmSale(ctx, "missing", 1)
	if code, _ := repositories.LedgerCode(err); code != repositories.LedgerErrorProductNotFound {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestCartClear(t *testing.T) {
	repo := NewCatalogRepository()
	repo.PutCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: "p1", Quantity: 1}}})
	ctx := context.Background()
	if err := repo.ClearCart(ctx, "u1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	cart, _ := repo.GetCart(ctx, "u1")
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
}
