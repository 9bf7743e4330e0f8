package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/tienda-online/api/internal/domain"
)

func TestStockLedgerTranslatesErrors(t *testing.T) {
	f := newStoreFixture()
	f.catalog.PutProduct(domain.Product{ID: "p9", Stock: domain.ProductStock{Stock: 1, ReservedStock: 1}})
	ledger := f.ledger(t)
	ctx := context.Background()

	if _, err := ledger.ReserveAndConfirmSale(ctx, "p9", 2); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := ledger.ReserveAndConfirmSale(ctx, "nope", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := ledger.ConfirmReservedSale(ctx, "p9", -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	stock, err := ledger.ConfirmReservedSale(ctx, "p9", 1)
	if err != nil {
		t.Fatalf("ConfirmReservedSale: %v", err)
	}
	if stock.ReservedStock != 0 || stock.SoldStock != 1 || stock.Total() != 2 {
		t.Fatalf("unexpected counters %+v", stock)
	}
	if _, err := ledger.ReleaseReservation(ctx, "p9", 1); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected release to fail once nothing is reserved, got %v", err)
	}
}
