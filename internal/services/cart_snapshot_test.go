package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/tienda-online/api/internal/domain"
)

func TestCartSnapshotResolvesLiveProducts(t *testing.T) {
	f := newStoreFixture()
	f.catalog.PutProduct(domain.Product{ID: "p2", Name: "<b>Buzo</b> &amp; gorro", Price: 50, DiscountPercentage: 20})
	f.catalog.PutCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1, Size: "<script>x</script>L"},
		{ProductID: "p3", Quantity: 0},
	}})

	snap, err := f.snapshots(t).Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(snap.Lines))
	}
	if snap.Lines[1].Name != "Buzo & gorro" || snap.Lines[1].Size != "L" {
		t.Fatalf("expected sanitised text, got %q / %q", snap.Lines[1].Name, snap.Lines[1].Size)
	}
	if snap.Lines[1].EffectivePrice() != 40 {
		t.Fatalf("expected effective price 40, got %v", snap.Lines[1].EffectivePrice())
	}
}

func TestCartSnapshotErrors(t *testing.T) {
	f := newStoreFixture()
	reader := f.snapshots(t)

	if _, err := reader.Snapshot(context.Background(), "nobody"); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}

	f.catalog.PutCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: "gone", Quantity: 1}}})
	_, err := reader.Snapshot(context.Background(), "u1")
	if !errors.Is(err, ErrProductNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	if _, err := reader.Snapshot(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
