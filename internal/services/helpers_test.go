package services

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/repositories/memory"
)

var testNow = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type stubGateway struct {
	mu       sync.Mutex
	payments map[string]payments.Payment
	prefReq  payments.PreferenceRequest
	prefErr  error
	getErr   error
	getCalls int
}

func (g *stubGateway) CreatePreference(_ context.Context, provider string, req payments.PreferenceRequest) (payments.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prefReq = req
	if g.prefErr != nil {
		return payments.Preference{}, g.prefErr
	}
	if provider == "" {
		provider = payments.ProviderMercadoPago
	}
	return payments.Preference{ID: "pref-1", Provider: provider, InitURL: "https://mp/init", SandboxInitURL: "https://mp/sandbox"}, nil
}

func (g *stubGateway) GetPayment(_ context.Context, provider string, id string) (payments.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return payments.Payment{}, g.getErr
	}
	p, ok := g.payments[id]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	p.Provider = payments.ProviderMercadoPago
	return p, nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingAlerts) PublishAlert(_ context.Context, a Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
	return nil
}

func (r *recordingAlerts) kinds() []AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AlertKind, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Kind
	}
	return out
}

type storeFixture struct {
	orders  *memory.OrderRepository
	coupons *memory.CouponRepository
	catalog *memory.CatalogRepository
}

// newStoreFixture seeds one product (price 100, stock 10), a cart of two units and coupon SAVE10.
func newStoreFixture() *storeFixture {
	f := &storeFixture{
		orders: memory.NewOrderRepository(),
		coupons: memory.NewCouponRepository(domain.Coupon{
			Code:               "SAVE10",
			DiscountPercentage: 10,
			ValidUntil:         testNow.Add(24 * time.Hour),
		}),
		catalog: memory.NewCatalogRepository(),
	}
	f.catalog.PutProduct(domain.Product{ID: "p1", Name: "Remera", Price: 100, Stock: domain.ProductStock{Stock: 10}})
	f.catalog.PutCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: "p1", Quantity: 2, Size: "M"}}})
	return f
}

func (f *storeFixture) snapshots(t *testing.T) CartSnapshotReader {
	t.Helper()
	r, err := NewCartSnapshotReader(CartSnapshotDeps{Carts: f.catalog, Products: f.catalog})
	if err != nil {
		t.Fatalf("NewCartSnapshotReader: %v", err)
	}
	return r
}

func (f *storeFixture) couponService(t *testing.T) CouponService {
	t.Helper()
	s, err := NewCouponService(CouponServiceDeps{Coupons: f.coupons, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	return s
}

func (f *storeFixture) ledger(t *testing.T) StockLedger {
	t.Helper()
	l, err := NewStockLedger(StockLedgerDeps{Stock: f.catalog})
	if err != nil {
		t.Fatalf("NewStockLedger: %v", err)
	}
	return l
}

func (f *storeFixture) product(t *testing.T, id string) domain.Product {
	t.Helper()
	p, err := f.catalog.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return p
}
