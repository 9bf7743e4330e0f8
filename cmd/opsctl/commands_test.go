package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tienda-online/api/internal/di"
	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/platform/config"
	"github.com/tienda-online/api/internal/repositories/memory"
)

type fakeGateway struct {
	payments map[string]payments.Payment
}

func (g *fakeGateway) CreatePreference(context.Context, string, payments.PreferenceRequest) (payments.Preference, error) {
	return payments.Preference{}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, _ string, id string) (payments.Payment, error) {
	p, ok := g.payments[id]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	return p, nil
}

func newTestApp(t *testing.T) (*cli.App, *bytes.Buffer, *memory.Registry) {
	t.Helper()
	reg, err := memory.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Catalog().PutProduct(domain.Product{ID: "p1", Name: "Buzo", Price: 50, Stock: domain.ProductStock{Stock: 4, ReservedStock: 3}})
	reg.Catalog().PutCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: "p1", Quantity: 1}}})

	gateway := &fakeGateway{payments: map[string]payments.Payment{
		"pay-1": {
			ID:                "pay-1",
			Provider:          payments.ProviderMercadoPago,
			Status:            "approved",
			TransactionAmount: 50,
			Metadata: map[string]string{
				payments.MetaOrderNumber: "202501010000077",
				payments.MetaUserID:      "u1",
				payments.MetaAddressID:   "addr-1",
				payments.MetaOrderType:   "standard",
			},
		},
	}}
	container, err := di.NewContainer(context.Background(), config.Config{}, reg, di.Infrastructure{Gateway: gateway})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	out := &bytes.Buffer{}
	app := newApp(func(*cli.Context) (*ops, error) {
		return &ops{services: container.Services, out: out}, nil
	})
	app.Writer = out
	app.ErrWriter = &bytes.Buffer{}
	return app, out, reg
}

func TestReconcileAndShowOrder(t *testing.T) {
	app, out, _ := newTestApp(t)

	if err := app.Run([]string{"opsctl", "reconcile", "--payment-id", "pay-1"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["outcome"] != "created" || result["orderNumber"] != "202501010000077" {
		t.Fatalf("unexpected result %v", result)
	}

	out.Reset()
	if err := app.Run([]string{"opsctl", "order", "show", "--number", "202501010000077"}); err != nil {
		t.Fatalf("order show: %v", err)
	}
	if !strings.Contains(out.String(), `"OrderNumber": "202501010000077"`) {
		t.Fatalf("unexpected order output %s", out.String())
	}

	if err := app.Run([]string{"opsctl", "order", "show", "--number", "209901010000000"}); err == nil {
		t.Fatal("expected error for unknown order")
	}
}

func TestStockCommands(t *testing.T) {
	app, out, reg := newTestApp(t)

	if err := app.Run([]string{"opsctl", "stock", "release", "--product", "p1", "--qty", "2"}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := app.Run([]string{"opsctl", "stock", "confirm", "--product", "p1", "--qty", "1"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	product, err := reg.Catalog().FindByID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if product.Stock != (domain.ProductStock{Stock: 6, ReservedStock: 0, SoldStock: 1}) {
		t.Fatalf("unexpected stock %+v", product.Stock)
	}

	out.Reset()
	if err := app.Run([]string{"opsctl", "stock", "confirm", "--product", "p1", "--qty", "1"}); err == nil {
		t.Fatal("expected error when nothing is reserved")
	}
}

func TestCouponCreate(t *testing.T) {
	app, out, reg := newTestApp(t)
	until := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	if err := app.Run([]string{"opsctl", "coupon", "create", "--code", "verano", "--percent", "15", "--valid-until", until}); err != nil {
		t.Fatalf("coupon create: %v", err)
	}
	if !strings.Contains(out.String(), `"Code": "VERANO"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
	if _, err := reg.CouponStore().FindByCode(context.Background(), "VERANO"); err != nil {
		t.Fatalf("coupon not stored: %v", err)
	}

	if err := app.Run([]string{"opsctl", "coupon", "create", "--code", "x", "--percent", "15", "--valid-until", "mañana"}); err == nil {
		t.Fatal("expected error for invalid date")
	}
}
