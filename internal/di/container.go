package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/tienda-online/api/internal/platform/config"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/repositories"
	"github.com/tienda-online/api/internal/services"
)

// Services bundles the service-layer contracts that handlers and the operator CLI rely upon.
type Services struct {
	Snapshots   services.CartSnapshotReader
	Coupons     services.CouponService
	Numbers     services.OrderNumberGenerator
	Ledger      services.StockLedger
	Preferences services.PreferenceService
	Reconciler  services.Reconciler
	Orders      services.OrderService
	Refunds     services.RefundService
	System      services.SystemService
}

// Infrastructure carries the adapters that sit outside the repository registry.
// Alerts, Locker and Meter are optional.
type Infrastructure struct {
	Gateway services.PaymentGateway
	Alerts  services.AlertPublisher
	Locker  services.Locker
	Meter   metric.Meter
	Logger  *zap.Logger
	Build   services.BuildInfo
	Clock   func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply the in-memory registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	base := infra.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logFor := func(name string) services.Logger {
		return observability.EventLogger(base.Named(name))
	}

	snapshots, err := services.NewCartSnapshotReader(services.CartSnapshotDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart snapshot reader: %w", err)
	}
	svc.Snapshots = snapshots

	coupons, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Clock:   clock,
		Logger:  logFor("coupons"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = coupons

	numbers, err := services.NewOrderNumberGenerator(services.OrderNumberDeps{
		Orders: reg.Orders(),
		Clock:  clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order number generator: %w", err)
	}
	svc.Numbers = numbers

	ledger, err := services.NewStockLedger(services.StockLedgerDeps{
		Stock:  reg.Stock(),
		Logger: logFor("stock"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock ledger: %w", err)
	}
	svc.Ledger = ledger

	preferences, err := services.NewPreferenceService(services.PreferenceServiceDeps{
		Snapshots: snapshots,
		Coupons:   coupons,
		Numbers:   numbers,
		Gateway:   infra.Gateway,
		Storefront: services.StorefrontSettings{
			FrontendURL:         cfg.Storefront.FrontendURL,
			BackendURL:          cfg.Storefront.BackendURL,
			Currency:            cfg.Storefront.Currency,
			StatementDescriptor: cfg.Storefront.StatementDescriptor,
		},
		Clock:  clock,
		Logger: logFor("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build preference service: %w", err)
	}
	svc.Preferences = preferences

	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Gateway:   infra.Gateway,
		Orders:    reg.Orders(),
		Carts:     reg.Carts(),
		Snapshots: snapshots,
		Coupons:   coupons,
		Ledger:    ledger,
		Alerts:    infra.Alerts,
		Locker:    infra.Locker,
		Meter:     infra.Meter,
		Clock:     clock,
		Logger:    logFor("reconciler"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Clock:  clock,
		Logger: logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	refunds, err := services.NewRefundService(services.RefundServiceDeps{
		Orders: reg.Orders(),
		Clock:  clock,
		Logger: logFor("refunds"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}
	svc.Refunds = refunds

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
