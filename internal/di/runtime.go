package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/platform/alerts"
	"github.com/tienda-online/api/internal/platform/config"
	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/platform/idempotency"
	"github.com/tienda-online/api/internal/platform/locks"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/repositories"
	firestoreRepo "github.com/tienda-online/api/internal/repositories/firestore"
	"github.com/tienda-online/api/internal/repositories/memory"
	"github.com/tienda-online/api/internal/services"
)

// BackendMemory selects the in-memory repositories instead of Firestore.
const BackendMemory = "memory"

// Runtime owns the external clients shared by the HTTP service and the operator CLI.
type Runtime struct {
	Registry repositories.Registry
	Gateway  *payments.Manager
	Alerts   *alerts.PubSubPublisher
	Locker   *locks.RedisLocker

	// Idempotency is Redis-backed when Redis is configured, in-memory otherwise.
	Idempotency idempotency.Store

	closers []func(context.Context) error
}

// RuntimeOptions tweaks NewRuntime.
type RuntimeOptions struct {
	// Backend is "firestore" (default) or BackendMemory.
	Backend string
	// ClientOptions are forwarded to Firestore and Pub/Sub clients.
	ClientOptions []option.ClientOption
}

// NewRuntime dials Firestore, Pub/Sub and Redis as configured and builds the gateway manager.
func NewRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger, opts RuntimeOptions) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{}

	var extraChecks []repositories.DependencyCheck
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		locker, err := locks.NewRedisLocker(client, cfg.Redis.LeaseTTL)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("build redis locker: %w", err)
		}
		rt.Locker = locker
		store, err := idempotency.NewRedisStore(client)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.Idempotency = store
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check:   locker.Ping,
		})
	}

	if rt.Idempotency == nil {
		rt.Idempotency = idempotency.NewMemoryStore(nil)
	}

	if strings.EqualFold(strings.TrimSpace(opts.Backend), BackendMemory) {
		reg, err := memory.NewRegistry()
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("build memory registry: %w", err)
		}
		rt.Registry = reg
	} else {
		provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(opts.ClientOptions...))
		reg, err := firestoreRepo.NewRegistry(provider, extraChecks...)
		if err != nil {
			_ = provider.Close(ctx)
			rt.Close(ctx)
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		rt.Registry = reg
	}
	rt.closers = append(rt.closers, rt.Registry.Close)

	gateway, err := buildGateway(cfg, logger.Named("payments"))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Gateway = gateway

	if topicName := strings.TrimSpace(cfg.Alerts.Topic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.Alerts.ProjectID, opts.ClientOptions...)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := client.Topic(topicName)
		rt.closers = append(rt.closers, func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := alerts.NewPubSubPublisher(topic)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.Alerts = publisher
	} else {
		logger.Warn("alerts topic not configured; operator alerts are dropped")
	}

	return rt, nil
}

// Infrastructure returns the adapters for NewContainer, leaving unset adapters as nil interfaces.
func (rt *Runtime) Infrastructure(logger *zap.Logger, build services.BuildInfo) Infrastructure {
	infra := Infrastructure{Gateway: rt.Gateway, Logger: logger, Build: build}
	if rt.Alerts != nil {
		infra.Alerts = rt.Alerts
	}
	if rt.Locker != nil {
		infra.Locker = rt.Locker
	}
	return infra
}

// Close releases clients in reverse order of creation.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func buildGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	gatewayLog := payments.GatewayLogger(observability.EventLogger(logger))

	if token := strings.TrimSpace(cfg.Gateway.MercadoPago.AccessToken); token != "" {
		mp, err := payments.NewMercadoPagoProvider(payments.MercadoPagoConfig{
			AccessToken: token,
			BaseURL:     cfg.Gateway.MercadoPago.BaseURL,
			Timeout:     cfg.Gateway.Timeout,
			Logger:      gatewayLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build mercadopago provider: %w", err)
		}
		providers[payments.ProviderMercadoPago] = mp
	}
	if key := strings.TrimSpace(cfg.Gateway.Stripe.APIKey); key != "" {
		sp, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: gatewayLog,
			Clock:  time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers[payments.ProviderStripe] = sp
	}

	manager, err := payments.NewManager(providers, payments.WithDefaultProvider(cfg.Gateway.Default))
	if err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, nil
}
