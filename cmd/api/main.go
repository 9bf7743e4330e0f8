package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/tienda-online/api/internal/di"
	"github.com/tienda-online/api/internal/handlers"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/config"
	"github.com/tienda-online/api/internal/platform/idempotency"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/platform/secrets"
	"github.com/tienda-online/api/internal/services"
)

const (
	authTimeout          = 5 * time.Second
	checkoutRateLimit    = 10
	checkoutRateWindow   = time.Minute
	signatureMaxAge      = 10 * time.Minute
	shutdownDrainTimeout = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	clientOpts := clientOptionsFromEnv(envValues)
	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithProject(firstNonEmpty(envValues["API_SECRET_PROJECT_ID"], envValues["API_FIREBASE_PROJECT_ID"])),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithClientOptions(clientOpts...),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	rt, err := di.NewRuntime(ctx, cfg, logger, di.RuntimeOptions{
		Backend:       envValues["API_REPOSITORY_BACKEND"],
		ClientOptions: clientOpts,
	})
	if err != nil {
		logger.Fatal("failed to initialise runtime", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("runtime close error", zap.Error(err))
		}
	}()

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	container, err := di.NewContainer(ctx, cfg, rt.Registry, rt.Infrastructure(baseLogger, buildInfo))
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, authTimeout)

	adminRole := cfg.Security.AdminRole
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, adminRole)
	refundHandlers := handlers.NewRefundHandlers(authenticator, svc.Refunds, adminRole)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Preferences,
		handlers.WithCheckoutRateLimit(checkoutRateLimit, checkoutRateWindow, time.Now),
		handlers.WithCheckoutIdempotency(idempotency.Middleware(rt.Idempotency)),
	)
	couponHandlers := handlers.NewCouponHandlers(authenticator, svc.Coupons, adminRole)

	signature := auth.NewGatewaySignatureValidator(cfg.Gateway.MercadoPago.WebhookSecret,
		auth.WithSignatureMaxAge(signatureMaxAge),
	)
	if signature == nil {
		logger.Warn("mercadopago webhook secret not configured; notifications are accepted unsigned")
	}
	webhookHandlers := handlers.NewWebhookHandlers(svc.Reconciler,
		handlers.WithMercadoPagoSignature(signature),
		handlers.WithStripeWebhookSecret(cfg.Gateway.Stripe.WebhookSecret),
	)

	internalHandlers := handlers.NewInternalHandlers(svc.Reconciler, svc.Orders)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(checkoutHandlers.Routes, refundHandlers.Routes, orderHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(cfg.Security.OIDC, logger.Named("oidc"))),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tienda api listening",
			zap.String("gateway", rt.Gateway.Default()),
			zap.Bool("lease", rt.Locker != nil),
			zap.Bool("alerts", rt.Alerts != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

// buildOIDCMiddleware guards /internal with Google-signed service tokens. Without an
// audience every internal call is rejected.
func buildOIDCMiddleware(cfg config.OIDCConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		logger.Warn("oidc audience not configured; internal routes will reject all requests")
	}
	if len(cfg.Issuers) == 0 {
		logger.Warn("oidc issuers not configured; any issuer signed by the key set is accepted")
	}
	cache := auth.NewJWKSCache(cfg.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))
	return validator.RequireOIDC(audience, cfg.Issuers)
}

// requiredSecretNames returns the secret fields that must resolve for the selected gateway.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["API_GATEWAY_DEFAULT"])) {
	case "stripe":
		return []string{"Gateway.Stripe.APIKey", "Gateway.Stripe.WebhookSecret"}
	default:
		required := []string{"Gateway.MercadoPago.AccessToken"}
		if strings.EqualFold(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]), "prod") {
			required = append(required, "Gateway.MercadoPago.WebhookSecret")
		}
		return required
	}
}

func clientOptionsFromEnv(env map[string]string) []option.ClientOption {
	if path := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
