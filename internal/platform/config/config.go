package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultCurrency            = "ARS"
	defaultStatementDescriptor = "TIENDA ONLINE"
	defaultGateway             = "mercadopago"
	defaultGatewayTimeout      = 5 * time.Second
	defaultMercadoPagoBaseURL  = "https://api.mercadopago.com"
	defaultRedisLeaseTTL       = 30 * time.Second
	defaultSecurityEnvironment = "local"
	defaultAdminRole           = "admin"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Storefront StorefrontConfig
	Gateway    GatewayConfig
	Alerts     AlertsConfig
	Redis      RedisConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorefrontConfig holds the public URLs and presentation settings sent to the gateway.
type StorefrontConfig struct {
	FrontendURL         string
	BackendURL          string
	Currency            string
	StatementDescriptor string
}

// GatewayConfig collects payment gateway credentials.
type GatewayConfig struct {
	Default     string
	Timeout     time.Duration
	MercadoPago MercadoPagoConfig
	Stripe      StripeConfig
}

// MercadoPagoConfig configures the MercadoPago REST adapter.
type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
}

// StripeConfig configures the optional Stripe adapter.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// AlertsConfig points to the Pub/Sub topic receiving operator alerts. Empty disables publishing.
type AlertsConfig struct {
	ProjectID string
	Topic     string
}

// RedisConfig enables the webhook lease when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment string
	AdminRole   string
	OIDC        OIDCConfig
}

// OIDCConfig controls verification of Google-signed service tokens on /internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failure while resolving one secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.names, ", "))
}

// Names returns the sorted field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	return append([]string(nil), e.names...)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values; they take precedence over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "Gateway.MercadoPago.AccessToken") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment (dotenv < OS env < explicit map) so callers can
// initialise dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return nil, err
	}
	return src.flatten(), nil
}

// Load assembles configuration from defaults, .env overrides, environment variables and Secret Manager.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  src.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: src.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  src.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: src.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storefront: StorefrontConfig{
			FrontendURL:         strings.TrimRight(src.str("API_STOREFRONT_FRONTEND_URL", ""), "/"),
			BackendURL:          strings.TrimRight(src.str("API_STOREFRONT_BACKEND_URL", ""), "/"),
			Currency:            strings.ToUpper(src.str("API_STOREFRONT_CURRENCY", defaultCurrency)),
			StatementDescriptor: src.str("API_STOREFRONT_STATEMENT_DESCRIPTOR", defaultStatementDescriptor),
		},
		Gateway: GatewayConfig{
			Default: strings.ToLower(src.str("API_GATEWAY_DEFAULT", defaultGateway)),
			Timeout: src.duration("API_GATEWAY_TIMEOUT", defaultGatewayTimeout),
			MercadoPago: MercadoPagoConfig{
				AccessToken:   src.str("API_GATEWAY_MERCADOPAGO_ACCESS_TOKEN", ""),
				WebhookSecret: src.str("API_GATEWAY_MERCADOPAGO_WEBHOOK_SECRET", ""),
				BaseURL:       strings.TrimRight(src.str("API_GATEWAY_MERCADOPAGO_BASE_URL", defaultMercadoPagoBaseURL), "/"),
			},
			Stripe: StripeConfig{
				APIKey:        src.str("API_GATEWAY_STRIPE_API_KEY", ""),
				WebhookSecret: src.str("API_GATEWAY_STRIPE_WEBHOOK_SECRET", ""),
			},
		},
		Alerts: AlertsConfig{
			ProjectID: src.str("API_ALERTS_PROJECT_ID", ""),
			Topic:     src.str("API_ALERTS_TOPIC", ""),
		},
		Redis: RedisConfig{
			Addr:     src.str("API_REDIS_ADDR", ""),
			Password: src.str("API_REDIS_PASSWORD", ""),
			DB:       src.integer("API_REDIS_DB", 0),
			LeaseTTL: src.duration("API_REDIS_LEASE_TTL", defaultRedisLeaseTTL),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(src.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			AdminRole:   src.str("API_SECURITY_ADMIN_ROLE", defaultAdminRole),
			OIDC: OIDCConfig{
				JWKSURL:  src.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: src.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  src.list("API_SECURITY_OIDC_ISSUERS", []string{defaultOIDCIssuer}),
			},
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Alerts.ProjectID == "" {
		cfg.Alerts.ProjectID = cfg.Firestore.ProjectID
	}

	resolver := options.secret
	if resolver == nil {
		resolver = SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errSecretResolverNotConfigured
		})
	}
	secretFields := map[string]*string{
		"Gateway.MercadoPago.AccessToken":   &cfg.Gateway.MercadoPago.AccessToken,
		"Gateway.MercadoPago.WebhookSecret": &cfg.Gateway.MercadoPago.WebhookSecret,
		"Gateway.Stripe.APIKey":             &cfg.Gateway.Stripe.APIKey,
		"Gateway.Stripe.WebhookSecret":      &cfg.Gateway.Stripe.WebhookSecret,
		"Redis.Password":                    &cfg.Redis.Password,
	}
	for _, name := range sortedKeys(secretFields) {
		field := secretFields[name]
		resolved, err := resolveSecret(ctx, *field, resolver)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		field, ok := secretFields[name]
		if !ok || strings.TrimSpace(*field) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !isSecretReference(trimmed) {
		return value, nil
	}
	ref := normalizeSecretReference(trimmed)
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storefront.FrontendURL == "" {
		missing = append(missing, "Storefront.FrontendURL")
	}
	if cfg.Storefront.BackendURL == "" {
		missing = append(missing, "Storefront.BackendURL")
	}
	if cfg.Gateway.Timeout <= 0 {
		missing = append(missing, "Gateway.Timeout")
	}
	switch cfg.Gateway.Default {
	case "mercadopago":
		if cfg.Gateway.MercadoPago.AccessToken == "" {
			missing = append(missing, "Gateway.MercadoPago.AccessToken")
		}
	case "stripe":
		if cfg.Gateway.Stripe.APIKey == "" {
			missing = append(missing, "Gateway.Stripe.APIKey")
		}
	default:
		missing = append(missing, "Gateway.Default")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.LeaseTTL <= 0 {
		missing = append(missing, "Redis.LeaseTTL")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func normalizeSecretReference(value string) string {
	if strings.HasPrefix(value, "sm://") {
		return "secret://" + strings.TrimPrefix(value, "sm://")
	}
	return value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func systemEnv() map[string]string {
	values := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		values[strings.TrimSpace(key)] = value
	}
	return values
}
