package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const meterName = "github.com/tienda-online/api/internal/platform/secrets"

// ErrInvalidReference is returned for references that are not secret:// URIs.
var ErrInvalidReference = errors.New("secrets: invalid reference")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager and caches the results.
//
// Accepted forms: secret://name, secret://name@version and
// secret://projects/<p>/secrets/<name>/versions/<v>. Local values override remote lookups.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	local      map[string]string
	logger     *zap.Logger
	lookups    metric.Int64Counter

	mu    sync.RWMutex
	cache map[string]string
}

type fetcherConfig struct {
	client     secretManagerClient
	clientOpts []option.ClientOption
	projectID  string
	local      map[string]string
	logger     *zap.Logger
	meter      metric.Meter
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithProject sets the project used for short references.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithLocalValues registers values keyed by secret name that bypass Secret Manager.
func WithLocalValues(values map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.local = values }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

func withClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// NewFetcher constructs a Fetcher. The Secret Manager client is only created when a project is set.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), meter: otel.Meter(meterName)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	f := &Fetcher{
		client:    cfg.client,
		projectID: cfg.projectID,
		local:     cfg.local,
		logger:    cfg.logger,
		cache:     make(map[string]string),
	}
	if f.client == nil && f.projectID != "" {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	counter, err := cfg.meter.Int64Counter("secrets.lookups", metric.WithDescription("Secret resolutions by source"))
	if err == nil {
		f.lookups = counter
	}
	return f, nil
}

// Close releases the client when the Fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		f.record(ctx, "cache")
		return value, nil
	}

	if local, ok := f.localValue(ref); ok {
		f.record(ctx, "local")
		return local, nil
	}
	if f.client == nil {
		return "", fmt.Errorf("secrets: no secret manager client for %s", maskReference(ref))
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		f.logger.Warn("secret lookup failed", zap.String("ref", maskReference(ref)), zap.Error(err))
		return "", fmt.Errorf("secrets: access %s: %w", maskReference(ref), err)
	}
	value = strings.TrimSpace(string(resp.GetPayload().GetData()))

	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()
	f.record(ctx, "secret_manager")
	return value, nil
}

func (f *Fetcher) resourceName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, "secret://") {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, maskReference(ref))
	}
	path := strings.TrimPrefix(trimmed, "secret://")
	if strings.HasPrefix(path, "projects/") {
		if !strings.Contains(path, "/versions/") {
			path += "/versions/latest"
		}
		return path, nil
	}
	name, version, found := strings.Cut(path, "@")
	if !found || version == "" {
		version = "latest"
	}
	name = strings.Trim(strings.ReplaceAll(name, "/", "-"), "-")
	if name == "" {
		return "", fmt.Errorf("%w: empty secret name", ErrInvalidReference)
	}
	if f.projectID == "" {
		return "secrets/" + name + "/versions/" + version, nil
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}

func (f *Fetcher) localValue(ref string) (string, bool) {
	if len(f.local) == 0 {
		return "", false
	}
	key := strings.TrimPrefix(strings.TrimSpace(ref), "secret://")
	key, _, _ = strings.Cut(key, "@")
	value, ok := f.local[key]
	return value, ok
}

func (f *Fetcher) record(ctx context.Context, source string) {
	if f.lookups != nil {
		f.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

func maskReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) <= 12 {
		return "secret://***"
	}
	return ref[:12] + "***"
}
