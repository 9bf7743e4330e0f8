package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderMercadoPago = "mercadopago"
	ProviderStripe      = "stripe"
)

// Metadata envelope keys. Only identifiers travel through the gateway; totals are recomputed.
const (
	MetaOrderNumber = "order_number"
	MetaUserID      = "user_id"
	MetaAddressID   = "address_id"
	MetaOrderType   = "order_type"
	MetaCouponCode  = "coupon_code"
	MetaTimestamp   = "timestamp"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrPaymentNotFound is returned when the gateway does not know the payment id.
	ErrPaymentNotFound = errors.New("payments: payment not found")
)

// UpstreamError reports a gateway failure with its HTTP status, when known.
type UpstreamError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PreferenceItem is one line sent to the gateway. UnitPrice may be negative for discounts.
type PreferenceItem struct {
	ID          string
	Title       string
	Description string
	PictureURL  string
	Quantity    int
	UnitPrice   float64
	Currency    string
}

// BackURLs are the browser return targets after checkout.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceRequest captures the payload required to create a checkout preference.
type PreferenceRequest struct {
	ExternalReference   string
	Items               []PreferenceItem
	Currency            string
	PayerEmail          string
	BackURLs            BackURLs
	NotificationURL     string
	StatementDescriptor string
	Metadata            map[string]string
	IdempotencyKey      string
}

// Preference is the gateway-side checkout descriptor.
type Preference struct {
	ID                string
	Provider          string
	InitURL           string
	SandboxInitURL    string
	ExternalReference string
	CreatedAt         time.Time
}

// Payment is the authoritative payment resource fetched from the gateway.
type Payment struct {
	ID                string
	Provider          string
	Status            string
	StatusDetail      string
	ExternalReference string
	TransactionAmount float64
	Currency          string
	PaymentMethodID   string
	PaymentTypeID     string
	ApprovedAt        *time.Time
	Metadata          map[string]string
}

// Provider defines the contract for gateway adapters.
type Provider interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

// Manager coordinates provider selection.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when callers do not name one.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered[ProviderMercadoPago]; ok {
		m.defaultProvider = ProviderMercadoPago
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Default returns the key of the default provider, if any.
func (m *Manager) Default() string {
	key, _, err := m.resolve("")
	if err != nil {
		return ""
	}
	return key
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePreference delegates to the named provider, or the default when empty.
func (m *Manager) CreatePreference(ctx context.Context, provider string, req PreferenceRequest) (Preference, error) {
	key, p, err := m.resolve(provider)
	if err != nil {
		return Preference{}, err
	}
	pref, err := p.CreatePreference(ctx, req)
	if err != nil {
		return Preference{}, err
	}
	pref.Provider = key
	return pref, nil
}

// GetPayment fetches the authoritative payment from the named provider.
func (m *Manager) GetPayment(ctx context.Context, provider string, paymentID string) (Payment, error) {
	key, p, err := m.resolve(provider)
	if err != nil {
		return Payment{}, err
	}
	payment, err := p.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	payment.Provider = key
	return payment, nil
}
