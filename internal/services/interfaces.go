package services

import (
	"context"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/repositories"
)

// SystemHealthReport is re-exported for handlers.
type SystemHealthReport = domain.SystemHealthReport

// Actor identifies the caller of an order query.
type Actor struct {
	UserID string
	Admin  bool
}

// CartSnapshotReader resolves a user's cart against the live catalog.
type CartSnapshotReader interface {
	Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error)
}

// CouponValidator answers findValid and performs the single-use claim.
type CouponValidator interface {
	FindValid(ctx context.Context, code string) (*domain.Coupon, error)
	// FindForOrder is FindValid that also returns a coupon already claimed by orderNumber.
	FindForOrder(ctx context.Context, code, orderNumber string) (*domain.Coupon, error)
	// MarkUsed claims the coupon for orderNumber. Repeating it for the same order succeeds.
	MarkUsed(ctx context.Context, code, userID, orderNumber string) error
	// ReleaseClaim returns a coupon claimed by orderNumber to the unused state.
	ReleaseClaim(ctx context.Context, code, orderNumber string) error
}

// CouponService adds coupon administration on top of validation.
type CouponService interface {
	CouponValidator
	Validate(ctx context.Context, code string) (CouponValidation, error)
	Create(ctx context.Context, cmd CreateCouponCommand) (domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)
}

// CouponValidation is the public view of a coupon check.
type CouponValidation struct {
	Valid              bool
	Code               string
	DiscountPercentage float64
	ValidUntil         time.Time
}

// CreateCouponCommand describes a new coupon.
type CreateCouponCommand struct {
	Code               string
	DiscountPercentage float64
	ValidUntil         time.Time
}

// OrderNumberGenerator produces unique order numbers.
type OrderNumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// StockLedger applies the three counter transitions.
type StockLedger interface {
	ReserveAndConfirmSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
	ReleaseReservation(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
	ConfirmReservedSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error)
}

// PaymentGateway is satisfied by *payments.Manager.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, provider string, req payments.PreferenceRequest) (payments.Preference, error)
	GetPayment(ctx context.Context, provider string, paymentID string) (payments.Payment, error)
}

// Locker grants short exclusive leases. ok is false when someone else holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context), ok bool, err error)
}

// PreferenceService builds gateway checkout preferences.
type PreferenceService interface {
	CreatePreference(ctx context.Context, cmd CreatePreferenceCommand) (PreferenceResult, error)
}

// CreatePreferenceCommand is the checkout request.
type CreatePreferenceCommand struct {
	UserID     string
	Email      string
	AddressID  string
	OrderType  domain.OrderType
	CouponCode string
	Provider   string
}

// PreferenceResult is returned to the checkout client.
type PreferenceResult struct {
	PreferenceID   string
	InitURL        string
	SandboxInitURL string
	OrderNumber    string
	Provider       string
	Total          float64
}

// Reconciler processes gateway notifications.
type Reconciler interface {
	HandleNotification(ctx context.Context, n Notification) (ReconcileResult, error)
}

// Notification is the unauthenticated hint delivered by a gateway.
type Notification struct {
	Provider  string
	Topic     string
	PaymentID string
}

// ReconcileOutcome labels how a notification was resolved.
type ReconcileOutcome string

const (
	OutcomeCreated             ReconcileOutcome = "created"
	OutcomeDuplicate           ReconcileOutcome = "duplicate"
	OutcomeStatusUpdated       ReconcileOutcome = "status_updated"
	OutcomeIgnoredStatus       ReconcileOutcome = "ignored_status"
	OutcomeIgnoredTopic        ReconcileOutcome = "ignored_topic"
	OutcomeAmountMismatch      ReconcileOutcome = "amount_mismatch"
	OutcomeMissingMetadata     ReconcileOutcome = "missing_metadata"
	OutcomeNeedsReconciliation ReconcileOutcome = "needs_reconciliation"
	OutcomeFailed              ReconcileOutcome = "failed"
)

// ReconcileResult reports the outcome and the affected order, if any.
type ReconcileResult struct {
	Outcome       ReconcileOutcome
	OrderID       string
	OrderNumber   string
	PaymentID     string
	PaymentStatus domain.PaymentStatus
}

// RefundService drives the per-item return workflow.
type RefundService interface {
	RequestRefund(ctx context.Context, actor Actor, orderID, itemID string) (domain.Order, error)
	RefundableItems(ctx context.Context, actor Actor, orderID string) ([]domain.OrderItem, error)
}

// OrderService exposes order queries and administrative transitions.
type OrderService interface {
	Get(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	GetByNumber(ctx context.Context, actor Actor, orderNumber string) (domain.Order, error)
	ListByUser(ctx context.Context, actor Actor, userID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	Cancel(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
}

// UpdateOrderStatusCommand carries an administrative status change.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         domain.OrderStatus
	DeliveryStatus domain.DeliveryStatus
}

// SystemService aggregates health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Logger is the structured event sink shared by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}
