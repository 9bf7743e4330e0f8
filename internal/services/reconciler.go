package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/repositories"
)

const reconcilerMeterName = "github.com/tienda-online/api/internal/services"

// ReconcilerDeps bundles collaborators for the webhook reconciler.
type ReconcilerDeps struct {
	Gateway   PaymentGateway
	Orders    repositories.OrderRepository
	Carts     repositories.CartRepository
	Snapshots CartSnapshotReader
	Coupons   CouponValidator
	Ledger    StockLedger
	Alerts    AlertPublisher
	// Locker is optional; the unique order-number index stays authoritative.
	Locker Locker
	Meter  metric.Meter
	Clock  func() time.Time
	Logger Logger
	NewID  func() string
}

type reconciler struct {
	gateway   PaymentGateway
	orders    repositories.OrderRepository
	carts     repositories.CartRepository
	snapshots CartSnapshotReader
	coupons   CouponValidator
	ledger    StockLedger
	alerts    AlertPublisher
	locker    Locker
	counter   metric.Int64Counter
	now       func() time.Time
	logger    Logger
	newID     func() string
}

// NewReconciler constructs the webhook reconciler.
func NewReconciler(deps ReconcilerDeps) (Reconciler, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("reconciler: payment gateway is required")
	case deps.Orders == nil:
		return nil, errors.New("reconciler: order repository is required")
	case deps.Carts == nil:
		return nil, errors.New("reconciler: cart repository is required")
	case deps.Snapshots == nil:
		return nil, errors.New("reconciler: cart snapshot reader is required")
	case deps.Coupons == nil:
		return nil, errors.New("reconciler: coupon validator is required")
	case deps.Ledger == nil:
		return nil, errors.New("reconciler: stock ledger is required")
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = nopAlertPublisher{}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(reconcilerMeterName)
	}
	counter, err := meter.Int64Counter("reconciler.notifications",
		metric.WithDescription("Gateway notifications processed, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("reconciler: create counter: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &reconciler{
		gateway:   deps.Gateway,
		orders:    deps.Orders,
		carts:     deps.Carts,
		snapshots: deps.Snapshots,
		coupons:   deps.Coupons,
		ledger:    deps.Ledger,
		alerts:    alerts,
		locker:    deps.Locker,
		counter:   counter,
		now:       utcClock(deps.Clock),
		logger:    logger,
		newID:     newID,
	}, nil
}

// HandleNotification runs receive, verify, idempotency check, recalculation, amount
// validation and commit. Only malformed input returns ErrValidation; every other error is
// meant to be acknowledged to the gateway after it has been logged and alerted.
func (r *reconciler) HandleNotification(ctx context.Context, n Notification) (result ReconcileResult, err error) {
	defer func() {
		outcome := result.Outcome
		if outcome == "" {
			outcome = OutcomeFailed
		}
		r.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
			attribute.String("gateway", n.Provider),
		))
	}()

	topic := strings.ToLower(strings.TrimSpace(n.Topic))
	if topic != "" && topic != "payment" {
		r.logger(ctx, "reconcile.topic_skipped", map[string]any{"topic": topic, "paymentId": n.PaymentID})
		return ReconcileResult{Outcome: OutcomeIgnoredTopic, PaymentID: n.PaymentID}, nil
	}
	paymentID := strings.TrimSpace(n.PaymentID)
	if paymentID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: payment id is required", ErrValidation)
	}

	payment, err := r.gateway.GetPayment(ctx, n.Provider, paymentID)
	if err != nil {
		r.logger(ctx, "reconcile.gateway_error", map[string]any{"paymentId": paymentID, "provider": n.Provider, "error": err.Error()})
		r.raise(ctx, Alert{
			Kind:      AlertGatewayError,
			Severity:  SeverityWarning,
			PaymentID: paymentID,
			Gateway:   n.Provider,
			Message:   "payment lookup failed",
			Details:   map[string]any{"error": err.Error()},
		})
		return ReconcileResult{PaymentID: paymentID}, fmt.Errorf("%w: fetch payment %s: %v", ErrUpstream, paymentID, err)
	}

	status := domain.ParsePaymentStatus(payment.Status)
	result = ReconcileResult{PaymentID: payment.ID, PaymentStatus: status}
	if result.PaymentID == "" {
		result.PaymentID = paymentID
	}

	orderNumber := strings.TrimSpace(payment.ExternalReference)
	if orderNumber == "" {
		orderNumber = strings.TrimSpace(payment.Metadata[payments.MetaOrderNumber])
	}
	result.OrderNumber = orderNumber
	if orderNumber == "" {
		if status != domain.PaymentStatusApproved {
			result.Outcome = OutcomeIgnoredStatus
			return result, nil
		}
		return r.missingMetadata(ctx, result, payment, "payment has no external reference")
	}

	existing, err := r.orders.FindByNumber(ctx, orderNumber)
	switch {
	case err == nil:
		return r.applyToExisting(ctx, result, existing, payment, status)
	case repositories.IsNotFound(err):
	default:
		r.logger(ctx, "reconcile.lookup_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return result, fmt.Errorf("find order %s: %w", orderNumber, err)
	}

	if status != domain.PaymentStatusApproved {
		r.logger(ctx, "reconcile.status_skipped", map[string]any{"orderNumber": orderNumber, "paymentId": result.PaymentID, "status": string(status)})
		result.Outcome = OutcomeIgnoredStatus
		return result, nil
	}

	if r.locker != nil {
		unlock, ok, lockErr := r.locker.TryLock(ctx, "order:"+orderNumber)
		switch {
		case lockErr != nil:
			r.logger(ctx, "reconcile.lock_error", map[string]any{"orderNumber": orderNumber, "error": lockErr.Error()})
		case !ok:
			r.logger(ctx, "reconcile.lock_conflict", map[string]any{"orderNumber": orderNumber})
			result.Outcome = OutcomeDuplicate
			return result, nil
		default:
			defer unlock(ctx)
		}
	}

	return r.createOrder(ctx, result, payment)
}

func (r *reconciler) applyToExisting(ctx context.Context, result ReconcileResult, order domain.Order, payment payments.Payment, status domain.PaymentStatus) (ReconcileResult, error) {
	result.OrderID = order.ID
	result.Outcome = OutcomeDuplicate

	if status == domain.PaymentStatusApproved || status == order.PaymentStatus {
		r.logger(ctx, "reconcile.duplicate_skipped", map[string]any{"orderNumber": order.OrderNumber, "paymentId": result.PaymentID})
		return result, nil
	}
	switch status {
	case domain.PaymentStatusRefunded, domain.PaymentStatusChargedBack, domain.PaymentStatusCancelled, domain.PaymentStatusRejected:
	default:
		return result, nil
	}

	now := r.now()
	previous := order.PaymentStatus
	domain.ApplyPaymentStatus(&order, status, now)
	order.PaymentDetails.StatusDetail = payment.StatusDetail
	if err := r.orders.Update(ctx, order); err != nil {
		r.logger(ctx, "reconcile.status_update_failed", map[string]any{"orderNumber": order.OrderNumber, "error": err.Error()})
		return result, fmt.Errorf("update order %s: %w", order.OrderNumber, err)
	}
	r.logger(ctx, "reconcile.status_updated", map[string]any{
		"orderNumber": order.OrderNumber,
		"from":        string(previous),
		"to":          string(status),
	})
	result.Outcome = OutcomeStatusUpdated
	return result, nil
}

func (r *reconciler) createOrder(ctx context.Context, result ReconcileResult, payment payments.Payment) (ReconcileResult, error) {
	meta := payment.Metadata
	userID := strings.TrimSpace(meta[payments.MetaUserID])
	if userID == "" {
		return r.missingMetadata(ctx, result, payment, "metadata has no user id")
	}
	if metaNumber := strings.TrimSpace(meta[payments.MetaOrderNumber]); metaNumber != "" && metaNumber != result.OrderNumber {
		return r.missingMetadata(ctx, result, payment, "metadata order number does not match external reference")
	}
	orderType := domain.OrderType(strings.TrimSpace(meta[payments.MetaOrderType]))
	if orderType == "" {
		orderType = domain.OrderTypeStandard
	}

	snapshot, err := r.snapshots.Snapshot(ctx, userID)
	if err != nil {
		if r.committedConcurrently(ctx, &result) {
			return result, nil
		}
		r.logger(ctx, "reconcile.cart_error", map[string]any{"orderNumber": result.OrderNumber, "userId": userID, "error": err.Error()})
		r.raise(ctx, Alert{
			Kind:        AlertCartUnavailable,
			Severity:    SeverityCritical,
			OrderNumber: result.OrderNumber,
			PaymentID:   result.PaymentID,
			Gateway:     payment.Provider,
			UserID:      userID,
			Message:     "approved payment but cart could not be priced",
			Details:     map[string]any{"error": err.Error()},
		})
		result.Outcome = OutcomeFailed
		return result, err
	}

	coupon, err := r.coupons.FindForOrder(ctx, meta[payments.MetaCouponCode], result.OrderNumber)
	if err != nil {
		result.Outcome = OutcomeFailed
		return result, err
	}
	now := r.now()
	quote := domain.QuoteForOrder(snapshot.Lines, coupon, result.OrderNumber, now)

	// The coupon is claimed before the order exists. Losing the claim reprices without it.
	claimed := ""
	if quote.CouponCode != "" && domain.AmountsMatch(payment.TransactionAmount, quote.Total) {
		switch err := r.coupons.MarkUsed(ctx, quote.CouponCode, userID, result.OrderNumber); {
		case err == nil:
			claimed = quote.CouponCode
		case errors.Is(err, ErrCouponAlreadyUsed), errors.Is(err, ErrCouponNotFound):
			r.logger(ctx, "reconcile.coupon_lost", map[string]any{"orderNumber": result.OrderNumber, "couponCode": quote.CouponCode})
			quote = domain.Quote(snapshot.Lines, nil, now)
		default:
			r.logger(ctx, "reconcile.coupon_error", map[string]any{"orderNumber": result.OrderNumber, "couponCode": quote.CouponCode, "error": err.Error()})
			result.Outcome = OutcomeFailed
			return result, fmt.Errorf("claim coupon %s: %w", quote.CouponCode, err)
		}
	}

	if !domain.AmountsMatch(payment.TransactionAmount, quote.Total) {
		if r.committedConcurrently(ctx, &result) {
			return result, nil
		}
		r.logger(ctx, "reconcile.amount_mismatch", map[string]any{
			"orderNumber": result.OrderNumber,
			"paymentId":   result.PaymentID,
			"paid":        payment.TransactionAmount,
			"expected":    quote.Total,
		})
		r.raise(ctx, Alert{
			Kind:        AlertAmountMismatch,
			Severity:    SeverityCritical,
			OrderNumber: result.OrderNumber,
			PaymentID:   result.PaymentID,
			Gateway:     payment.Provider,
			UserID:      userID,
			Message:     "paid amount differs from recomputed total",
			Details:     map[string]any{"paid": payment.TransactionAmount, "expected": quote.Total, "couponCode": quote.CouponCode},
		})
		result.Outcome = OutcomeAmountMismatch
		return result, fmt.Errorf("%w: paid %.2f, expected %.2f", ErrAmountMismatch, payment.TransactionAmount, quote.Total)
	}

	order := r.buildOrder(result, payment, userID, orderType, quote, now)
	created, err := r.orders.Create(ctx, order)
	if err != nil {
		if repositories.IsConflict(err) {
			r.logger(ctx, "reconcile.duplicate_conflict", map[string]any{"orderNumber": result.OrderNumber})
			result.Outcome = OutcomeDuplicate
			return result, nil
		}
		r.logger(ctx, "reconcile.commit_failed", map[string]any{"orderNumber": result.OrderNumber, "error": err.Error()})
		details := map[string]any{"error": err.Error()}
		if claimed != "" {
			if relErr := r.coupons.ReleaseClaim(ctx, claimed, result.OrderNumber); relErr != nil {
				r.logger(ctx, "reconcile.coupon_release_failed", map[string]any{"orderNumber": result.OrderNumber, "couponCode": claimed, "error": relErr.Error()})
				details["couponHeld"] = claimed
			}
		}
		r.raise(ctx, Alert{
			Kind:        AlertCommitFailed,
			Severity:    SeverityCritical,
			OrderNumber: result.OrderNumber,
			PaymentID:   result.PaymentID,
			Gateway:     payment.Provider,
			UserID:      userID,
			Message:     "approved payment but order could not be persisted",
			Details:     details,
		})
		result.Outcome = OutcomeFailed
		return result, fmt.Errorf("create order %s: %w", result.OrderNumber, err)
	}
	result.OrderID = created.ID

	notes := r.settle(ctx, &created)
	if len(notes) == 0 {
		r.logger(ctx, "reconcile.order_created", map[string]any{
			"orderNumber": created.OrderNumber,
			"orderId":     created.ID,
			"total":       created.TotalAmount,
		})
		result.Outcome = OutcomeCreated
		return result, nil
	}

	created.Metadata.NeedsReconciliation = true
	created.Metadata.ReconciliationNotes = append(created.Metadata.ReconciliationNotes, notes...)
	created.UpdatedAt = r.now()
	if err := r.orders.Update(ctx, created); err != nil {
		r.logger(ctx, "reconcile.flag_failed", map[string]any{"orderNumber": created.OrderNumber, "error": err.Error()})
	}
	r.raise(ctx, Alert{
		Kind:        AlertCommitIncomplete,
		Severity:    SeverityCritical,
		OrderNumber: created.OrderNumber,
		PaymentID:   result.PaymentID,
		Gateway:     payment.Provider,
		UserID:      userID,
		Message:     "order created but post-commit steps failed",
		Details:     map[string]any{"notes": notes},
	})
	result.Outcome = OutcomeNeedsReconciliation
	return result, nil
}

// settle runs the post-persist steps: stock, then cart. Failures become notes.
func (r *reconciler) settle(ctx context.Context, order *domain.Order) []string {
	var notes []string
	for _, item := range order.Items {
		if _, err := r.ledger.ReserveAndConfirmSale(ctx, item.ProductID, item.Quantity); err != nil {
			notes = append(notes, fmt.Sprintf("stock %s x%d: %v", item.ProductID, item.Quantity, err))
			order.Metadata.StockConfirmed = false
		}
	}
	if err := r.carts.ClearCart(ctx, order.UserID); err != nil {
		notes = append(notes, fmt.Sprintf("clear cart: %v", err))
	}
	for _, note := range notes {
		r.logger(ctx, "reconcile.settle_failed", map[string]any{"orderNumber": order.OrderNumber, "note": note})
	}
	return notes
}

func (r *reconciler) buildOrder(result ReconcileResult, payment payments.Payment, userID string, orderType domain.OrderType, quote domain.PriceQuote, now time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		items = append(items, domain.OrderItem{
			ID:         r.newID(),
			ProductID:  line.ProductID,
			Name:       line.Name,
			Price:      line.UnitPrice,
			Quantity:   line.Quantity,
			Size:       line.Size,
			Image:      line.Image,
			ItemStatus: domain.ItemStatusPending,
		})
	}
	confirmed := now
	processed := payment.ApprovedAt
	if processed == nil {
		processed = &confirmed
	}
	return domain.Order{
		ID:             r.newID(),
		OrderNumber:    result.OrderNumber,
		UserID:         userID,
		AddressID:      strings.TrimSpace(payment.Metadata[payments.MetaAddressID]),
		OrderType:      orderType,
		Items:          items,
		SubtotalAmount: quote.Subtotal,
		DiscountAmount: quote.Discount,
		TotalAmount:    quote.Total,
		CouponCode:     quote.CouponCode,
		Status:         domain.OrderStatusProcessing,
		PaymentStatus:  domain.PaymentStatusApproved,
		DeliveryStatus: domain.DeliveryStatusPending,
		PaymentID:      result.PaymentID,
		PaymentGateway: payment.Provider,
		PaymentDetails: domain.PaymentDetails{
			StatusDetail:      payment.StatusDetail,
			TransactionAmount: payment.TransactionAmount,
			Currency:          payment.Currency,
			PaymentMethodID:   payment.PaymentMethodID,
			PaymentTypeID:     payment.PaymentTypeID,
			ProcessedAt:       processed,
		},
		Metadata: domain.OrderMetadata{
			StockReserved:    true,
			ReservedAt:       &confirmed,
			StockConfirmed:   true,
			ConfirmedAt:      &confirmed,
			PaymentConfirmed: true,
		},
		ConfirmedAt: &confirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// committedConcurrently reports whether another delivery persisted the order after the
// idempotency check ran. Its commit clears the cart and claims the coupon, so the live
// inputs no longer price the same total.
func (r *reconciler) committedConcurrently(ctx context.Context, result *ReconcileResult) bool {
	existing, err := r.orders.FindByNumber(ctx, result.OrderNumber)
	if err != nil {
		return false
	}
	r.logger(ctx, "reconcile.duplicate_late", map[string]any{"orderNumber": result.OrderNumber, "orderId": existing.ID})
	result.OrderID = existing.ID
	result.Outcome = OutcomeDuplicate
	return true
}

func (r *reconciler) missingMetadata(ctx context.Context, result ReconcileResult, payment payments.Payment, reason string) (ReconcileResult, error) {
	r.logger(ctx, "reconcile.metadata_error", map[string]any{"paymentId": result.PaymentID, "orderNumber": result.OrderNumber, "reason": reason})
	r.raise(ctx, Alert{
		Kind:        AlertMissingMetadata,
		Severity:    SeverityCritical,
		OrderNumber: result.OrderNumber,
		PaymentID:   result.PaymentID,
		Gateway:     payment.Provider,
		Message:     reason,
	})
	result.Outcome = OutcomeMissingMetadata
	return result, fmt.Errorf("%w: %s", ErrMissingMetadata, reason)
}

func (r *reconciler) raise(ctx context.Context, alert Alert) {
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = r.now()
	}
	if err := r.alerts.PublishAlert(context.WithoutCancel(ctx), alert); err != nil {
		r.logger(ctx, "reconcile.alert_failed", map[string]any{"kind": string(alert.Kind), "error": err.Error()})
	}
}
