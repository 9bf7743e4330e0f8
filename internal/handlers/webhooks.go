package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

type stripeEventParser func(payload []byte, signatureHeader, secret string) (payments.StripeNotification, error)

// WebhookHandlers receives gateway notifications. Every processed notification is
// acknowledged with 200; only malformed or unauthenticated requests are rejected.
type WebhookHandlers struct {
	reconciler   services.Reconciler
	mpSignature  *auth.GatewaySignatureValidator
	stripeSecret string
	parseStripe  stripeEventParser
}

// WebhookOption customises WebhookHandlers.
type WebhookOption func(*WebhookHandlers)

// WithMercadoPagoSignature enables x-signature verification on the MercadoPago endpoint.
func WithMercadoPagoSignature(v *auth.GatewaySignatureValidator) WebhookOption {
	return func(h *WebhookHandlers) { h.mpSignature = v }
}

// WithStripeWebhookSecret enables the Stripe endpoint.
func WithStripeWebhookSecret(secret string) WebhookOption {
	return func(h *WebhookHandlers) { h.stripeSecret = strings.TrimSpace(secret) }
}

func withStripeEventParser(p stripeEventParser) WebhookOption {
	return func(h *WebhookHandlers) {
		if p != nil {
			h.parseStripe = p
		}
	}
}

// NewWebhookHandlers constructs webhook handlers over the reconciler.
func NewWebhookHandlers(reconciler services.Reconciler, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{reconciler: reconciler, parseStripe: payments.ParseStripeEvent}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the gateway webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.mpSignature.Middleware(mercadoPagoDataID)).Post("/mercadopago", h.mercadoPago)
	r.Post("/stripe", h.stripe)
}

type webhookAck struct {
	Received    bool   `json:"received"`
	Outcome     string `json:"outcome,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

type mercadoPagoBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func (p mercadoPagoBody) dataID() string {
	if len(p.Data.ID) == 0 || string(p.Data.ID) == "null" {
		return ""
	}
	return strings.Trim(strings.TrimSpace(string(p.Data.ID)), `"`)
}

// mercadoPagoDataID returns the signed resource id. Query parameters win; otherwise the
// body is buffered, parsed for data.id and restored for the handler.
func mercadoPagoDataID(r *http.Request) string {
	q := r.URL.Query()
	if id := firstNonEmpty(q.Get("data.id"), q.Get("id")); id != "" {
		return id
	}
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) > maxWebhookBodySize {
		return ""
	}
	var payload mercadoPagoBody
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.dataID()
}

func (h *WebhookHandlers) mercadoPago(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	q := r.URL.Query()
	topic := strings.TrimSpace(q.Get("topic"))
	if topic == "" {
		topic = strings.TrimSpace(q.Get("type"))
	}
	paymentID := mercadoPagoDataID(r)

	if topic == "" || paymentID == "" {
		body, err := readLimitedBody(r, maxWebhookBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		if len(body) > 0 {
			var payload mercadoPagoBody
			if err := json.Unmarshal(body, &payload); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification body must be valid JSON", http.StatusBadRequest))
				return
			}
			if topic == "" {
				topic = firstNonEmpty(payload.Type, payload.Topic)
			}
			if paymentID == "" {
				paymentID = payload.dataID()
			}
		}
	}
	if strings.TrimSpace(paymentID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id is required", http.StatusBadRequest))
		return
	}

	h.reconcile(w, r, services.Notification{Provider: payments.ProviderMercadoPago, Topic: topic, PaymentID: paymentID})
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil || h.stripeSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "stripe webhooks are not configured", http.StatusServiceUnavailable))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read body", http.StatusBadRequest))
		return
	}
	note, err := h.parseStripe(payload, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "stripe event could not be verified", http.StatusBadRequest))
		return
	}
	if note.PaymentIntentID == "" {
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Outcome: string(services.OutcomeIgnoredTopic)})
		return
	}
	h.reconcile(w, r, services.Notification{Provider: payments.ProviderStripe, Topic: "payment", PaymentID: note.PaymentIntentID})
}

func (h *WebhookHandlers) reconcile(w http.ResponseWriter, r *http.Request, n services.Notification) {
	ctx := r.Context()
	result, err := h.reconciler.HandleNotification(ctx, n)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		observability.FromContext(ctx).Warn("webhook processed with error",
			zap.String("provider", n.Provider),
			zap.String("paymentId", n.PaymentID),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(err),
		)
	}
	outcome := result.Outcome
	if outcome == "" {
		outcome = services.OutcomeFailed
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Outcome: string(outcome), OrderNumber: result.OrderNumber})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
