package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes preference creation for authenticated users.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	preferences services.PreferenceService
	limiter     rateLimiter
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimit caps preference creation per user. Zero values disable the limit.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) { h.limiter = newWindowLimiter(limit, window, clock) }
}

// WithCheckoutIdempotency wraps preference creation with mw, after authentication.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) { h.idempotency = mw }
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, preferences services.PreferenceService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, preferences: preferences}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers POST /checkout/preference under the orders group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/checkout/preference", h.createPreference)
}

type createPreferenceRequest struct {
	AddressID  string `json:"addressId"`
	OrderType  string `json:"orderType"`
	CouponCode string `json:"couponCode"`
	Provider   string `json:"provider"`
}

type createPreferenceResponse struct {
	PreferenceID   string  `json:"preferenceId"`
	InitURL        string  `json:"initUrl"`
	SandboxInitURL string  `json:"sandboxInitUrl,omitempty"`
	OrderNumber    string  `json:"orderNumber"`
	Provider       string  `json:"provider"`
	Total          float64 `json:"total"`
}

func (h *CheckoutHandlers) createPreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.preferences == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; retry shortly", http.StatusTooManyRequests))
		return
	}

	var req createPreferenceRequest
	if !decodeJSONBody(ctx, w, r, maxCheckoutRequestBody, &req) {
		return
	}

	result, err := h.preferences.CreatePreference(ctx, services.CreatePreferenceCommand{
		UserID:     identity.UID,
		Email:      identity.Email,
		AddressID:  strings.TrimSpace(req.AddressID),
		OrderType:  domain.OrderType(strings.ToLower(strings.TrimSpace(req.OrderType))),
		CouponCode: strings.TrimSpace(req.CouponCode),
		Provider:   strings.ToLower(strings.TrimSpace(req.Provider)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, createPreferenceResponse{
		PreferenceID:   result.PreferenceID,
		InitURL:        result.InitURL,
		SandboxInitURL: result.SandboxInitURL,
		OrderNumber:    result.OrderNumber,
		Provider:       result.Provider,
		Total:          result.Total,
	})
}
