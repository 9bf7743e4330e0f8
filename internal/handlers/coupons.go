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

const maxCouponBodySize = 2 * 1024

// CouponHandlers exposes coupon validation and administration.
type CouponHandlers struct {
	authn     *auth.Authenticator
	coupons   services.CouponService
	adminRole string
}

// NewCouponHandlers constructs coupon handlers.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService, adminRole string) *CouponHandlers {
	return &CouponHandlers{authn: authn, coupons: coupons, adminRole: defaultRole(adminRole)}
}

// Routes registers the /coupons endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	user, admin := r, r
	if h.authn != nil {
		user = r.With(h.authn.RequireAuth())
		admin = r.With(h.authn.RequireAuth(h.adminRole))
	}
	user.Post("/validate", h.validate)
	admin.Post("/", h.create)
	admin.Get("/", h.list)
}

type validateCouponRequest struct {
	Code string `json:"code"`
}

type couponValidationResponse struct {
	Valid              bool    `json:"valid"`
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discountPercentage,omitempty"`
	ValidUntil         string  `json:"validUntil,omitempty"`
}

type createCouponRequest struct {
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discountPercentage"`
	ValidUntil         string  `json:"validUntil"`
}

type couponResponse struct {
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discountPercentage"`
	ValidUntil         string  `json:"validUntil"`
	Used               bool    `json:"used"`
	UsedBy             string  `json:"usedBy,omitempty"`
	UsedOrder          string  `json:"usedOrder,omitempty"`
	UsedAt             string  `json:"usedAt,omitempty"`
	CreatedAt          string  `json:"createdAt,omitempty"`
}

func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	var req validateCouponRequest
	if !decodeJSONBody(ctx, w, r, maxCouponBodySize, &req) {
		return
	}
	result, err := h.coupons.Validate(ctx, req.Code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := couponValidationResponse{Valid: result.Valid, Code: result.Code}
	if result.Valid {
		resp.DiscountPercentage = result.DiscountPercentage
		resp.ValidUntil = formatTime(result.ValidUntil)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CouponHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	if _, ok := requireAdmin(ctx, w, h.adminRole); !ok {
		return
	}
	var req createCouponRequest
	if !decodeJSONBody(ctx, w, r, maxCouponBodySize, &req) {
		return
	}
	validUntil, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ValidUntil))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "validUntil must be an RFC3339 timestamp", http.StatusBadRequest))
		return
	}
	coupon, err := h.coupons.Create(ctx, services.CreateCouponCommand{
		Code:               req.Code,
		DiscountPercentage: req.DiscountPercentage,
		ValidUntil:         validUntil,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toCouponResponse(coupon))
}

func (h *CouponHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	if _, ok := requireAdmin(ctx, w, h.adminRole); !ok {
		return
	}
	coupons, err := h.coupons.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	out := make([]couponResponse, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCouponResponse(c))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"coupons": out})
}

func (h *CouponHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.coupons == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func toCouponResponse(c domain.Coupon) couponResponse {
	resp := couponResponse{
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		ValidUntil:         formatTime(c.ValidUntil),
		Used:               c.Used,
		UsedBy:             c.UsedBy,
		UsedOrder:          c.UsedOrder,
		CreatedAt:          formatTime(c.CreatedAt),
	}
	if c.UsedAt != nil {
		resp.UsedAt = formatTime(*c.UsedAt)
	}
	return resp
}
