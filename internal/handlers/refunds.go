package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/services"
)

// RefundHandlers exposes the per-item return workflow.
type RefundHandlers struct {
	authn     *auth.Authenticator
	refunds   services.RefundService
	adminRole string
}

// NewRefundHandlers constructs refund handlers.
func NewRefundHandlers(authn *auth.Authenticator, refunds services.RefundService, adminRole string) *RefundHandlers {
	return &RefundHandlers{authn: authn, refunds: refunds, adminRole: defaultRole(adminRole)}
}

// Routes registers refund endpoints under the orders group.
func (h *RefundHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/refund/{id}/{itemId}", h.requestRefund)
	group.Get("/refundable/{id}", h.refundableItems)
}

type refundableItemsResponse struct {
	OrderID string              `json:"orderId"`
	Items   []orderItemResponse `json:"items"`
}

func (h *RefundHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.refunds.RequestRefund(ctx, actorFor(identity, h.adminRole), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *RefundHandlers) refundableItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")
	items, err := h.refunds.RefundableItems(ctx, actorFor(identity, h.adminRole), orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, refundableItemsResponse{OrderID: orderID, Items: toOrderItemResponses(items)})
}
