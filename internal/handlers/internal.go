package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/repositories"
	"github.com/tienda-online/api/internal/services"
)

const (
	maxInternalBodySize = 4 * 1024
	defaultSweepLimit   = 50
)

// InternalHandlers serves scheduler and operator endpoints mounted under /internal.
// Authentication is applied by the group middleware.
type InternalHandlers struct {
	reconciler services.Reconciler
	orders     services.OrderService
}

func NewInternalHandlers(reconciler services.Reconciler, orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{reconciler: reconciler, orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconcile", h.reconcile)
	r.Post("/reconcile/sweep", h.sweep)
	r.Get("/orders/flagged", h.flagged)
}

type internalReconcileRequest struct {
	Provider  string `json:"provider"`
	PaymentID string `json:"paymentId"`
}

type internalReconcileResponse struct {
	Provider      string `json:"provider"`
	PaymentID     string `json:"paymentId"`
	Outcome       string `json:"outcome"`
	OrderID       string `json:"orderId,omitempty"`
	OrderNumber   string `json:"orderNumber,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Error         string `json:"error,omitempty"`
}

type internalSweepResponse struct {
	Scanned int                         `json:"scanned"`
	Skipped int                         `json:"skipped"`
	Results []internalReconcileResponse `json:"results"`
}

// reconcile replays a single payment through the reconciler, as a webhook would.
func (h *InternalHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciler_unavailable", "reconciler unavailable", http.StatusServiceUnavailable))
		return
	}
	var req internalReconcileRequest
	if !decodeJSONBody(ctx, w, r, maxInternalBodySize, &req) {
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = payments.ProviderMercadoPago
	}
	n := services.Notification{Provider: provider, Topic: "payment", PaymentID: strings.TrimSpace(req.PaymentID)}
	result, err := h.reconciler.HandleNotification(ctx, n)
	if err != nil && result.Outcome == "" {
		writeServiceError(ctx, w, err)
		return
	}
	logReplay(r, n, result)
	writeJSONResponse(w, http.StatusOK, toInternalReconcileResponse(n, result, err))
}

// sweep replays the payment of every order flagged for reconciliation. Per-order failures
// are reported in the response; the sweep itself only fails when listing does.
func (h *InternalHandlers) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciler_unavailable", "reconciler unavailable", http.StatusServiceUnavailable))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if limit == 0 {
		limit = defaultSweepLimit
	}
	orders, err := h.orders.List(ctx, repositories.OrderListFilter{NeedsReconciliation: true, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := internalSweepResponse{Scanned: len(orders), Results: make([]internalReconcileResponse, 0, len(orders))}
	for _, order := range orders {
		if strings.TrimSpace(order.PaymentID) == "" {
			resp.Skipped++
			continue
		}
		n := services.Notification{Provider: sweepProvider(order), Topic: "payment", PaymentID: order.PaymentID}
		result, err := h.reconciler.HandleNotification(ctx, n)
		logReplay(r, n, result)
		resp.Results = append(resp.Results, toInternalReconcileResponse(n, result, err))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *InternalHandlers) flagged(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	orders, err := h.orders.List(ctx, repositories.OrderListFilter{NeedsReconciliation: true, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: toOrderResponses(orders)})
}

func sweepProvider(order domain.Order) string {
	if gateway := strings.ToLower(strings.TrimSpace(order.PaymentGateway)); gateway != "" {
		return gateway
	}
	return payments.ProviderMercadoPago
}

func toInternalReconcileResponse(n services.Notification, result services.ReconcileResult, err error) internalReconcileResponse {
	resp := internalReconcileResponse{
		Provider:      n.Provider,
		PaymentID:     n.PaymentID,
		Outcome:       string(result.Outcome),
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		PaymentStatus: string(result.PaymentStatus),
	}
	if resp.Outcome == "" {
		resp.Outcome = string(services.OutcomeFailed)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func logReplay(r *http.Request, n services.Notification, result services.ReconcileResult) {
	fields := []zap.Field{
		zap.String("provider", n.Provider),
		zap.String("paymentId", n.PaymentID),
		zap.String("outcome", string(result.Outcome)),
	}
	if caller, ok := auth.ServiceIdentityFromContext(r.Context()); ok {
		fields = append(fields, zap.String("caller", caller.Email))
	}
	observability.FromContext(r.Context()).Info("internal reconcile", fields...)
}
