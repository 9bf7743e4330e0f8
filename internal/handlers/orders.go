package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/repositories"
	"github.com/tienda-online/api/internal/services"
)

const maxOrderStatusBodySize = 4 * 1024

// OrderHandlers exposes order queries and transitions.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	adminRole string
}

// NewOrderHandlers constructs order handlers. adminRole defaults to "admin".
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, adminRole string) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, adminRole: defaultRole(adminRole)}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	user, admin := r, r
	if h.authn != nil {
		user = r.With(h.authn.RequireAuth())
		admin = r.With(h.authn.RequireAuth(h.adminRole))
	}
	admin.Get("/", h.listOrders)
	admin.Patch("/{id}/status", h.updateStatus)
	user.Get("/user/{userId}", h.listUserOrders)
	user.Get("/{id}", h.getOrder)
	user.Get("/{id}/onumber", h.getOrderByNumber)
	user.Delete("/{id}", h.cancelOrder)
}

type orderResponse struct {
	ID                  string              `json:"id"`
	OrderNumber         string              `json:"orderNumber"`
	UserID              string              `json:"userId"`
	AddressID           string              `json:"addressId,omitempty"`
	OrderType           string              `json:"orderType"`
	Items               []orderItemResponse `json:"items"`
	SubtotalAmount      float64             `json:"subtotalAmount"`
	DiscountAmount      float64             `json:"discountAmount"`
	TotalAmount         float64             `json:"totalAmount"`
	CouponCode          string              `json:"couponCode,omitempty"`
	Status              string              `json:"status"`
	PaymentStatus       string              `json:"paymentStatus"`
	DeliveryStatus      string              `json:"deliveryStatus"`
	PaymentID           string              `json:"paymentId,omitempty"`
	PaymentGateway      string              `json:"paymentGateway,omitempty"`
	NeedsReconciliation bool                `json:"needsReconciliation,omitempty"`
	ReconciliationNotes []string            `json:"reconciliationNotes,omitempty"`
	ConfirmedAt         string              `json:"confirmedAt,omitempty"`
	CreatedAt           string              `json:"createdAt"`
	UpdatedAt           string              `json:"updatedAt"`
}

type orderItemResponse struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"productId"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Size       string  `json:"size,omitempty"`
	Image      string  `json:"image,omitempty"`
	ItemStatus string  `json:"itemStatus"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type updateOrderStatusRequest struct {
	Status         string `json:"status"`
	DeliveryStatus string `json:"deliveryStatus"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	if _, ok := requireAdmin(ctx, w, h.adminRole); !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	orders, err := h.orders.List(ctx, repositories.OrderListFilter{
		Status: domain.OrderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: toOrderResponses(orders)})
}

func (h *OrderHandlers) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	orders, err := h.orders.ListByUser(ctx, actorFor(identity, h.adminRole), chi.URLParam(r, "userId"), limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: toOrderResponses(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.Get(ctx, actorFor(identity, h.adminRole), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetByNumber(ctx, actorFor(identity, h.adminRole), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.Cancel(ctx, actorFor(identity, h.adminRole), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	if _, ok := requireAdmin(ctx, w, h.adminRole); !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderStatusBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        chi.URLParam(r, "id"),
		Status:         domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		DeliveryStatus: domain.DeliveryStatus(strings.ToLower(strings.TrimSpace(req.DeliveryStatus))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:                  order.ID,
		OrderNumber:         order.OrderNumber,
		UserID:              order.UserID,
		AddressID:           order.AddressID,
		OrderType:           string(order.OrderType),
		Items:               toOrderItemResponses(order.Items),
		SubtotalAmount:      domain.RoundAmount(order.SubtotalAmount),
		DiscountAmount:      domain.RoundAmount(order.DiscountAmount),
		TotalAmount:         domain.RoundAmount(order.TotalAmount),
		CouponCode:          order.CouponCode,
		Status:              string(order.Status),
		PaymentStatus:       string(order.PaymentStatus),
		DeliveryStatus:      string(order.DeliveryStatus),
		PaymentID:           order.PaymentID,
		PaymentGateway:      order.PaymentGateway,
		NeedsReconciliation: order.Metadata.NeedsReconciliation,
		ReconciliationNotes: order.Metadata.ReconciliationNotes,
		CreatedAt:           formatTime(order.CreatedAt),
		UpdatedAt:           formatTime(order.UpdatedAt),
	}
	if order.ConfirmedAt != nil {
		resp.ConfirmedAt = formatTime(*order.ConfirmedAt)
	}
	return resp
}

func toOrderItemResponses(items []domain.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Price:      domain.RoundAmount(item.Price),
			Quantity:   item.Quantity,
			Size:       item.Size,
			Image:      item.Image,
			ItemStatus: string(item.ItemStatus),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func defaultRole(role string) string {
	if role = strings.TrimSpace(role); role == "" {
		return auth.RoleAdmin
	}
	return role
}
