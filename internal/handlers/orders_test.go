package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
	"github.com/tienda-online/api/internal/services"
)

func sampleOrder() domain.Order {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:             "ord-1",
		OrderNumber:    "202501010000001",
		UserID:         "user-1",
		OrderType:      domain.OrderTypeStandard,
		SubtotalAmount: 200,
		DiscountAmount: 20,
		TotalAmount:    180,
		Status:         domain.OrderStatusProcessing,
		PaymentStatus:  domain.PaymentStatusApproved,
		DeliveryStatus: domain.DeliveryStatusPending,
		Items:          []domain.OrderItem{{ID: "item-1", ProductID: "p1", Name: "Remera", Price: 100, Quantity: 2, ItemStatus: domain.ItemStatusPending}},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func orderRouter(svc *stubOrderService, refunds *stubRefundService) chi.Router {
	router := chi.NewRouter()
	NewOrderHandlers(nil, svc, "").Routes(router)
	if refunds != nil {
		NewRefundHandlers(nil, refunds, "").Routes(router)
	}
	return router
}

func TestOrderHandlersGetOrder(t *testing.T) {
	var gotActor services.Actor
	svc := &stubOrderService{
		getFn: func(a services.Actor, id string) (domain.Order, error) {
			gotActor = a
			if id != "ord-1" {
				return domain.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
		getByNumberFn: func(a services.Actor, n string) (domain.Order, error) {
			if a.UserID != "someone-else" {
				return sampleOrder(), nil
			}
			return domain.Order{}, services.ErrForbidden
		},
	}
	router := orderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/ord-1", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalAmount != 180 || resp.Status != "processing" || len(resp.Items) != 1 || resp.Items[0].ID != "item-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotActor.UserID != "user-1" || gotActor.Admin {
		t.Fatalf("unexpected actor %+v", gotActor)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/missing", nil), "user-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/202501010000001/onumber", nil), "someone-else"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ord-1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestOrderHandlersAdminRoutes(t *testing.T) {
	var gotFilter repositories.OrderListFilter
	var gotCmd services.UpdateOrderStatusCommand
	svc := &stubOrderService{
		listFn: func(f repositories.OrderListFilter) ([]domain.Order, error) {
			gotFilter = f
			return []domain.Order{sampleOrder()}, nil
		},
		updateFn: func(cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
			gotCmd = cmd
			order := sampleOrder()
			order.DeliveryStatus = cmd.DeliveryStatus
			return order, nil
		},
	}
	router := orderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/?status=Pending&limit=5", nil), "user-1"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/?status=Pending&limit=5", nil), "admin-1", "admin"))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d", rr.Code)
	}
	if gotFilter.Status != domain.OrderStatusPending || gotFilter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", gotFilter)
	}
	var list orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Orders) != 1 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), "admin-1", "admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rr.Code)
	}

	body := bytes.NewBufferString(`{"status":"processing","deliveryStatus":"shipped"}`)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPatch, "/ord-1/status", body), "admin-1", "admin"))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.OrderID != "ord-1" || gotCmd.Status != domain.OrderStatusProcessing || gotCmd.DeliveryStatus != domain.DeliveryStatusShipped {
		t.Fatalf("unexpected command %+v", gotCmd)
	}
}

func TestOrderHandlersCancelAndListByUser(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(services.Actor, string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: completed", services.ErrOrderNotCancellable)
		},
		listByUserFn: func(a services.Actor, uid string, limit int) ([]domain.Order, error) {
			if a.UserID != uid && !a.Admin {
				return nil, services.ErrForbidden
			}
			return []domain.Order{sampleOrder()}, nil
		},
	}
	router := orderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/ord-1", nil), "user-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("cancel: expected 409, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/user/user-1", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("own orders: expected 200, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/user/user-2", nil), "user-1"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign orders: expected 403, got %d", rr.Code)
	}
}

func TestRefundHandlers(t *testing.T) {
	refunds := &stubRefundService{
		requestFn: func(a services.Actor, orderID, itemID string) (domain.Order, error) {
			if itemID != "item-1" {
				return domain.Order{}, fmt.Errorf("%w: pending", services.ErrItemNotRefundable)
			}
			order := sampleOrder()
			order.Items[0].ItemStatus = domain.ItemStatusReturnRequested
			return order, nil
		},
		refundableFn: func(services.Actor, string) ([]domain.OrderItem, error) {
			return []domain.OrderItem{{ID: "item-1", ItemStatus: domain.ItemStatusDelivered}}, nil
		},
	}
	router := orderRouter(&stubOrderService{}, refunds)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/refund/ord-1/item-1", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d", rr.Code)
	}
	var resp orderResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Items[0].ItemStatus != "return_requested" {
		t.Fatalf("unexpected item status %s", resp.Items[0].ItemStatus)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/refund/ord-1/item-2", nil), "user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non refundable: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/refundable/ord-1", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("refundable: expected 200, got %d", rr.Code)
	}
	var items refundableItemsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil || items.OrderID != "ord-1" || len(items.Items) != 1 {
		t.Fatalf("unexpected refundable response %+v err=%v", items, err)
	}
}
