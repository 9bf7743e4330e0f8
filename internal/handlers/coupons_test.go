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
	"github.com/tienda-online/api/internal/services"
)

func TestCouponHandlersValidate(t *testing.T) {
	until := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubCouponService{validateFn: func(code string) (services.CouponValidation, error) {
		if code == "SAVE10" {
			return services.CouponValidation{Valid: true, Code: code, DiscountPercentage: 10, ValidUntil: until}, nil
		}
		return services.CouponValidation{Valid: false, Code: code}, nil
	}}
	router := chi.NewRouter()
	NewCouponHandlers(nil, svc, "").Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"code":"SAVE10"}`)), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp couponValidationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid || resp.DiscountPercentage != 10 || resp.ValidUntil != "2025-02-01T00:00:00Z" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"code":"NOPE"}`)), "user-1"))
	resp = couponValidationResponse{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if rr.Code != http.StatusOK || resp.Valid {
		t.Fatalf("expected invalid coupon with 200, got %d %+v", rr.Code, resp)
	}
}

func TestCouponHandlersAdmin(t *testing.T) {
	var gotCmd services.CreateCouponCommand
	svc := &stubCouponService{
		createFn: func(cmd services.CreateCouponCommand) (domain.Coupon, error) {
			gotCmd = cmd
			if cmd.DiscountPercentage > 100 {
				return domain.Coupon{}, fmt.Errorf("%w: discount percentage must be between 1 and 100", services.ErrValidation)
			}
			return domain.Coupon{Code: "VERANO", DiscountPercentage: cmd.DiscountPercentage, ValidUntil: cmd.ValidUntil}, nil
		},
		listFn: func() ([]domain.Coupon, error) {
			return []domain.Coupon{{Code: "A"}, {Code: "B", Used: true}}, nil
		},
	}
	router := chi.NewRouter()
	NewCouponHandlers(nil, svc, "").Routes(router)

	body := `{"code":"verano","discountPercentage":15,"validUntil":"2025-03-01T00:00:00Z"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)), "user-1"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non admin create: expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)), "admin-1", "admin"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Code != "verano" || gotCmd.DiscountPercentage != 15 || !gotCmd.ValidUntil.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected command %+v", gotCmd)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"code":"x","discountPercentage":150,"validUntil":"2025-03-01T00:00:00Z"}`)), "admin-1", "admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid percent: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"code":"x","discountPercentage":5,"validUntil":"tomorrow"}`)), "admin-1", "admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid date: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "admin-1", "admin"))
	var list struct {
		Coupons []couponResponse `json:"coupons"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Coupons) != 2 || !list.Coupons[1].Used {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
}
