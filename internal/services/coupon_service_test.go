package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
)

func TestCouponFindValid(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()
	_ = f.coupons.Create(ctx, domain.Coupon{Code: "OLD", DiscountPercentage: 5, ValidUntil: testNow.Add(-time.Hour)})
	_ = f.coupons.Create(ctx, domain.Coupon{Code: "SPENT", DiscountPercentage: 5, ValidUntil: testNow.Add(time.Hour), Used: true})
	svc := f.couponService(t)

	cases := map[string]bool{"save10": true, "OLD": false, "SPENT": false, "missing": false, "": false}
	for code, want := range cases {
		coupon, err := svc.FindValid(ctx, code)
		if err != nil {
			t.Fatalf("FindValid(%q): %v", code, err)
		}
		if (coupon != nil) != want {
			t.Fatalf("FindValid(%q): expected valid=%v, got %+v", code, want, coupon)
		}
	}
}

func TestCouponMarkUsedExactlyOnceUnderContention(t *testing.T) {
	f := newStoreFixture()
	svc := f.couponService(t)

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch err := svc.MarkUsed(context.Background(), "SAVE10", "u1", fmt.Sprintf("2025010100001%02d", i)); {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrCouponAlreadyUsed):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || conflicts != 24 {
		t.Fatalf("expected 1 win and 24 conflicts, got %d/%d", wins, conflicts)
	}
	if err := svc.MarkUsed(context.Background(), "NOPE", "u1", "202501010000001"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestCouponReleaseClaim(t *testing.T) {
	f := newStoreFixture()
	svc := f.couponService(t)
	ctx := context.Background()

	if err := svc.MarkUsed(ctx, "save10", "u1", "202501010000001"); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := svc.ReleaseClaim(ctx, "SAVE10", "202501010000002"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for a foreign order, got %v", err)
	}
	if err := svc.ReleaseClaim(ctx, "SAVE10", "202501010000001"); err != nil {
		t.Fatalf("ReleaseClaim: %v", err)
	}
	coupon, err := svc.FindValid(ctx, "SAVE10")
	if err != nil || coupon == nil {
		t.Fatalf("expected coupon usable again, got %+v, %v", coupon, err)
	}
	if err := svc.MarkUsed(ctx, "SAVE10", "u1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error without order number, got %v", err)
	}
}

func TestCouponCreateAndValidate(t *testing.T) {
	f := newStoreFixture()
	svc := f.couponService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateCouponCommand{Code: "x", DiscountPercentage: 0, ValidUntil: testNow.Add(time.Hour)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for 0%%, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateCouponCommand{Code: "x", DiscountPercentage: 10, ValidUntil: testNow}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for past validUntil, got %v", err)
	}
	created, err := svc.Create(ctx, CreateCouponCommand{Code: " verano ", DiscountPercentage: 15, ValidUntil: testNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Code != "VERANO" {
		t.Fatalf("expected normalised code, got %q", created.Code)
	}
	if _, err := svc.Create(ctx, CreateCouponCommand{Code: "verano", DiscountPercentage: 15, ValidUntil: testNow.Add(time.Hour)}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	v, err := svc.Validate(ctx, "verano")
	if err != nil || !v.Valid || v.DiscountPercentage != 15 {
		t.Fatalf("unexpected validation %+v err=%v", v, err)
	}
	v, err = svc.Validate(ctx, "unknown")
	if err != nil || v.Valid {
		t.Fatalf("expected invalid coupon, got %+v err=%v", v, err)
	}
	list, _ := svc.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 coupons, got %d", len(list))
	}
}
