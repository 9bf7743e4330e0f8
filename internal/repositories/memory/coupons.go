package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// CouponRepository keeps coupons keyed by normalised code.
type CouponRepository struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

func NewCouponRepository(seed ...domain.Coupon) *CouponRepository {
	repo := &CouponRepository{coupons: make(map[string]domain.Coupon, len(seed))}
	for _, c := range seed {
		repo.coupons[domain.NormalizeCouponCode(c.Code)] = c
	}
	return repo
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, repositories.NotFound("coupons.find", "coupon %s not found", code)
	}
	return c, nil
}

func (r *CouponRepository) Create(_ context.Context, coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.NormalizeCouponCode(coupon.Code)
	if _, exists := r.coupons[key]; exists {
		return repositories.Conflict("coupons.create", "coupon %s already exists", key)
	}
	coupon.Code = key
	r.coupons[key] = coupon
	return nil
}

func (r *CouponRepository) List(context.Context) ([]domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *CouponRepository) MarkUsed(_ context.Context, code, userID, orderNumber string, usedAt time.Time) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.NormalizeCouponCode(code)
	c, ok := r.coupons[key]
	if !ok {
		return domain.Coupon{}, repositories.NotFound("coupons.mark_used", "coupon %s not found", key)
	}
	if c.ClaimedBy(orderNumber) {
		return c, nil
	}
	if c.Used {
		return domain.Coupon{}, repositories.Conflict("coupons.mark_used", "coupon %s already used", key)
	}
	c.Used = true
	c.UsedBy = userID
	c.UsedOrder = orderNumber
	at := usedAt
	c.UsedAt = &at
	r.coupons[key] = c
	return c, nil
}

func (r *CouponRepository) ReleaseClaim(_ context.Context, code, orderNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.NormalizeCouponCode(code)
	c, ok := r.coupons[key]
	if !ok {
		return repositories.NotFound("coupons.release", "coupon %s not found", key)
	}
	if !c.ClaimedBy(orderNumber) {
		return repositories.Conflict("coupons.release", "coupon %s is not held by order %s", key, orderNumber)
	}
	c.Used = false
	c.UsedBy = ""
	c.UsedOrder = ""
	c.UsedAt = nil
	r.coupons[key] = c
	return nil
}
