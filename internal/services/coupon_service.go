package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// CouponServiceDeps bundles collaborators for the coupon service.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
	Logger  Logger
}

type couponService struct {
	coupons repositories.CouponRepository
	now     func() time.Time
	logger  Logger
}

// NewCouponService constructs the coupon validator and administration service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &couponService{coupons: deps.Coupons, now: utcClock(deps.Clock), logger: logger}, nil
}

// FindValid returns nil without error when the code is empty, unknown, used or expired.
func (s *couponService) FindValid(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.find(ctx, code, "")
}

func (s *couponService) FindForOrder(ctx context.Context, code, orderNumber string) (*domain.Coupon, error) {
	return s.find(ctx, code, strings.TrimSpace(orderNumber))
}

func (s *couponService) find(ctx context.Context, code, orderNumber string) (*domain.Coupon, error) {
	key := domain.NormalizeCouponCode(code)
	if key == "" {
		return nil, nil
	}
	coupon, err := s.coupons.FindByCode(ctx, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find coupon %s: %w", key, err)
	}
	if coupon.ClaimedBy(orderNumber) {
		return &coupon, nil
	}
	if !coupon.UsableAt(s.now()) {
		return nil, nil
	}
	return &coupon, nil
}

func (s *couponService) MarkUsed(ctx context.Context, code, userID, orderNumber string) error {
	key := domain.NormalizeCouponCode(code)
	if key == "" {
		return fmt.Errorf("%w: coupon code is required", ErrValidation)
	}
	if strings.TrimSpace(orderNumber) == "" {
		return fmt.Errorf("%w: order number is required to claim a coupon", ErrValidation)
	}
	_, err := s.coupons.MarkUsed(ctx, key, userID, orderNumber, s.now())
	switch {
	case err == nil:
		s.logger(ctx, "coupon.marked_used", map[string]any{"code": key, "userId": userID, "orderNumber": orderNumber})
		return nil
	case repositories.IsConflict(err):
		s.logger(ctx, "coupon.claim_conflict", map[string]any{"code": key, "userId": userID, "orderNumber": orderNumber})
		return ErrCouponAlreadyUsed
	case repositories.IsNotFound(err):
		return ErrCouponNotFound
	default:
		return fmt.Errorf("mark coupon %s used: %w", key, err)
	}
}

func (s *couponService) ReleaseClaim(ctx context.Context, code, orderNumber string) error {
	key := domain.NormalizeCouponCode(code)
	if key == "" {
		return fmt.Errorf("%w: coupon code is required", ErrValidation)
	}
	err := s.coupons.ReleaseClaim(ctx, key, orderNumber)
	switch {
	case err == nil:
		s.logger(ctx, "coupon.claim_released", map[string]any{"code": key, "orderNumber": orderNumber})
		return nil
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: coupon %s is not held by order %s", ErrConflict, key, orderNumber)
	case repositories.IsNotFound(err):
		return ErrCouponNotFound
	default:
		return fmt.Errorf("release coupon %s: %w", key, err)
	}
}

func (s *couponService) Validate(ctx context.Context, code string) (CouponValidation, error) {
	key := domain.NormalizeCouponCode(code)
	if key == "" {
		return CouponValidation{}, fmt.Errorf("%w: coupon code is required", ErrValidation)
	}
	coupon, err := s.FindValid(ctx, key)
	if err != nil {
		return CouponValidation{}, err
	}
	if coupon == nil {
		return CouponValidation{Valid: false, Code: key}, nil
	}
	return CouponValidation{
		Valid:              true,
		Code:               coupon.Code,
		DiscountPercentage: coupon.DiscountPercentage,
		ValidUntil:         coupon.ValidUntil,
	}, nil
}

func (s *couponService) Create(ctx context.Context, cmd CreateCouponCommand) (domain.Coupon, error) {
	key := domain.NormalizeCouponCode(cmd.Code)
	if key == "" {
		return domain.Coupon{}, fmt.Errorf("%w: coupon code is required", ErrValidation)
	}
	if !domain.ValidDiscountPercentage(cmd.DiscountPercentage) {
		return domain.Coupon{}, fmt.Errorf("%w: discount percentage must be between 1 and 100", ErrValidation)
	}
	now := s.now()
	if !cmd.ValidUntil.After(now) {
		return domain.Coupon{}, fmt.Errorf("%w: validUntil must be in the future", ErrValidation)
	}
	coupon := domain.Coupon{
		Code:               key,
		DiscountPercentage: cmd.DiscountPercentage,
		ValidUntil:         cmd.ValidUntil.UTC(),
		CreatedAt:          now,
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		if repositories.IsConflict(err) {
			return domain.Coupon{}, fmt.Errorf("%w: coupon %s already exists", ErrConflict, key)
		}
		return domain.Coupon{}, fmt.Errorf("create coupon %s: %w", key, err)
	}
	s.logger(ctx, "coupon.created", map[string]any{"code": key, "discountPercentage": cmd.DiscountPercentage})
	return coupon, nil
}

func (s *couponService) List(ctx context.Context) ([]domain.Coupon, error) {
	return s.coupons.List(ctx)
}
