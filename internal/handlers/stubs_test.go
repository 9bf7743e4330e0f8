package handlers

import (
	"context"
	"net/http"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/repositories"
	"github.com/tienda-online/api/internal/services"
)

func asUser(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}))
}

type stubPreferenceService struct {
	fn func(context.Context, services.CreatePreferenceCommand) (services.PreferenceResult, error)
}

func (s *stubPreferenceService) CreatePreference(ctx context.Context, cmd services.CreatePreferenceCommand) (services.PreferenceResult, error) {
	return s.fn(ctx, cmd)
}

type stubOrderService struct {
	getFn         func(services.Actor, string) (domain.Order, error)
	getByNumberFn func(services.Actor, string) (domain.Order, error)
	listByUserFn  func(services.Actor, string, int) ([]domain.Order, error)
	listFn        func(repositories.OrderListFilter) ([]domain.Order, error)
	cancelFn      func(services.Actor, string) (domain.Order, error)
	updateFn      func(services.UpdateOrderStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) Get(_ context.Context, a services.Actor, id string) (domain.Order, error) {
	return s.getFn(a, id)
}

func (s *stubOrderService) GetByNumber(_ context.Context, a services.Actor, n string) (domain.Order, error) {
	return s.getByNumberFn(a, n)
}

func (s *stubOrderService) ListByUser(_ context.Context, a services.Actor, uid string, limit int) ([]domain.Order, error) {
	return s.listByUserFn(a, uid, limit)
}

func (s *stubOrderService) List(_ context.Context, f repositories.OrderListFilter) ([]domain.Order, error) {
	return s.listFn(f)
}

func (s *stubOrderService) Cancel(_ context.Context, a services.Actor, id string) (domain.Order, error) {
	return s.cancelFn(a, id)
}

func (s *stubOrderService) UpdateStatus(_ context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	return s.updateFn(cmd)
}

type stubRefundService struct {
	requestFn    func(services.Actor, string, string) (domain.Order, error)
	refundableFn func(services.Actor, string) ([]domain.OrderItem, error)
}

func (s *stubRefundService) RequestRefund(_ context.Context, a services.Actor, orderID, itemID string) (domain.Order, error) {
	return s.requestFn(a, orderID, itemID)
}

func (s *stubRefundService) RefundableItems(_ context.Context, a services.Actor, orderID string) ([]domain.OrderItem, error) {
	return s.refundableFn(a, orderID)
}

type stubCouponService struct {
	validateFn func(string) (services.CouponValidation, error)
	createFn   func(services.CreateCouponCommand) (domain.Coupon, error)
	listFn     func() ([]domain.Coupon, error)
}

func (s *stubCouponService) FindValid(context.Context, string) (*domain.Coupon, error) {
	return nil, nil
}
func (s *stubCouponService) FindForOrder(context.Context, string, string) (*domain.Coupon, error) {
	return nil, nil
}
func (s *stubCouponService) MarkUsed(context.Context, string, string, string) error {
	return nil
}
func (s *stubCouponService) ReleaseClaim(context.Context, string, string) error { return nil }

func (s *stubCouponService) Validate(_ context.Context, code string) (services.CouponValidation, error) {
	return s.validateFn(code)
}

func (s *stubCouponService) Create(_ context.Context, cmd services.CreateCouponCommand) (domain.Coupon, error) {
	return s.createFn(cmd)
}

func (s *stubCouponService) List(context.Context) ([]domain.Coupon, error) {
	return s.listFn()
}

type stubReconciler struct {
	calls  []services.Notification
	result services.ReconcileResult
	err    error
}

func (s *stubReconciler) HandleNotification(_ context.Context, n services.Notification) (services.ReconcileResult, error) {
	s.calls = append(s.calls, n)
	return s.result, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.PreferenceService = (*stubPreferenceService)(nil)
	_ services.OrderService      = (*stubOrderService)(nil)
	_ services.RefundService     = (*stubRefundService)(nil)
	_ services.CouponService     = (*stubCouponService)(nil)
	_ services.Reconciler        = (*stubReconciler)(nil)
	_ services.SystemService     = (*stubSystemService)(nil)
)
