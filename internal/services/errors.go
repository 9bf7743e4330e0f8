package services

import "errors"

// Error kinds. Every specific error below unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrIntegrity  = errors.New("integrity error")
	ErrUpstream   = errors.New("upstream error")
)

type classifiedError struct {
	kind error
	msg  string
}

func (e *classifiedError) Error() string { return e.msg }
func (e *classifiedError) Unwrap() error { return e.kind }

func classified(kind error, msg string) error {
	return &classifiedError{kind: kind, msg: msg}
}

var (
	ErrProductNotFound          = classified(ErrNotFound, "product not found")
	ErrOrderNotFound            = classified(ErrNotFound, "order not found")
	ErrCouponNotFound           = classified(ErrNotFound, "coupon not found")
	ErrItemNotFound             = classified(ErrNotFound, "order item not found")
	ErrCartEmpty                = classified(ErrValidation, "cart is empty")
	ErrCouponAlreadyUsed        = classified(ErrConflict, "coupon already used")
	ErrInsufficientStock        = classified(ErrConflict, "insufficient stock")
	ErrDuplicateOrder           = classified(ErrConflict, "order already exists")
	ErrAmountMismatch           = classified(ErrIntegrity, "paid amount does not match recomputed total")
	ErrMissingMetadata          = classified(ErrIntegrity, "payment metadata missing")
	ErrPreferenceCreationFailed = classified(ErrUpstream, "preference creation failed")
	ErrOrderNumberExhausted     = classified(ErrConflict, "order number attempts exhausted")
	ErrItemNotRefundable        = classified(ErrValidation, "item is not refundable")
	ErrOrderNotCancellable      = classified(ErrConflict, "order cannot be cancelled")
	ErrForbidden                = classified(ErrValidation, "forbidden")
)
