package domain

import "strings"

// PaymentStatus is the gateway payment vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusApproved    PaymentStatus = "approved"
	PaymentStatusAuthorized  PaymentStatus = "authorized"
	PaymentStatusInProcess   PaymentStatus = "in_process"
	PaymentStatusInMediation PaymentStatus = "in_mediation"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
	PaymentStatusRefunded    PaymentStatus = "refunded"
	PaymentStatusChargedBack PaymentStatus = "charged_back"
)

// ParsePaymentStatus maps a raw gateway status onto the known vocabulary.
// Unrecognised values fall back to pending.
func ParsePaymentStatus(raw string) PaymentStatus {
	switch s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusAuthorized, PaymentStatusInProcess,
		PaymentStatusInMediation, PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusRefunded,
		PaymentStatusChargedBack:
		return s
	case "canceled":
		return PaymentStatusCancelled
	}
	return PaymentStatusPending
}

// Terminal reports whether the gateway will not move the payment further on its own.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusChargedBack:
		return true
	}
	return false
}

// OrderStatusFor maps a payment status onto the order status it implies.
func OrderStatusFor(s PaymentStatus) OrderStatus {
	switch s {
	case PaymentStatusApproved:
		return OrderStatusProcessing
	case PaymentStatusRejected:
		return OrderStatusPaymentFailed
	case PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusChargedBack:
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}
