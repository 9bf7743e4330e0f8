package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// Valid reports whether the status is part of the order vocabulary.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusPaymentFailed:
		return true
	}
	return false
}

// DeliveryStatus tracks fulfilment progress independently of payment.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusShipped   DeliveryStatus = "shipped"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusReturned  DeliveryStatus = "returned"
)

// Valid reports whether the delivery status is known.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusShipped, DeliveryStatusDelivered, DeliveryStatusReturned:
		return true
	}
	return false
}

// ItemStatus is the per-line status driven by the order cascade and refund requests.
type ItemStatus string

const (
	ItemStatusPending         ItemStatus = "pending"
	ItemStatusShipped         ItemStatus = "shipped"
	ItemStatusDelivered       ItemStatus = "delivered"
	ItemStatusCancelled       ItemStatus = "cancelled"
	ItemStatusReturnRequested ItemStatus = "return_requested"
	ItemStatusReturned        ItemStatus = "returned"
	ItemStatusRefunded        ItemStatus = "refunded"
)

// OrderType distinguishes home delivery from in-store pickup.
type OrderType string

const (
	OrderTypeStandard OrderType = "standard"
	OrderTypePickup   OrderType = "pickup"
)

// Valid reports whether the order type is supported.
func (t OrderType) Valid() bool {
	return t == OrderTypeStandard || t == OrderTypePickup
}

// Order is the aggregate persisted once a gateway payment is confirmed.
type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	AddressID      string
	OrderType      OrderType
	Items          []OrderItem
	SubtotalAmount float64
	DiscountAmount float64
	TotalAmount    float64
	CouponCode     string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	DeliveryStatus DeliveryStatus
	PaymentID      string
	PaymentGateway string
	PreferenceID   string
	PaymentDetails PaymentDetails
	Metadata       OrderMetadata
	ConfirmedAt    *time.Time
	FailedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem is a captured line; Price never follows later catalog changes.
type OrderItem struct {
	ID         string
	ProductID  string
	Name       string
	Price      float64
	Quantity   int
	Size       string
	Image      string
	ItemStatus ItemStatus
}

// LineTotal returns price times quantity.
func (i OrderItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// PaymentDetails echoes the authoritative gateway payment.
type PaymentDetails struct {
	StatusDetail      string
	TransactionAmount float64
	Currency          string
	PaymentMethodID   string
	PaymentTypeID     string
	ProcessedAt       *time.Time
}

// OrderMetadata holds bookkeeping flags used for idempotency and operator follow-up.
type OrderMetadata struct {
	StockReserved       bool
	ReservedAt          *time.Time
	StockConfirmed      bool
	ConfirmedAt         *time.Time
	PaymentConfirmed    bool
	NeedsReconciliation bool
	ReconciliationNotes []string
}

// FindItem returns the index of the item with the given id or -1.
func (o Order) FindItem(itemID string) int {
	for i := range o.Items {
		if o.Items[i].ID == itemID || o.Items[i].ProductID == itemID {
			return i
		}
	}
	return -1
}

// Coupon is a single-use percentage discount.
type Coupon struct {
	Code               string
	DiscountPercentage float64
	ValidUntil         time.Time
	Used               bool
	UsedBy             string
	UsedOrder          string
	UsedAt             *time.Time
	CreatedAt          time.Time
}

// UsableAt reports whether the coupon may still be applied at the given instant.
func (c Coupon) UsableAt(now time.Time) bool {
	return !c.Used && c.ValidUntil.After(now)
}

// ClaimedBy reports whether the coupon is held by the given order number.
func (c Coupon) ClaimedBy(orderNumber string) bool {
	return c.Used && orderNumber != "" && c.UsedOrder == orderNumber
}

// Product is the slice of the catalog record this service reads.
type Product struct {
	ID                 string
	Name               string
	Price              float64
	DiscountPercentage float64
	Image              string
	Stock              ProductStock
}

// ProductStock holds the per-product counters.
type ProductStock struct {
	Stock         int
	ReservedStock int
	SoldStock     int
}

// Total returns the conserved sum of all counters.
func (s ProductStock) Total() int {
	return s.Stock + s.ReservedStock + s.SoldStock
}

// Cart is the user's basket as stored by the catalog collaborator.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem references a product by id.
type CartItem struct {
	ProductID string
	Quantity  int
	Size      string
}

// CartLine is a cart item resolved against the live catalog.
type CartLine struct {
	ProductID          string
	Name               string
	Price              float64
	DiscountPercentage float64
	Quantity           int
	Size               string
	Image              string
}

// EffectivePrice applies the product's own discount.
func (l CartLine) EffectivePrice() float64 {
	return l.Price * (1 - l.DiscountPercentage/100)
}

// CartSnapshot is the priced-input view of a cart at one instant.
type CartSnapshot struct {
	UserID string
	Lines  []CartLine
}
