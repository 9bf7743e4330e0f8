package firestore

import (
	"time"

	domain "github.com/tienda-online/api/internal/domain"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "order_numbers"
	couponsCollection      = "coupons"
	productsCollection     = "products"
	cartsCollection        = "carts"
)

type orderDocument struct {
	OrderNumber    string              `firestore:"orderNumber"`
	UserID         string              `firestore:"userId"`
	AddressID      string              `firestore:"addressId,omitempty"`
	OrderType      string              `firestore:"orderType"`
	Items          []orderItemDocument `firestore:"items"`
	SubtotalAmount float64             `firestore:"subtotalAmount"`
	DiscountAmount float64             `firestore:"discountAmount"`
	TotalAmount    float64             `firestore:"totalAmount"`
	CouponCode     string              `firestore:"couponCode,omitempty"`
	Status         string              `firestore:"status"`
	PaymentStatus  string              `firestore:"paymentStatus"`
	DeliveryStatus string              `firestore:"deliveryStatus"`
	PaymentID      string              `firestore:"paymentId,omitempty"`
	PaymentGateway string              `firestore:"paymentGateway,omitempty"`
	PreferenceID   string              `firestore:"preferenceId,omitempty"`
	PaymentDetails paymentDocument     `firestore:"paymentDetails"`
	Metadata       metadataDocument    `firestore:"metadata"`
	ConfirmedAt    *time.Time          `firestore:"confirmedAt,omitempty"`
	FailedAt       *time.Time          `firestore:"failedAt,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID         string  `firestore:"id"`
	ProductID  string  `firestore:"productId"`
	Name       string  `firestore:"name"`
	Price      float64 `firestore:"price"`
	Quantity   int     `firestore:"quantity"`
	Size       string  `firestore:"size,omitempty"`
	Image      string  `firestore:"image,omitempty"`
	ItemStatus string  `firestore:"itemStatus"`
}

type paymentDocument struct {
	StatusDetail      string     `firestore:"statusDetail,omitempty"`
	TransactionAmount float64    `firestore:"transactionAmount"`
	Currency          string     `firestore:"currency,omitempty"`
	PaymentMethodID   string     `firestore:"paymentMethodId,omitempty"`
	PaymentTypeID     string     `firestore:"paymentTypeId,omitempty"`
	ProcessedAt       *time.Time `firestore:"processedAt,omitempty"`
}

type metadataDocument struct {
	StockReserved       bool       `firestore:"stockReserved"`
	ReservedAt          *time.Time `firestore:"reservedAt,omitempty"`
	StockConfirmed      bool       `firestore:"stockConfirmed"`
	ConfirmedAt         *time.Time `firestore:"confirmedAt,omitempty"`
	PaymentConfirmed    bool       `firestore:"paymentConfirmed"`
	NeedsReconciliation bool       `firestore:"needsReconciliation"`
	ReconciliationNotes []string   `firestore:"reconciliationNotes,omitempty"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type couponDocument struct {
	DiscountPercentage float64    `firestore:"discountPercentage"`
	ValidUntil         time.Time  `firestore:"validUntil"`
	Used               bool       `firestore:"used"`
	UsedBy             string     `firestore:"usedBy,omitempty"`
	UsedOrder          string     `firestore:"usedOrder,omitempty"`
	UsedAt             *time.Time `firestore:"usedAt,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
}

type productDocument struct {
	Name               string  `firestore:"name"`
	Price              float64 `firestore:"price"`
	DiscountPercentage float64 `firestore:"discountPercentage"`
	Image              string  `firestore:"image,omitempty"`
	Stock              int     `firestore:"stock"`
	ReservedStock      int     `firestore:"reservedStock"`
	SoldStock          int     `firestore:"soldStock"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDocument{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Name:       it.Name,
			Price:      it.Price,
			Quantity:   it.Quantity,
			Size:       it.Size,
			Image:      it.Image,
			ItemStatus: string(it.ItemStatus),
		}
	}
	return orderDocument{
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		AddressID:      o.AddressID,
		OrderType:      string(o.OrderType),
		Items:          items,
		SubtotalAmount: o.SubtotalAmount,
		DiscountAmount: o.DiscountAmount,
		TotalAmount:    o.TotalAmount,
		CouponCode:     o.CouponCode,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		PaymentID:      o.PaymentID,
		PaymentGateway: o.PaymentGateway,
		PreferenceID:   o.PreferenceID,
		PaymentDetails: paymentDocument(o.PaymentDetails),
		Metadata:       metadataDocument(o.Metadata),
		ConfirmedAt:    o.ConfirmedAt,
		FailedAt:       o.FailedAt,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, it := range d.Items {
		items[i] = domain.OrderItem{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Name:       it.Name,
			Price:      it.Price,
			Quantity:   it.Quantity,
			Size:       it.Size,
			Image:      it.Image,
			ItemStatus: domain.ItemStatus(it.ItemStatus),
		}
	}
	return domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		UserID:         d.UserID,
		AddressID:      d.AddressID,
		OrderType:      domain.OrderType(d.OrderType),
		Items:          items,
		SubtotalAmount: d.SubtotalAmount,
		DiscountAmount: d.DiscountAmount,
		TotalAmount:    d.TotalAmount,
		CouponCode:     d.CouponCode,
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		DeliveryStatus: domain.DeliveryStatus(d.DeliveryStatus),
		PaymentID:      d.PaymentID,
		PaymentGateway: d.PaymentGateway,
		PreferenceID:   d.PreferenceID,
		PaymentDetails: domain.PaymentDetails(d.PaymentDetails),
		Metadata:       domain.OrderMetadata(d.Metadata),
		ConfirmedAt:    d.ConfirmedAt,
		FailedAt:       d.FailedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func newCouponDocument(c domain.Coupon) couponDocument {
	return couponDocument{
		DiscountPercentage: c.DiscountPercentage,
		ValidUntil:         c.ValidUntil.UTC(),
		Used:               c.Used,
		UsedBy:             c.UsedBy,
		UsedOrder:          c.UsedOrder,
		UsedAt:             c.UsedAt,
		CreatedAt:          c.CreatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		Code:               code,
		DiscountPercentage: d.DiscountPercentage,
		ValidUntil:         d.ValidUntil,
		Used:               d.Used,
		UsedBy:             d.UsedBy,
		UsedOrder:          d.UsedOrder,
		UsedAt:             d.UsedAt,
		CreatedAt:          d.CreatedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                 id,
		Name:               d.Name,
		Price:              d.Price,
		DiscountPercentage: d.DiscountPercentage,
		Image:              d.Image,
		Stock:              d.stock(),
	}
}

func (d productDocument) stock() domain.ProductStock {
	return domain.ProductStock{Stock: d.Stock, ReservedStock: d.ReservedStock, SoldStock: d.SoldStock}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, it := range d.Items {
		items[i] = domain.CartItem(it)
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: d.UpdatedAt}
}
