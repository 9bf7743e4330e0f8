package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/payments"
)

const (
	discountLineID    = "discount"
	discountLineTitle = "Descuento"
)

// StorefrontSettings are the URLs and labels sent with every preference.
type StorefrontSettings struct {
	FrontendURL         string
	BackendURL          string
	Currency            string
	StatementDescriptor string
}

// PreferenceServiceDeps bundles collaborators for the preference builder.
type PreferenceServiceDeps struct {
	Snapshots  CartSnapshotReader
	Coupons    CouponValidator
	Numbers    OrderNumberGenerator
	Gateway    PaymentGateway
	Storefront StorefrontSettings
	Clock      func() time.Time
	Logger     Logger
}

type preferenceService struct {
	snapshots  CartSnapshotReader
	coupons    CouponValidator
	numbers    OrderNumberGenerator
	gateway    PaymentGateway
	storefront StorefrontSettings
	now        func() time.Time
	logger     Logger
}

// NewPreferenceService constructs the preference builder.
func NewPreferenceService(deps PreferenceServiceDeps) (PreferenceService, error) {
	switch {
	case deps.Snapshots == nil:
		return nil, errors.New("preference service: cart snapshot reader is required")
	case deps.Coupons == nil:
		return nil, errors.New("preference service: coupon validator is required")
	case deps.Numbers == nil:
		return nil, errors.New("preference service: order number generator is required")
	case deps.Gateway == nil:
		return nil, errors.New("preference service: payment gateway is required")
	}
	storefront := deps.Storefront
	storefront.FrontendURL = strings.TrimRight(strings.TrimSpace(storefront.FrontendURL), "/")
	storefront.BackendURL = strings.TrimRight(strings.TrimSpace(storefront.BackendURL), "/")
	if storefront.Currency == "" {
		storefront.Currency = "ARS"
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &preferenceService{
		snapshots:  deps.Snapshots,
		coupons:    deps.Coupons,
		numbers:    deps.Numbers,
		gateway:    deps.Gateway,
		storefront: storefront,
		now:        utcClock(deps.Clock),
		logger:     logger,
	}, nil
}

// CreatePreference prices the live cart and submits it. It never mutates orders, stock or coupons.
func (s *preferenceService) CreatePreference(ctx context.Context, cmd CreatePreferenceCommand) (PreferenceResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PreferenceResult{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	orderType := cmd.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeStandard
	}
	if !orderType.Valid() {
		return PreferenceResult{}, fmt.Errorf("%w: order type must be standard or pickup", ErrValidation)
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	if orderType == domain.OrderTypeStandard && addressID == "" {
		return PreferenceResult{}, fmt.Errorf("%w: address id is required for standard orders", ErrValidation)
	}

	snapshot, err := s.snapshots.Snapshot(ctx, userID)
	if err != nil {
		return PreferenceResult{}, err
	}
	coupon, err := s.coupons.FindValid(ctx, cmd.CouponCode)
	if err != nil {
		return PreferenceResult{}, err
	}
	now := s.now()
	quote := domain.Quote(snapshot.Lines, coupon, now)

	orderNumber, err := s.numbers.Generate(ctx)
	if err != nil {
		return PreferenceResult{}, err
	}

	metadata := map[string]string{
		payments.MetaOrderNumber: orderNumber,
		payments.MetaUserID:      userID,
		payments.MetaOrderType:   string(orderType),
		payments.MetaTimestamp:   now.Format(time.RFC3339),
	}
	if addressID != "" {
		metadata[payments.MetaAddressID] = addressID
	}
	if quote.CouponCode != "" {
		metadata[payments.MetaCouponCode] = quote.CouponCode
	}

	req := payments.PreferenceRequest{
		ExternalReference:   orderNumber,
		Items:               s.preferenceItems(quote),
		Currency:            s.storefront.Currency,
		PayerEmail:          strings.TrimSpace(cmd.Email),
		BackURLs:            s.backURLs(),
		NotificationURL:     s.notificationURL(cmd.Provider),
		StatementDescriptor: s.storefront.StatementDescriptor,
		Metadata:            metadata,
	}

	pref, err := s.gateway.CreatePreference(ctx, cmd.Provider, req)
	if err != nil {
		s.logger(ctx, "preference.create_failed", map[string]any{
			"orderNumber": orderNumber,
			"userId":      userID,
			"provider":    cmd.Provider,
			"error":       err.Error(),
		})
		return PreferenceResult{}, fmt.Errorf("%w: %v", ErrPreferenceCreationFailed, err)
	}

	s.logger(ctx, "preference.created", map[string]any{
		"orderNumber":  orderNumber,
		"userId":       userID,
		"preferenceId": pref.ID,
		"provider":     pref.Provider,
		"total":        quote.Total,
	})
	return PreferenceResult{
		PreferenceID:   pref.ID,
		InitURL:        pref.InitURL,
		SandboxInitURL: pref.SandboxInitURL,
		OrderNumber:    orderNumber,
		Provider:       pref.Provider,
		Total:          domain.RoundAmount(quote.Total),
	}, nil
}

func (s *preferenceService) preferenceItems(quote domain.PriceQuote) []payments.PreferenceItem {
	items := make([]payments.PreferenceItem, 0, len(quote.Lines)+1)
	for _, line := range quote.Lines {
		item := payments.PreferenceItem{
			ID:         line.ProductID,
			Title:      line.Name,
			PictureURL: line.Image,
			Quantity:   line.Quantity,
			UnitPrice:  domain.RoundAmount(line.UnitPrice),
			Currency:   s.storefront.Currency,
		}
		if line.Size != "" {
			item.Description = "Talla: " + line.Size
		}
		items = append(items, item)
	}
	if quote.Discount > 0 {
		items = append(items, payments.PreferenceItem{
			ID:        discountLineID,
			Title:     discountLineTitle,
			Quantity:  1,
			UnitPrice: -domain.RoundAmount(quote.Discount),
			Currency:  s.storefront.Currency,
		})
	}
	return items
}

func (s *preferenceService) backURLs() payments.BackURLs {
	if s.storefront.FrontendURL == "" {
		return payments.BackURLs{}
	}
	base := s.storefront.FrontendURL + "/checkout/"
	return payments.BackURLs{Success: base + "success", Failure: base + "failure", Pending: base + "pending"}
}

func (s *preferenceService) notificationURL(provider string) string {
	if s.storefront.BackendURL == "" {
		return ""
	}
	if strings.EqualFold(strings.TrimSpace(provider), payments.ProviderStripe) {
		return s.storefront.BackendURL + "/api/v1/webhooks/stripe"
	}
	return s.storefront.BackendURL + "/api/v1/webhooks/mercadopago"
}
