package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   GatewayLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeProvider maps preferences onto Checkout Sessions and payments onto PaymentIntents.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger GatewayLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions, intents: sc.PaymentIntents}
	}
	if clients.sessions == nil || clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// CreatePreference creates a Stripe Checkout session carrying the metadata envelope.
func (p *StripeProvider) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	if len(req.Items) == 0 {
		return Preference{}, errors.New("stripe: at least one item is required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.BackURLs.Success),
		CancelURL:         stripe.String(defaultString(req.BackURLs.Failure, req.BackURLs.Success)),
		ClientReferenceID: stripe.String(req.ExternalReference),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.PayerEmail != "" {
		params.CustomerEmail = stripe.String(req.PayerEmail)
	}
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	if req.StatementDescriptor != "" {
		params.PaymentIntentData.StatementDescriptor = stripe.String(req.StatementDescriptor)
	}

	var gross, discount int64
	for _, item := range req.Items {
		amount := toMinorUnits(item.UnitPrice, currency)
		qty := int64(max(item.Quantity, 1))
		if amount < 0 {
			discount += -amount * qty
			continue
		}
		gross += amount * qty
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Title),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		if item.PictureURL != "" {
			line.PriceData.ProductData.Images = stripe.StringSlice([]string{item.PictureURL})
		}
		params.LineItems = append(params.LineItems, line)
	}
	if discount > 0 {
		// Checkout rejects negative lines, so a discounted cart is charged as one line.
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(gross - discount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Pedido " + req.ExternalReference),
				},
			},
		}}
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return Preference{}, &UpstreamError{Provider: ProviderStripe, Op: "create_checkout_session", Err: err}
	}
	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId":         session.ID,
		"externalReference": req.ExternalReference,
	})
	return Preference{
		ID:                session.ID,
		Provider:          ProviderStripe,
		InitURL:           session.URL,
		SandboxInitURL:    session.URL,
		ExternalReference: req.ExternalReference,
		CreatedAt:         p.clock(),
	}, nil
}

// GetPayment retrieves a PaymentIntent and maps it onto the gateway payment vocabulary.
func (p *StripeProvider) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return Payment{}, errors.New("stripe: payment id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	intent, err := p.api.intents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return Payment{}, &UpstreamError{Provider: ProviderStripe, Op: "get_payment_intent", Err: err}
	}
	return stripePayment(intent), nil
}

func stripePayment(intent *stripe.PaymentIntent) Payment {
	status := "pending"
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = "approved"
	case stripe.PaymentIntentStatusCanceled:
		status = "cancelled"
	case stripe.PaymentIntentStatusProcessing:
		status = "in_process"
	case stripe.PaymentIntentStatusRequiresCapture:
		status = "authorized"
	}
	var approvedAt *time.Time
	if charge := intent.LatestCharge; charge != nil {
		if charge.Disputed {
			status = "charged_back"
		} else if charge.Refunded {
			status = "refunded"
		}
		if charge.Paid && charge.Created > 0 {
			t := time.Unix(charge.Created, 0).UTC()
			approvedAt = &t
		}
	}
	if status == "pending" && intent.LastPaymentError != nil {
		status = "rejected"
	}

	currency := strings.ToLower(string(intent.Currency))
	metadata := make(map[string]string, len(intent.Metadata))
	for k, v := range intent.Metadata {
		metadata[k] = v
	}
	paymentType := ""
	if len(intent.PaymentMethodTypes) > 0 {
		paymentType = intent.PaymentMethodTypes[0]
	}
	return Payment{
		ID:                intent.ID,
		Provider:          ProviderStripe,
		Status:            status,
		StatusDetail:      string(intent.Status),
		ExternalReference: metadata[MetaOrderNumber],
		TransactionAmount: fromMinorUnits(intent.Amount, currency),
		Currency:          strings.ToUpper(currency),
		PaymentTypeID:     paymentType,
		ApprovedAt:        approvedAt,
		Metadata:          metadata,
	}
}

// StripeNotification is the verified subset of a Stripe webhook event.
type StripeNotification struct {
	EventID         string
	Type            string
	PaymentIntentID string
}

// ParseStripeEvent verifies the Stripe-Signature header and extracts the payment intent id.
// Events that carry no payment intent yield an empty PaymentIntentID.
func ParseStripeEvent(payload []byte, signatureHeader, secret string) (StripeNotification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return StripeNotification{}, err
	}
	note := StripeNotification{EventID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return note, nil
	}
	switch {
	case strings.HasPrefix(note.Type, "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return StripeNotification{}, fmt.Errorf("stripe: decode payment intent: %w", err)
		}
		note.PaymentIntentID = intent.ID
	case strings.HasPrefix(note.Type, "checkout.session."):
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return StripeNotification{}, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		if session.PaymentIntent != nil {
			note.PaymentIntentID = session.PaymentIntent.ID
		}
	case strings.HasPrefix(note.Type, "charge."):
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return StripeNotification{}, fmt.Errorf("stripe: decode charge: %w", err)
		}
		if charge.PaymentIntent != nil {
			note.PaymentIntentID = charge.PaymentIntent.ID
		}
	}
	return note, nil
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

func toMinorUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
