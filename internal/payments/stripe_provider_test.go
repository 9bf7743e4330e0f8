package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubStripeSessions struct {
	params *stripe.CheckoutSessionParams
}

func (s *stubStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

type stubStripeIntents struct {
	intent *stripe.PaymentIntent
}

func (s *stubStripeIntents) Get(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.intent, nil
}

func TestStripeCreatePreferenceFoldsDiscount(t *testing.T) {
	sessions := &stubStripeSessions{}
	provider, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{sessions: sessions, intents: &stubStripeIntents{}}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	pref, err := provider.CreatePreference(context.Background(), PreferenceRequest{
		ExternalReference: "202501010000001",
		Currency:          "ARS",
		Items: []PreferenceItem{
			{ID: "p1", Title: "Remera", Quantity: 2, UnitPrice: 100},
			{ID: "coupon", Title: "Descuento", Quantity: 1, UnitPrice: -20},
		},
		BackURLs: BackURLs{Success: "https://shop/ok", Failure: "https://shop/fail"},
		Metadata: map[string]string{MetaOrderNumber: "202501010000001"},
	})
	if err != nil {
		t.Fatalf("CreatePreference: %v", err)
	}
	if pref.ID != "cs_test_1" || pref.InitURL == "" {
		t.Fatalf("unexpected preference %+v", pref)
	}
	params := sessions.params
	if len(params.LineItems) != 1 || *params.LineItems[0].PriceData.UnitAmount != 18000 {
		t.Fatalf("expected single discounted line of 18000, got %+v", params.LineItems)
	}
	if params.PaymentIntentData.Metadata[MetaOrderNumber] != "202501010000001" {
		t.Fatal("expected metadata on the payment intent")
	}
}

func TestStripeGetPaymentMapsStatus(t *testing.T) {
	cases := []struct {
		name   string
		intent *stripe.PaymentIntent
		want   string
	}{
		{"succeeded", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}, "approved"},
		{"canceled", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}, "cancelled"},
		{"processing", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing}, "in_process"},
		{"refunded", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded, LatestCharge: &stripe.Charge{Refunded: true}}, "refunded"},
		{"failed", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod, LastPaymentError: &stripe.Error{}}, "rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.intent.ID = "pi_1"
			tc.intent.Amount = 18000
			tc.intent.Currency = "ars"
			tc.intent.Metadata = map[string]string{MetaOrderNumber: "202501010000001"}
			provider, _ := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{sessions: &stubStripeSessions{}, intents: &stubStripeIntents{intent: tc.intent}}})
			payment, err := provider.GetPayment(context.Background(), "pi_1")
			if err != nil {
				t.Fatalf("GetPayment: %v", err)
			}
			if payment.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, payment.Status)
			}
			if payment.TransactionAmount != 180 || payment.ExternalReference != "202501010000001" {
				t.Fatalf("unexpected payment %+v", payment)
			}
		})
	}
}

func TestParseStripeEvent(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_123","object":"payment_intent"}}}`)
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	note, err := ParseStripeEvent(payload, header, secret)
	if err != nil {
		t.Fatalf("ParseStripeEvent: %v", err)
	}
	if note.PaymentIntentID != "pi_123" || note.Type != "payment_intent.succeeded" {
		t.Fatalf("unexpected notification %+v", note)
	}

	if _, err := ParseStripeEvent(payload, header, "whsec_other"); err == nil {
		t.Fatal("expected signature failure")
	}
}
