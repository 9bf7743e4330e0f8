package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMercadoPagoBaseURL = "https://api.mercadopago.com"
	defaultGatewayTimeout     = 5 * time.Second
	maxGatewayResponseBytes   = 1 << 20
)

// GatewayLogger defines the logging contract for provider operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// MercadoPagoConfig configures the MercadoPago provider.
type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      GatewayLogger
}

// MercadoPagoProvider talks to the MercadoPago REST API.
type MercadoPagoProvider struct {
	token   string
	baseURL string
	client  *http.Client
	logger  GatewayLogger
}

// NewMercadoPagoProvider constructs the provider. Requests are bounded by Timeout.
func NewMercadoPagoProvider(cfg MercadoPagoConfig) (*MercadoPagoProvider, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("mercadopago: access token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultMercadoPagoBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	clone := *client
	clone.Timeout = timeout
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &MercadoPagoProvider{token: token, baseURL: base, client: &clone, logger: logger}, nil
}

type mpPreferenceItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	PictureURL  string  `json:"picture_url,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type mpBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpPreferenceRequest struct {
	Items               []mpPreferenceItem `json:"items"`
	Payer               *mpPayer           `json:"payer,omitempty"`
	BackURLs            mpBackURLs         `json:"back_urls"`
	AutoReturn          string             `json:"auto_return,omitempty"`
	NotificationURL     string             `json:"notification_url,omitempty"`
	ExternalReference   string             `json:"external_reference"`
	StatementDescriptor string             `json:"statement_descriptor,omitempty"`
	Metadata            map[string]string  `json:"metadata,omitempty"`
}

type mpPreferenceResponse struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
	DateCreated       string `json:"date_created"`
}

type mpPaymentResponse struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	ExternalReference string         `json:"external_reference"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id"`
	PaymentMethodID   string         `json:"payment_method_id"`
	PaymentTypeID     string         `json:"payment_type_id"`
	DateApproved      *time.Time     `json:"date_approved"`
	Metadata          map[string]any `json:"metadata"`
}

// CreatePreference posts a checkout preference.
func (p *MercadoPagoProvider) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	if len(req.Items) == 0 {
		return Preference{}, errors.New("mercadopago: at least one item is required")
	}
	body := mpPreferenceRequest{
		Items: make([]mpPreferenceItem, 0, len(req.Items)),
		BackURLs: mpBackURLs{
			Success: req.BackURLs.Success,
			Failure: req.BackURLs.Failure,
			Pending: req.BackURLs.Pending,
		},
		NotificationURL:     req.NotificationURL,
		ExternalReference:   req.ExternalReference,
		StatementDescriptor: req.StatementDescriptor,
		Metadata:            req.Metadata,
	}
	if req.BackURLs.Success != "" {
		body.AutoReturn = "approved"
	}
	if req.PayerEmail != "" {
		body.Payer = &mpPayer{Email: req.PayerEmail}
	}
	for _, item := range req.Items {
		currency := item.Currency
		if currency == "" {
			currency = req.Currency
		}
		body.Items = append(body.Items, mpPreferenceItem{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			PictureURL:  item.PictureURL,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			CurrencyID:  strings.ToUpper(currency),
		})
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	var resp mpPreferenceResponse
	if err := p.do(ctx, "create_preference", http.MethodPost, "/checkout/preferences", body, idempotencyKey, &resp); err != nil {
		return Preference{}, err
	}

	created := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, resp.DateCreated); err == nil {
		created = t.UTC()
	}
	p.logger(ctx, "payments.mercadopago.preference.created", map[string]any{
		"preferenceId":      resp.ID,
		"externalReference": req.ExternalReference,
	})
	return Preference{
		ID:                resp.ID,
		Provider:          ProviderMercadoPago,
		InitURL:           resp.InitPoint,
		SandboxInitURL:    resp.SandboxInitPoint,
		ExternalReference: resp.ExternalReference,
		CreatedAt:         created,
	}, nil
}

// GetPayment fetches /v1/payments/{id}.
func (p *MercadoPagoProvider) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return Payment{}, errors.New("mercadopago: payment id is required")
	}
	var resp mpPaymentResponse
	if err := p.do(ctx, "get_payment", http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, "", &resp); err != nil {
		return Payment{}, err
	}
	return Payment{
		ID:                resp.ID.String(),
		Provider:          ProviderMercadoPago,
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		TransactionAmount: resp.TransactionAmount,
		Currency:          resp.CurrencyID,
		PaymentMethodID:   resp.PaymentMethodID,
		PaymentTypeID:     resp.PaymentTypeID,
		ApprovedAt:        resp.DateApproved,
		Metadata:          stringifyMetadata(resp.Metadata),
	}, nil
}

func (p *MercadoPagoProvider) do(ctx context.Context, op, method, path string, payload any, idempotencyKey string, out any) error {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("mercadopago: encode %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("mercadopago: build %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		p.logger(ctx, "payments.mercadopago.request_failed", map[string]any{"op": op, "error": err.Error()})
		return &UpstreamError{Provider: ProviderMercadoPago, Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxGatewayResponseBytes))
	if err != nil {
		return &UpstreamError{Provider: ProviderMercadoPago, Op: op, StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, path)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		p.logger(ctx, "payments.mercadopago.request_failed", map[string]any{"op": op, "status": res.StatusCode})
		return &UpstreamError{Provider: ProviderMercadoPago, Op: op, StatusCode: res.StatusCode, Err: errors.New(gatewayMessage(raw))}
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &UpstreamError{Provider: ProviderMercadoPago, Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func gatewayMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(http.StatusBadGateway)
}

func stringifyMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			if data, err := json.Marshal(val); err == nil {
				out[k] = string(data)
			}
		}
	}
	return out
}
