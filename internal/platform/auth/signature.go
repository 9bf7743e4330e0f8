package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	gatewaySignatureHeader = "X-Signature"
	gatewayRequestIDHeader = "X-Request-Id"
)

var (
	// ErrSignatureMissing is returned when the notification carries no signature header.
	ErrSignatureMissing = errors.New("auth: webhook signature missing")
	// ErrSignatureInvalid is returned when the signature does not match the manifest.
	ErrSignatureInvalid = errors.New("auth: webhook signature invalid")
	// ErrSignatureExpired is returned when the signed timestamp is older than the allowed age.
	ErrSignatureExpired = errors.New("auth: webhook signature expired")
)

// GatewaySignatureValidator checks MercadoPago style "ts=...,v1=..." notification signatures.
// The signed manifest is "id:<data.id>;request-id:<x-request-id>;ts:<ts>;", omitting absent parts.
type GatewaySignatureValidator struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

// SignatureOption customises the validator.
type SignatureOption func(*GatewaySignatureValidator)

// WithSignatureMaxAge rejects signatures whose timestamp is older than d. Zero disables the check.
func WithSignatureMaxAge(d time.Duration) SignatureOption {
	return func(v *GatewaySignatureValidator) { v.maxAge = d }
}

// WithSignatureClock overrides the clock, for tests.
func WithSignatureClock(now func() time.Time) SignatureOption {
	return func(v *GatewaySignatureValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewGatewaySignatureValidator returns nil when secret is empty, which disables validation.
func NewGatewaySignatureValidator(secret string, opts ...SignatureOption) *GatewaySignatureValidator {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	v := &GatewaySignatureValidator{secret: secret, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify validates the signature headers of r against dataID.
func (v *GatewaySignatureValidator) Verify(r *http.Request, dataID string) error {
	if v == nil {
		return nil
	}
	ts, sig := parseSignatureHeader(r.Header.Get(gatewaySignatureHeader))
	if ts == "" || sig == "" {
		return ErrSignatureMissing
	}
	if v.maxAge > 0 {
		seconds, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ErrSignatureInvalid
		}
		signedAt := time.Unix(seconds, 0)
		if seconds > 1e11 {
			signedAt = time.UnixMilli(seconds)
		}
		if v.now().Sub(signedAt) > v.maxAge {
			return ErrSignatureExpired
		}
	}
	expected := SignGatewayManifest(v.secret, dataID, r.Header.Get(gatewayRequestIDHeader), ts)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrSignatureInvalid
	}
	return nil
}

// Middleware rejects requests whose signature does not verify. dataID extracts the signed resource id.
func (v *GatewaySignatureValidator) Middleware(dataID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Verify(r, dataID(r)); err != nil {
				writeSignatureError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignGatewayManifest computes the hex HMAC-SHA256 of the notification manifest.
func SignGatewayManifest(secret, dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		id := dataID
		if isAlphanumeric(id) {
			id = strings.ToLower(id)
		}
		b.WriteString("id:" + id + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func writeSignatureError(ctx context.Context, w http.ResponseWriter, err error) {
	code := "invalid_signature"
	if errors.Is(err, ErrSignatureMissing) {
		code = "missing_signature"
	}
	writeAuthError(ctx, w, http.StatusUnauthorized, code, err.Error())
}
