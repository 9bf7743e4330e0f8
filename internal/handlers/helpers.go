package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tienda-online/api/internal/platform/auth"
	"github.com/tienda-online/api/internal/platform/httpx"
	"github.com/tienda-online/api/internal/services"
)

const defaultBodyLimit = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody writes the error response itself and reports whether decoding succeeded.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// requireIdentity returns the caller or writes 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorFor(identity *auth.Identity, adminRole string) services.Actor {
	return services.Actor{UserID: strings.TrimSpace(identity.UID), Admin: identity.HasRole(adminRole)}
}

func requireAdmin(ctx context.Context, w http.ResponseWriter, adminRole string) (*auth.Identity, bool) {
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if !identity.HasRole(adminRole) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

type serviceErrorMapping struct {
	target error
	code   string
	status int
}

// Specific sentinels first; kinds after. ErrForbidden precedes ErrValidation because it unwraps to it.
var serviceErrorMappings = []serviceErrorMapping{
	{services.ErrForbidden, "forbidden", http.StatusForbidden},
	{services.ErrCartEmpty, "cart_empty", http.StatusBadRequest},
	{services.ErrItemNotRefundable, "item_not_refundable", http.StatusBadRequest},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrItemNotFound, "item_not_found", http.StatusNotFound},
	{services.ErrProductNotFound, "product_not_found", http.StatusNotFound},
	{services.ErrCouponNotFound, "coupon_not_found", http.StatusNotFound},
	{services.ErrOrderNotCancellable, "order_not_cancellable", http.StatusConflict},
	{services.ErrCouponAlreadyUsed, "coupon_already_used", http.StatusConflict},
	{services.ErrInsufficientStock, "insufficient_stock", http.StatusConflict},
	{services.ErrOrderNumberExhausted, "order_number_unavailable", http.StatusServiceUnavailable},
	{services.ErrPreferenceCreationFailed, "preference_failed", http.StatusBadGateway},
	{services.ErrValidation, "invalid_request", http.StatusBadRequest},
	{services.ErrNotFound, "not_found", http.StatusNotFound},
	{services.ErrConflict, "conflict", http.StatusConflict},
	{services.ErrIntegrity, "integrity_error", http.StatusUnprocessableEntity},
	{services.ErrUpstream, "upstream_error", http.StatusBadGateway},
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			message := err.Error()
			if m.status >= http.StatusInternalServerError {
				message = http.StatusText(m.status)
			}
			httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}
