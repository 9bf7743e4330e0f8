package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNewRouterDefaultMounts(t *testing.T) {
	router := NewRouter()

	cases := []struct {
		method string
		path   string
		status int
		code   string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/orders", http.StatusNotImplemented, "not_implemented"},
		{http.MethodPost, "/api/v1/webhooks/mercadopago", http.StatusNotImplemented, "not_implemented"},
		{http.MethodPost, "/api/v1/internal/reconcile", http.StatusNotImplemented, "not_implemented"},
		{http.MethodGet, "/nope", http.StatusNotFound, errorNotFoundCode},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s %s: expected json content type, got %q", tc.method, tc.path, ct)
		}
		if tc.code == "" {
			continue
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != tc.code {
			t.Fatalf("%s %s: expected code %s, got %v", tc.method, tc.path, tc.code, body["error"])
		}
	}
}

func TestNewRouterCombinesOrderRegistrars(t *testing.T) {
	mark := func(path string) RouteRegistrar {
		return func(r chi.Router) {
			r.Get(path, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		}
	}
	var groupHit bool
	router := NewRouter(
		WithOrderRoutes(mark("/a"), nil, mark("/b")),
		WithWebhookMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				groupHit = true
				next.ServeHTTP(w, r)
			})
		}),
		WithWebhookRoutes(mark("/ping")),
	)

	for _, path := range []string{"/api/v1/orders/a", "/api/v1/orders/b", "/api/v1/webhooks/ping"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusTeapot {
			t.Fatalf("%s: expected registrar to handle, got %d", path, rr.Code)
		}
	}
	if !groupHit {
		t.Fatal("expected webhook group middleware to run")
	}
}

func TestNewRouterGuardsInternalGroup(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(
		WithInternalMiddlewares(deny),
		WithInternalRoutes(func(r chi.Router) {
			r.Post("/reconcile", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		}),
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/mercadopago", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/reconcile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated internal call: expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/reconcile", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("authenticated internal call: expected handler, got %d", rr.Code)
	}

	// Internal middleware must not leak onto other groups.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("webhook call: expected handler, got %d", rr.Code)
	}
}
