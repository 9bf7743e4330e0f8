package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":              "tienda-dev",
		"API_STOREFRONT_FRONTEND_URL":          "https://tienda.example.com/",
		"API_STOREFRONT_BACKEND_URL":           "https://api.tienda.example.com",
		"API_GATEWAY_MERCADOPAGO_ACCESS_TOKEN": "TEST-token",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "tienda-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Alerts.ProjectID != "tienda-dev" {
		t.Errorf("expected alerts project to default to firestore project, got %s", cfg.Alerts.ProjectID)
	}
	if cfg.Storefront.FrontendURL != "https://tienda.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Storefront.FrontendURL)
	}
	if cfg.Storefront.Currency != "ARS" {
		t.Errorf("unexpected currency %s", cfg.Storefront.Currency)
	}
	if cfg.Gateway.Default != "mercadopago" {
		t.Errorf("unexpected default gateway %s", cfg.Gateway.Default)
	}
	if cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("expected 5s gateway timeout, got %s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.MercadoPago.BaseURL != defaultMercadoPagoBaseURL {
		t.Errorf("unexpected base url %s", cfg.Gateway.MercadoPago.BaseURL)
	}
	if cfg.Redis.LeaseTTL != 30*time.Second {
		t.Errorf("unexpected lease ttl %s", cfg.Redis.LeaseTTL)
	}
	if cfg.Security.AdminRole != "admin" {
		t.Errorf("unexpected admin role %s", cfg.Security.AdminRole)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL || cfg.Security.OIDC.Audience != "" {
		t.Errorf("unexpected oidc defaults %+v", cfg.Security.OIDC)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultOIDCIssuer {
		t.Errorf("unexpected oidc issuers %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadOIDCIssuerList(t *testing.T) {
	env := baseEnv()
	env["API_SECURITY_OIDC_AUDIENCE"] = "https://api.tienda.example.com/internal"
	env["API_SECURITY_OIDC_ISSUERS"] = "https://accounts.google.com, ,https://cloud.google.com/iap"
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []string{"https://accounts.google.com", "https://cloud.google.com/iap"}
	if got := cfg.Security.OIDC.Issuers; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("issuers = %v, want %v", got, want)
	}
	if cfg.Security.OIDC.Audience != "https://api.tienda.example.com/internal" {
		t.Fatalf("unexpected audience %q", cfg.Security.OIDC.Audience)
	}
}

func TestLoadResolvesSecrets(t *testing.T) {
	env := baseEnv()
	env["API_GATEWAY_MERCADOPAGO_ACCESS_TOKEN"] = "sm://mp/access-token"
	env["API_GATEWAY_MERCADOPAGO_WEBHOOK_SECRET"] = "secret://mp/webhook"
	env["API_GATEWAY_TIMEOUT"] = "3s"

	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Gateway.MercadoPago.AccessToken"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.MercadoPago.AccessToken != "resolved:secret://mp/access-token" {
		t.Errorf("unexpected access token %q", cfg.Gateway.MercadoPago.AccessToken)
	}
	if cfg.Gateway.MercadoPago.WebhookSecret != "resolved:secret://mp/webhook" {
		t.Errorf("unexpected webhook secret %q", cfg.Gateway.MercadoPago.WebhookSecret)
	}
	if cfg.Gateway.Timeout != 3*time.Second {
		t.Errorf("unexpected timeout %s", cfg.Gateway.Timeout)
	}
	if len(refs) != 2 {
		t.Errorf("expected 2 secret lookups, got %v", refs)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	env := baseEnv()
	env["API_GATEWAY_MERCADOPAGO_ACCESS_TOKEN"] = "secret://mp/access-token"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://mp/access-token" {
		t.Errorf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{"API_GATEWAY_DEFAULT": "paypal"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Firestore.ProjectID":    true,
		"Storefront.FrontendURL": true,
		"Storefront.BackendURL":  true,
		"Gateway.Default":        true,
	}
	for _, field := range validationErr.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Errorf("missing expected fields %v in %v", want, validationErr.Fields())
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Gateway.Stripe.WebhookSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Gateway.Stripe.WebhookSecret" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local\nexport API_SERVER_PORT=7070\nAPI_STOREFRONT_CURRENCY='usd'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected env map to override dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Storefront.Currency != "USD" {
		t.Errorf("expected dotenv currency USD, got %s", cfg.Storefront.Currency)
	}

	values, err := EnvironmentValues(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["API_SERVER_PORT"] != "9090" || values["API_STOREFRONT_CURRENCY"] != "usd" {
		t.Errorf("unexpected values %v", values)
	}
}
