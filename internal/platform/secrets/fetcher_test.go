package secrets

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

type stubSecretClient struct {
	values map[string]string
	calls  []string
	err    error
}

func (s *stubSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls = append(s.calls, req.GetName())
	if s.err != nil {
		return nil, s.err
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(s.values[req.GetName()] + "\n")},
	}, nil
}

func (s *stubSecretClient) Close() error { return nil }

func TestFetcherResolvesAndCaches(t *testing.T) {
	client := &stubSecretClient{values: map[string]string{
		"projects/tienda/secrets/mp-access-token/versions/latest": "APP_USR-1",
		"projects/tienda/secrets/stripe/versions/3":               "sk_live",
	}}
	f, err := NewFetcher(context.Background(), WithProject("tienda"), withClient(client))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := f.ResolveSecret(context.Background(), "secret://mp/access-token")
		if err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
		if got != "APP_USR-1" {
			t.Fatalf("unexpected value %q", got)
		}
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected cached second lookup, got %d calls", len(client.calls))
	}

	got, err := f.ResolveSecret(context.Background(), "secret://stripe@3")
	if err != nil || got != "sk_live" {
		t.Fatalf("versioned lookup: %q %v", got, err)
	}
}

func TestFetcherLocalValuesAndErrors(t *testing.T) {
	client := &stubSecretClient{err: errors.New("permission denied")}
	f, err := NewFetcher(context.Background(), WithProject("tienda"), withClient(client),
		WithLocalValues(map[string]string{"mp/webhook": "local-secret"}))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := f.ResolveSecret(context.Background(), "secret://mp/webhook")
	if err != nil || got != "local-secret" {
		t.Fatalf("expected local value, got %q %v", got, err)
	}
	if _, err := f.ResolveSecret(context.Background(), "secret://mp/other"); err == nil {
		t.Fatal("expected upstream error")
	}
	if _, err := f.ResolveSecret(context.Background(), "plain"); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
}
