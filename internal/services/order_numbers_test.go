package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

type stubNumberChecker struct {
	taken map[string]bool
	calls int
	err   error
}

func (s *stubNumberChecker) NumberExists(_ context.Context, n string) (bool, error) {
	s.calls++
	return s.taken[n], s.err
}

func TestOrderNumberFormat(t *testing.T) {
	gen, err := NewOrderNumberGenerator(OrderNumberDeps{Orders: &stubNumberChecker{}, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewOrderNumberGenerator: %v", err)
	}
	n, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !regexp.MustCompile(`^20250101\d{7}$`).MatchString(n) {
		t.Fatalf("unexpected order number %q", n)
	}
}

func TestOrderNumberRetriesThenExhausts(t *testing.T) {
	seq := []int64{1, 1, 2}
	i := 0
	checker := &stubNumberChecker{taken: map[string]bool{"202501010000001": true}}
	gen, _ := NewOrderNumberGenerator(OrderNumberDeps{
		Orders: checker,
		Clock:  fixedClock,
		Random: func(int64) int64 { v := seq[i]; i++; return v },
	})
	n, err := gen.Generate(context.Background())
	if err != nil || n != "202501010000002" {
		t.Fatalf("expected third candidate, got %q err=%v", n, err)
	}

	checker = &stubNumberChecker{taken: map[string]bool{"202501010000007": true}}
	gen, _ = NewOrderNumberGenerator(OrderNumberDeps{Orders: checker, Clock: fixedClock, Random: func(int64) int64 { return 7 }})
	if _, err := gen.Generate(context.Background()); !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected ErrOrderNumberExhausted, got %v", err)
	}
	if checker.calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", checker.calls)
	}
}
