package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	orderNumberAttempts = 5
	orderNumberSpace    = 10_000_000
)

type orderNumberChecker interface {
	NumberExists(ctx context.Context, orderNumber string) (bool, error)
}

// OrderNumberDeps bundles collaborators for the order number generator.
type OrderNumberDeps struct {
	Orders orderNumberChecker
	Clock  func() time.Time
	// Random returns a value in [0, n). Defaults to math/rand/v2.
	Random func(n int64) int64
}

type orderNumberGenerator struct {
	orders orderNumberChecker
	now    func() time.Time
	random func(n int64) int64
}

// NewOrderNumberGenerator builds YYYYMMDD plus seven random digits.
func NewOrderNumberGenerator(deps OrderNumberDeps) (OrderNumberGenerator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order numbers: order repository is required")
	}
	random := deps.Random
	if random == nil {
		random = rand.Int64N
	}
	return &orderNumberGenerator{orders: deps.Orders, now: utcClock(deps.Clock), random: random}, nil
}

// Generate checks candidates against existing orders. The storage-level unique index on
// order numbers still decides when two generators race.
func (g *orderNumberGenerator) Generate(ctx context.Context) (string, error) {
	prefix := g.now().Format("20060102")
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%07d", prefix, g.random(orderNumberSpace))
		exists, err := g.orders.NumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrOrderNumberExhausted
}
