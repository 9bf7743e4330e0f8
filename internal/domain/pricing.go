package domain

import (
	"math"
	"time"
)

// AmountTolerance is the accepted difference between two monetary amounts.
const AmountTolerance = 0.01

// PriceQuote is the outcome of pricing a cart snapshot.
type PriceQuote struct {
	Lines      []PricedLine
	Subtotal   float64
	Discount   float64
	Total      float64
	CouponCode string
}

// PricedLine is one cart line after product-level discounts.
type PricedLine struct {
	CartLine
	UnitPrice float64
	LineTotal float64
}

// Quote prices the lines and applies the coupon when it is usable at now.
// Unit prices are rounded to cents before they are multiplied, so every amount equals what a
// gateway charges for the same lines. It has no side effects.
func Quote(lines []CartLine, coupon *Coupon, now time.Time) PriceQuote {
	return QuoteForOrder(lines, coupon, "", now)
}

// QuoteForOrder is Quote that also applies a coupon already claimed by orderNumber.
func QuoteForOrder(lines []CartLine, coupon *Coupon, orderNumber string, now time.Time) PriceQuote {
	quote := PriceQuote{Lines: make([]PricedLine, 0, len(lines))}
	var subtotal int64
	for _, line := range lines {
		unit := toCents(line.EffectivePrice())
		total := unit * int64(line.Quantity)
		quote.Lines = append(quote.Lines, PricedLine{CartLine: line, UnitPrice: fromCents(unit), LineTotal: fromCents(total)})
		subtotal += total
	}
	var discount int64
	if coupon != nil && (coupon.UsableAt(now) || coupon.ClaimedBy(orderNumber)) {
		discount = int64(math.Round(float64(subtotal) * coupon.DiscountPercentage / 100))
		quote.CouponCode = coupon.Code
	}
	quote.Subtotal = fromCents(subtotal)
	quote.Discount = fromCents(discount)
	quote.Total = fromCents(subtotal - discount)
	return quote
}

func toCents(v float64) int64 { return int64(math.Round(v * 100)) }

func fromCents(c int64) float64 { return float64(c) / 100 }

// AmountsMatch reports whether two amounts are equal within AmountTolerance.
func AmountsMatch(a, b float64) bool {
	return math.Abs(a-b) <= AmountTolerance+1e-9
}

// RoundAmount rounds to two decimals for presentation at gateway boundaries.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
