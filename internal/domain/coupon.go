package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeCouponCode trims and upper-cases a coupon code so lookups are case-insensitive.
func NormalizeCouponCode(code string) string {
	// Casers carry state, so each call gets its own.
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// ValidDiscountPercentage reports whether pct is within 1..100.
func ValidDiscountPercentage(pct float64) bool {
	return pct >= 1 && pct <= 100
}
