// Package billing holds the money arithmetic and error taxonomy shared by
// the billing engine. All monetary values are minor units (pence) carried as
// int64; formatting to two decimal places happens only at the edges.
package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// Pence is a monetary amount in minor units of the reporting currency.
type Pence int64

// Format renders an amount as a plain two-decimal string, e.g. "60.00".
func (p Pence) Format() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Pounds returns the amount as a float for presentation-only use.
func (p Pence) Pounds() float64 {
	return float64(p) / 100
}

// ParsePence parses a decimal string ("60", "60.5", "60.00") into pence.
// More than two fractional digits is rejected.
func ParsePence(s string) (Pence, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("billing: empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("billing: parse amount %q: %w", s, err)
	}
	var f int64
	switch len(frac) {
	case 0:
	case 1:
		f, err = strconv.ParseInt(frac, 10, 64)
		f *= 10
	case 2:
		f, err = strconv.ParseInt(frac, 10, 64)
	default:
		return 0, fmt.Errorf("billing: amount %q has more than two decimal places", s)
	}
	if err != nil {
		return 0, fmt.Errorf("billing: parse amount %q: %w", s, err)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Pence(v), nil
}

// FromFloat converts a float amount in major units to pence, rounding
// half-up away from zero.
func FromFloat(v float64) Pence {
	if v >= 0 {
		return Pence(int64(v*100 + 0.5))
	}
	return Pence(-int64(-v*100 + 0.5))
}

// Half returns 50% of the amount rounded half-up. Used for same-day
// cancellation fees.
func (p Pence) Half() Pence {
	if p < 0 {
		return -((-p + 1) / 2)
	}
	return (p + 1) / 2
}

// TaxOn computes tax at the given rate (basis points, i.e. percent x 100)
// on a net amount, rounding half-up.
func TaxOn(net Pence, rateBP int) Pence {
	if net <= 0 || rateBP <= 0 {
		return 0
	}
	return Pence(mulDivHalfUp(int64(net), int64(rateBP), 10000))
}

// mulDivHalfUp computes a*num/den with half-up rounding. Inputs are
// non-negative.
func mulDivHalfUp(a, num, den int64) int64 {
	return (a*num + den/2) / den
}
