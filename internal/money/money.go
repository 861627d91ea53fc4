// Package money computes order totals in integer minor units.
//
// All amounts are int64 counts of 1/100 of the major currency unit. The
// payment gateway encodes amounts the same way (major amount x 100), so a
// total produced here is sent to the gateway without further conversion.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/heremarket/orders/internal/domain"
)

// MinorPerMajor is the number of minor units in one major unit.
const MinorPerMajor = 100

var minorScale = decimal.NewFromInt(MinorPerMajor)

// Line is a priced quantity.
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Breakdown is the result of ComputeTotal.
type Breakdown struct {
	Subtotal int64
	Discount int64
	Total    int64
}

// ComputeTotal returns sum(unitPrice x quantity) - discount.
func ComputeTotal(lines []Line, discount int64) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, domain.Invalid("items", "at least one item is required")
	}
	if discount < 0 {
		return Breakdown{}, domain.Invalid("discount", "must not be negative")
	}

	var subtotal int64
	for i, line := range lines {
		if line.Quantity < 1 {
			return Breakdown{}, domain.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if line.UnitPrice < 0 {
			return Breakdown{}, domain.Invalid(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		}
		qty := int64(line.Quantity)
		if line.UnitPrice > 0 && qty > math.MaxInt64/line.UnitPrice {
			return Breakdown{}, domain.Invalid(fmt.Sprintf("items[%d]", i), "amount out of range")
		}
		amount := line.UnitPrice * qty
		if subtotal > math.MaxInt64-amount {
			return Breakdown{}, domain.Invalid("items", "amount out of range")
		}
		subtotal += amount
	}

	if discount > subtotal {
		return Breakdown{}, domain.Invalid("discount", "must not exceed subtotal")
	}

	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal - discount,
	}, nil
}

// FromMajor converts a major-unit price (as stored by the catalog) into minor
// units, rounding half away from zero.
func FromMajor(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.Invalid("price", "not a finite number")
	}
	if v < 0 {
		return 0, domain.Invalid("price", "must not be negative")
	}
	minor := decimal.NewFromFloat(v).Mul(minorScale).Round(0)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, domain.Invalid("price", "amount out of range")
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a fixed two-decimal major amount, e.g. "1000.50".
func Format(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
