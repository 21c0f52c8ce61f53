// Package pricing computes order totals from a list of priced lines.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Line is one priced cart or order line. UnitPrice is either the current
// catalog price (live cart display) or the snapshotted order-line price
// (historical orders); callers must not mix the two in one call.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Calculator applies a fixed tax rate and a flat shipping fee.
type Calculator struct {
	taxRate     decimal.Decimal
	shippingFee decimal.Decimal
}

func NewCalculator(taxRate, shippingFee string) (*Calculator, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("parse tax rate: %w", err)
	}
	fee, err := decimal.NewFromString(shippingFee)
	if err != nil {
		return nil, fmt.Errorf("parse shipping fee: %w", err)
	}
	return &Calculator{taxRate: rate, shippingFee: fee}, nil
}

// Subtotal sums unit price times quantity over lines without rounding.
// Used directly for live cart display, where tax and shipping do not apply.
func Subtotal(lines []Line) decimal.Decimal {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return subtotal
}

// Totals computes subtotal, tax, shipping and total for lines. Monetary
// outputs are rounded half-up to 2 decimal places at the end, never between
// steps.
func (c *Calculator) Totals(lines []Line) Totals {
	subtotal := Subtotal(lines)
	tax := subtotal.Mul(c.taxRate)
	total := subtotal.Add(tax).Add(c.shippingFee)

	return Totals{
		Subtotal: subtotal.Round(2),
		Tax:      tax.Round(2),
		Shipping: c.shippingFee.Round(2),
		Total:    total.Round(2),
	}
}
