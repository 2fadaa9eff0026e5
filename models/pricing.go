package models

import "github.com/shopspring/decimal"

// TaxRate is the flat rate applied to every cart subtotal.
var TaxRate = decimal.NewFromFloat(0.025)

// CartTotals computes subtotal, tax and total for a set of cart line items.
// Subtotal is the exact sum of quantity times unit price. Tax and total are
// rounded half-up to two decimal places; money never passes through floats.
func CartTotals(items []CartItem) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	tax = subtotal.Mul(TaxRate).Round(2)
	total = subtotal.Add(tax).Round(2)
	return subtotal, tax, total
}
