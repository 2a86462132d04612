package domain

import "github.com/shopspring/decimal"

// displayPlaces is the number of decimal places amounts are rounded to for display.
const displayPlaces = 2

// Pricing holds the shipping and tax rules applied to a cart subtotal.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPricing ships free above 100, charges a flat 10 otherwise and taxes
// the subtotal at 8%.
func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.NewFromInt(10),
		TaxRate:               decimal.RequireFromString("0.08"),
	}
}

// Shipping is free when the subtotal is strictly above the threshold.
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.ShippingFee
}

// Tax is charged on the subtotal only, never on shipping.
func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate)
}

// Total adds subtotal, shipping and tax without rounding.
func (p Pricing) Total(subtotal, shipping, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Add(shipping).Add(tax)
}

// Summarize derives every cart total in one pass.
func (p Pricing) Summarize(cart Cart) Totals {
	subtotal := cart.Subtotal()
	shipping := p.Shipping(subtotal)
	tax := p.Tax(subtotal)
	return Totals{
		ItemCount: cart.ItemCount(),
		Subtotal:  subtotal,
		Shipping:  shipping,
		Tax:       tax,
		Total:     p.Total(subtotal, shipping, tax),
	}
}

// Totals are the unrounded amounts derived from a cart.
type Totals struct {
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// DisplayTotals are totals rounded to two decimal places for presentation.
type DisplayTotals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// Display rounds each amount independently. The rounded parts need not add up
// to the rounded total.
func (t Totals) Display() DisplayTotals {
	return DisplayTotals{
		Subtotal: FormatAmount(t.Subtotal),
		Shipping: FormatAmount(t.Shipping),
		Tax:      FormatAmount(t.Tax),
		Total:    FormatAmount(t.Total),
	}
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(displayPlaces)
}
