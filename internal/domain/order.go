package domain

import (
	"fmt"
	"time"
)

// Order confirmation constants.
const (
	PaymentMethodCard = "Credit Card"
	DeliveryLeadTime  = 5 * 24 * time.Hour

	orderNumberMin   = 100000
	orderNumberRange = 900000
)

// OrderNumberSource returns a random integer in [0, n).
type OrderNumberSource func(n int) int

// OrderNumber formats a six digit order number drawn from src.
func OrderNumber(src OrderNumberSource) string {
	return fmt.Sprintf("ORD-%d", orderNumberMin+src(orderNumberRange))
}

// OrderConfirmation is what the customer sees once an order is placed.
type OrderConfirmation struct {
	Number            string        `json:"number"`
	PlacedAt          time.Time     `json:"placed_at"`
	EstimatedDelivery time.Time     `json:"estimated_delivery"`
	PaymentMethod     string        `json:"payment_method"`
	CardLastFour      string        `json:"card_last_four"`
	Customer          string        `json:"customer"`
	Email             string        `json:"email"`
	Lines             []CartLine    `json:"lines"`
	Totals            Totals        `json:"totals"`
	Display           DisplayTotals `json:"display"`
}

// NewOrderConfirmation snapshots the cart and form at the moment the order is
// placed.
func NewOrderConfirmation(number string, placedAt time.Time, cart Cart, totals Totals, form CustomerForm) OrderConfirmation {
	lines := make([]CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	return OrderConfirmation{
		Number:            number,
		PlacedAt:          placedAt,
		EstimatedDelivery: placedAt.Add(DeliveryLeadTime),
		PaymentMethod:     PaymentMethodCard,
		CardLastFour:      form.CardLastFour(),
		Customer:          form.Name,
		Email:             form.Email,
		Lines:             lines,
		Totals:            totals,
		Display:           totals.Display(),
	}
}
