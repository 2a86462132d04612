package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxStars is the width of the star rating shown for a product.
const maxStars = 5

// Product is a catalog entry as served by the catalog API. Products are
// immutable once loaded.
type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Image       string          `json:"image"`
	Rating      *Rating         `json:"rating,omitempty"`
}

// Rating is the aggregate customer rating of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Stars renders the rating rounded to the nearest whole star, filled stars
// first. A product without a rating shows five empty stars.
func (p Product) Stars() string {
	filled := 0
	if p.Rating != nil {
		filled = int(math.Round(p.Rating.Rate))
	}
	filled = min(max(filled, 0), maxStars)
	return strings.Repeat("★", filled) + strings.Repeat("☆", maxStars-filled)
}
