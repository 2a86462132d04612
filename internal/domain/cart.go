package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// IDGenerator produces identifiers for new cart lines.
type IDGenerator func() string

// CartLine is one product in the cart. A cart holds at most one line per
// product id.
type CartLine struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// LineTotal returns price times quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines. Carts are values: every operation returns
// a new cart and leaves its input untouched.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// NewCart returns an empty cart.
func NewCart() Cart {
	return Cart{Lines: []CartLine{}}
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the sum of all line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Subtotal is the unrounded sum of price times quantity over all lines.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// Line returns the line with the given id.
func (c Cart) Line(lineID string) (CartLine, bool) {
	if i := c.indexOfLine(lineID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

func (c Cart) indexOfLine(lineID string) int {
	for i, l := range c.Lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func (c Cart) indexOfProduct(productID int64) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// copyLines returns a copy of the lines with room for extra more.
func (c Cart) copyLines(extra int) []CartLine {
	lines := make([]CartLine, len(c.Lines), len(c.Lines)+extra)
	copy(lines, c.Lines)
	return lines
}

// Engine applies cart mutations. It owns the line id generator so tests can
// make ids predictable.
type Engine struct {
	newID IDGenerator
}

// NewEngine creates an Engine. A nil generator falls back to random UUIDs.
func NewEngine(ids IDGenerator) *Engine {
	if ids == nil {
		ids = uuid.NewString
	}
	return &Engine{newID: ids}
}

// AddItem adds quantity units of product. If the product is already in the
// cart its line keeps its id and position and the quantity is increased;
// otherwise a new line is appended.
func (e *Engine) AddItem(cart Cart, product Product, quantity int) (Cart, error) {
	if quantity < 1 {
		return cart, apperrors.InvalidInput(fmt.Sprintf("quantity must be at least 1, got %d", quantity))
	}

	if i := cart.indexOfProduct(product.ID); i >= 0 {
		lines := cart.copyLines(0)
		lines[i].Quantity += quantity
		return Cart{Lines: lines}, nil
	}

	lines := cart.copyLines(1)
	lines = append(lines, CartLine{
		ID:       e.newID(),
		Product:  product,
		Quantity: quantity,
	})
	return Cart{Lines: lines}, nil
}

// RemoveItem drops the line with the given id. An unknown id leaves the cart
// unchanged.
func RemoveItem(cart Cart, lineID string) Cart {
	i := cart.indexOfLine(lineID)
	if i < 0 {
		return cart
	}
	lines := make([]CartLine, 0, len(cart.Lines)-1)
	lines = append(lines, cart.Lines[:i]...)
	lines = append(lines, cart.Lines[i+1:]...)
	return Cart{Lines: lines}
}

// SetQuantity replaces the quantity of a line. Quantities below 1 are ignored
// rather than removing the line; removal goes through RemoveItem. An unknown
// id leaves the cart unchanged.
func SetQuantity(cart Cart, lineID string, quantity int) Cart {
	if quantity < 1 {
		return cart
	}
	i := cart.indexOfLine(lineID)
	if i < 0 {
		return cart
	}
	lines := cart.copyLines(0)
	lines[i].Quantity = quantity
	return Cart{Lines: lines}
}

// Clear returns an empty cart.
func Clear(Cart) Cart {
	return NewCart()
}
