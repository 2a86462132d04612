package domain

import (
	"fmt"

	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// Checkout status constants.
const (
	StatusIdle       = "idle"
	StatusValidating = "validating"
	StatusProcessing = "processing"
	StatusSubmitted  = "submitted"
)

// Checkout is the state of the checkout form for one session. Transitions
// are pure and return a new value.
type Checkout struct {
	Status  string             `json:"status"`
	Form    CustomerForm       `json:"form"`
	Errors  ValidationErrors   `json:"errors"`
	Attempt int                `json:"attempt"`
	Order   *OrderConfirmation `json:"order,omitempty"`
}

// NewCheckout returns an idle checkout with an empty form.
func NewCheckout() Checkout {
	return Checkout{Status: StatusIdle, Errors: ValidationErrors{}}
}

// Rejected reports whether the last submission failed validation.
func (c Checkout) Rejected() bool {
	return c.Status == StatusIdle && !c.Errors.Valid()
}

// restart discards a submitted order and starts a fresh form. The attempt
// counter is kept so stale processing results can never match again.
func (c Checkout) restart() Checkout {
	if c.Status != StatusSubmitted {
		return c
	}
	fresh := NewCheckout()
	fresh.Attempt = c.Attempt
	return fresh
}

// EditField sets one form value and clears any error shown for it.
func (c Checkout) EditField(field, value string) (Checkout, error) {
	if c.Status == StatusProcessing {
		return c, apperrors.Conflict("order is being processed")
	}
	next := c.restart()

	form, err := next.Form.With(field, value)
	if err != nil {
		return c, err
	}
	next.Form = form
	next.Errors = next.Errors.Clear(field)
	return next, nil
}

// Submit validates the form. A valid form moves the checkout to processing
// under a new attempt number; an invalid one returns to idle with the field
// errors set.
func (c Checkout) Submit(cartEmpty bool) (Checkout, error) {
	if c.Status == StatusProcessing {
		return c, apperrors.Conflict("order is already being processed")
	}
	next := c.restart()
	if cartEmpty {
		return c, apperrors.InvalidInput("cart is empty")
	}

	next.Status = StatusValidating
	errs := Validate(next.Form)
	if !errs.Valid() {
		next.Status = StatusIdle
		next.Errors = errs
		return next, nil
	}

	next.Status = StatusProcessing
	next.Errors = ValidationErrors{}
	next.Attempt++
	return next, nil
}

// Complete records the placed order. It only applies to the processing run
// identified by attempt.
func (c Checkout) Complete(attempt int, order OrderConfirmation) (Checkout, error) {
	if c.Status != StatusProcessing || c.Attempt != attempt {
		return c, apperrors.Conflict(fmt.Sprintf("checkout attempt %d is not processing", attempt))
	}
	next := c
	next.Status = StatusSubmitted
	next.Order = &order
	return next, nil
}

// Abandon returns a processing run to idle without placing the order. Any
// other state is returned unchanged.
func (c Checkout) Abandon(attempt int) Checkout {
	if c.Status != StatusProcessing || c.Attempt != attempt {
		return c
	}
	next := c
	next.Status = StatusIdle
	return next
}
