package domain

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
	"github.com/enginerror/Shopping-Cart/pkg/validator"
)

// Customer form field names, as used in JSON bodies and error maps.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldAddress    = "address"
	FieldCity       = "city"
	FieldZipCode    = "zipCode"
	FieldCardNumber = "cardNumber"
	FieldCardExpiry = "cardExpiry"
	FieldCardCvv    = "cardCvv"
)

// FormFields lists every form field in display order.
var FormFields = []string{
	FieldName, FieldEmail, FieldAddress, FieldCity,
	FieldZipCode, FieldCardNumber, FieldCardExpiry, FieldCardCvv,
}

// nonSpace matches any rune that is not a space. Unlike \S it also excludes
// the vertical tab and Unicode spaces such as U+00A0.
const nonSpace = `[^\s\v\p{Z}\x{FEFF}]`

var (
	emailPattern      = regexp.MustCompile(`^` + nonSpace + `+@` + nonSpace + `+\.` + nonSpace + `+$`)
	cardNumberPattern = regexp.MustCompile(`^\d{16}$`)
	cardExpiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
	cardCvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

func init() {
	rules := map[string]validator.StringRule{
		"loose_email": emailPattern.MatchString,
		"card_number": func(v string) bool {
			return cardNumberPattern.MatchString(stripWhitespace(v))
		},
		"card_expiry": cardExpiryPattern.MatchString,
		"card_cvv":    cardCvvPattern.MatchString,
	}
	for tag, rule := range rules {
		if err := validator.RegisterStringRule(tag, rule); err != nil {
			panic(err)
		}
	}
}

// fieldMessages holds the message for a missing value and for a value in the
// wrong format, per field.
var fieldMessages = map[string]struct{ required, invalid string }{
	FieldName:       {required: "Name is required"},
	FieldEmail:      {required: "Email is required", invalid: "Email is invalid"},
	FieldAddress:    {required: "Address is required"},
	FieldCity:       {required: "City is required"},
	FieldZipCode:    {required: "ZIP Code is required"},
	FieldCardNumber: {required: "Card number is required", invalid: "Card number must be 16 digits"},
	FieldCardExpiry: {required: "Expiration date is required", invalid: "Use format MM/YY"},
	FieldCardCvv:    {required: "CVV is required", invalid: "CVV must be 3 or 4 digits"},
}

// CustomerForm is the shipping and payment data entered at checkout. Values
// are kept exactly as typed.
type CustomerForm struct {
	Name       string `json:"name" validate:"notblank"`
	Email      string `json:"email" validate:"notblank,loose_email"`
	Address    string `json:"address" validate:"notblank"`
	City       string `json:"city" validate:"notblank"`
	ZipCode    string `json:"zipCode" validate:"notblank"`
	CardNumber string `json:"cardNumber" validate:"notblank,card_number"`
	CardExpiry string `json:"cardExpiry" validate:"notblank,card_expiry"`
	CardCvv    string `json:"cardCvv" validate:"notblank,card_cvv"`
}

func (f *CustomerForm) field(name string) (*string, bool) {
	switch name {
	case FieldName:
		return &f.Name, true
	case FieldEmail:
		return &f.Email, true
	case FieldAddress:
		return &f.Address, true
	case FieldCity:
		return &f.City, true
	case FieldZipCode:
		return &f.ZipCode, true
	case FieldCardNumber:
		return &f.CardNumber, true
	case FieldCardExpiry:
		return &f.CardExpiry, true
	case FieldCardCvv:
		return &f.CardCvv, true
	}
	return nil, false
}

// Get returns the value of the named field.
func (f CustomerForm) Get(name string) (string, bool) {
	p, ok := f.field(name)
	if !ok {
		return "", false
	}
	return *p, true
}

// With returns a copy of the form with the named field set to value.
func (f CustomerForm) With(name, value string) (CustomerForm, error) {
	p, ok := f.field(name)
	if !ok {
		return f, apperrors.InvalidInput(fmt.Sprintf("unknown form field %q", name))
	}
	*p = value
	return f, nil
}

// CardLastFour returns the last four digits of the card number.
func (f CustomerForm) CardLastFour() string {
	digits := stripWhitespace(f.CardNumber)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// ValidationErrors maps field names to a message. An empty map means the
// form is valid.
type ValidationErrors map[string]string

// Valid reports whether no field failed.
func (e ValidationErrors) Valid() bool {
	return len(e) == 0
}

// Clear returns a copy without the named field's error.
func (e ValidationErrors) Clear(field string) ValidationErrors {
	out := maps.Clone(e)
	if out == nil {
		return ValidationErrors{}
	}
	delete(out, field)
	return out
}

// Validate checks every field of the form and reports the first failing rule
// of each field. It never returns an error: failures are data.
func Validate(form CustomerForm) ValidationErrors {
	errs := ValidationErrors{}

	err := validator.Validate(form)
	if err == nil {
		return errs
	}

	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		// Only a non-struct argument makes the validator itself fail.
		panic(fmt.Sprintf("validate customer form: %v", err))
	}

	for field, tag := range verr.Failures() {
		msgs := fieldMessages[field]
		if tag == "notblank" {
			errs[field] = msgs.required
		} else {
			errs[field] = msgs.invalid
		}
	}
	return errs
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
