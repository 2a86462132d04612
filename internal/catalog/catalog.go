package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/enginerror/Shopping-Cart/internal/domain"
)

// ErrCatalogUnavailable is the sentinel wrapped by every FetchError.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Provider loads the full product catalog.
type Provider interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// FetchError reports a failed catalog load. Message is safe to show to the
// shopper; StatusCode is set when the catalog answered with a non-2xx status.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

// NewStatusError builds the error for a non-2xx catalog response.
func NewStatusError(status int, cause error) *FetchError {
	return &FetchError{
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP error! status: %d", status),
		Err:        cause,
	}
}

// NewTransportError builds the error for a request that got no response.
func NewTransportError(message string, cause error) *FetchError {
	return &FetchError{Message: message, Err: cause}
}

func (e *FetchError) Error() string {
	return "fetch catalog: " + e.Message
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCatalogUnavailable}
	}
	return []error{ErrCatalogUnavailable, e.Err}
}
