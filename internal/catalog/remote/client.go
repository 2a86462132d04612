// Package remote loads the product catalog from the public catalog HTTP API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/enginerror/Shopping-Cart/internal/catalog"
	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/pkg/httpclient"
	"github.com/enginerror/Shopping-Cart/pkg/tracing"
)

// Getter issues GET requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// productResponse mirrors one entry of the catalog API payload.
type productResponse struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      *struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

func (p productResponse) toDomain() domain.Product {
	product := domain.Product{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
	}
	if p.Rating != nil {
		product.Rating = &domain.Rating{Rate: p.Rating.Rate, Count: p.Rating.Count}
	}
	return product
}

// Client fetches the catalog with a single GET per call.
type Client struct {
	http   Getter
	url    string
	logger *slog.Logger
	tracer trace.Tracer
}

var _ catalog.Provider = (*Client)(nil)

// NewClient creates a catalog client for the given products endpoint.
func NewClient(getter Getter, endpoint string, logger *slog.Logger) *Client {
	return &Client{
		http:   getter,
		url:    endpoint,
		logger: logger,
		tracer: tracing.Tracer("github.com/enginerror/Shopping-Cart/internal/catalog/remote"),
	}
}

// FetchProducts downloads and decodes the product list. Products priced below
// zero are dropped. Failures are returned as *catalog.FetchError.
func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.FetchProducts",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("catalog.url", c.url)),
	)
	defer span.End()

	products, err := c.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WarnContext(ctx, "catalog fetch failed",
			slog.String("url", c.url),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	return products, nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.Product, error) {
	resp, err := c.http.Get(ctx, c.url)
	if err != nil {
		if status := httpclient.StatusCode(err); status != 0 {
			return nil, catalog.NewStatusError(status, err)
		}
		return nil, catalog.NewTransportError(transportMessage(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, catalog.NewStatusError(resp.StatusCode, httpclient.NewStatusError(resp))
	}

	var payload []productResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, catalog.NewTransportError(
			fmt.Sprintf("invalid catalog response: %v", err),
			fmt.Errorf("decode catalog response: %w", err),
		)
	}

	products := make([]domain.Product, 0, len(payload))
	for _, p := range payload {
		if p.Price.IsNegative() {
			c.logger.WarnContext(ctx, "skipping catalog product with negative price",
				slog.Int64("product_id", p.ID),
				slog.String("price", p.Price.String()),
			)
			continue
		}
		products = append(products, p.toDomain())
	}
	return products, nil
}

// transportMessage strips the request wrapping from a transport error so the
// shopper sees the underlying reason.
func transportMessage(err error) string {
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return "catalog is temporarily unavailable"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
