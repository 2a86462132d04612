package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	pkgkafka "github.com/enginerror/Shopping-Cart/pkg/kafka"
	"github.com/enginerror/Shopping-Cart/pkg/logger"
)

// Kafka topics for storefront domain events.
var (
	TopicCartUpdated = pkgkafka.Topic("cart", "updated")
	TopicOrderPlaced = pkgkafka.Topic("order", "placed")
)

// Aggregate type for events keyed by session id.
const AggregateTypeSession = "session"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// Publisher emits storefront domain events. Publishing is best effort:
// callers log failures and carry on.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, sessionID string, cart domain.Cart, totals domain.Totals) error
	PublishOrderPlaced(ctx context.Context, sessionID string, order domain.OrderConfirmation) error
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string          `json:"session_id"`
	Lines     []LineData      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
}

// LineData is the line payload within storefront events.
type LineData struct {
	LineID    string          `json:"line_id"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// OrderPlacedData is the payload for an order.placed event.
type OrderPlacedData struct {
	SessionID         string          `json:"session_id"`
	OrderNumber       string          `json:"order_number"`
	PlacedAt          time.Time       `json:"placed_at"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	Lines             []LineData      `json:"lines"`
	ItemCount         int             `json:"item_count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Shipping          decimal.Decimal `json:"shipping"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
}

func linesData(lines []domain.CartLine) []LineData {
	out := make([]LineData, len(lines))
	for i, l := range lines {
		out[i] = LineData{
			LineID:    l.ID,
			ProductID: l.Product.ID,
			Title:     l.Product.Title,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
		}
	}
	return out
}

// EventWriter writes an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type EventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  EventWriter
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a new event producer for the storefront.
func NewProducer(kafka EventWriter, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, cart domain.Cart, totals domain.Totals) error {
	data := CartUpdatedData{
		SessionID: sessionID,
		Lines:     linesData(cart.Lines),
		ItemCount: totals.ItemCount,
		Subtotal:  totals.Subtotal,
		Total:     totals.Total,
	}

	if err := p.publish(ctx, TopicCartUpdated, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", sessionID),
		slog.Int("item_count", totals.ItemCount),
	)
	return nil
}

// PublishOrderPlaced publishes an order.placed event.
func (p *Producer) PublishOrderPlaced(ctx context.Context, sessionID string, order domain.OrderConfirmation) error {
	data := OrderPlacedData{
		SessionID:         sessionID,
		OrderNumber:       order.Number,
		PlacedAt:          order.PlacedAt,
		EstimatedDelivery: order.EstimatedDelivery,
		Lines:             linesData(order.Lines),
		ItemCount:         order.Totals.ItemCount,
		Subtotal:          order.Totals.Subtotal,
		Shipping:          order.Totals.Shipping,
		Tax:               order.Totals.Tax,
		Total:             order.Totals.Total,
	}

	if err := p.publish(ctx, TopicOrderPlaced, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.placed event",
		slog.String("session_id", sessionID),
		slog.String("order_number", order.Number),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeSession, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// NopPublisher drops every event. It is used when Kafka is disabled.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// PublishCartUpdated does nothing.
func (NopPublisher) PublishCartUpdated(context.Context, string, domain.Cart, domain.Totals) error {
	return nil
}

// PublishOrderPlaced does nothing.
func (NopPublisher) PublishOrderPlaced(context.Context, string, domain.OrderConfirmation) error {
	return nil
}
