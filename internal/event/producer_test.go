package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	pkgkafka "github.com/enginerror/Shopping-Cart/pkg/kafka"
	"github.com/enginerror/Shopping-Cart/pkg/logger"
)

type mockEventWriter struct {
	mock.Mock
}

func (m *mockEventWriter) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCart(t *testing.T) domain.Cart {
	t.Helper()
	cart, err := domain.NewEngine(func() string { return "line-1" }).AddItem(domain.NewCart(), domain.Product{
		ID:    3,
		Title: "Backpack",
		Price: decimal.RequireFromString("9.99"),
	}, 3)
	require.NoError(t, err)
	return cart
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "shopease.cart.updated", TopicCartUpdated)
	assert.Equal(t, "shopease.order.placed", TopicOrderPlaced)
}

func TestPublishCartUpdated(t *testing.T) {
	writer := new(mockEventWriter)
	p := NewProducer(writer, newTestLogger())
	cart := sampleCart(t)
	totals := domain.DefaultPricing().Summarize(cart)
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	var published *pkgkafka.Event
	writer.On("Publish", ctx, TopicCartUpdated, mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { published = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	require.NoError(t, p.PublishCartUpdated(ctx, "sess-1", cart, totals))
	writer.AssertExpectations(t)

	require.NotNil(t, published)
	assert.Equal(t, "sess-1", published.AggregateID)
	assert.Equal(t, AggregateTypeSession, published.AggregateType)
	assert.Equal(t, SourceStorefront, published.Source)
	assert.Equal(t, "corr-1", published.CorrelationID)

	var data CartUpdatedData
	require.NoError(t, published.UnmarshalData(&data))
	assert.Equal(t, 3, data.ItemCount)
	assert.Equal(t, "42.3676", data.Total.String())
	require.Len(t, data.Lines, 1)
	assert.Equal(t, int64(3), data.Lines[0].ProductID)
}

func TestPublishOrderPlaced(t *testing.T) {
	writer := new(mockEventWriter)
	p := NewProducer(writer, newTestLogger())
	cart := sampleCart(t)
	totals := domain.DefaultPricing().Summarize(cart)
	placed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := domain.NewOrderConfirmation("ORD-424242", placed, cart, totals, domain.CustomerForm{Name: "Ada"})
	ctx := context.Background()

	var published *pkgkafka.Event
	writer.On("Publish", ctx, TopicOrderPlaced, mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { published = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	require.NoError(t, p.PublishOrderPlaced(ctx, "sess-1", order))

	require.NotNil(t, published)
	assert.Empty(t, published.CorrelationID)

	var data OrderPlacedData
	require.NoError(t, published.UnmarshalData(&data))
	assert.Equal(t, "ORD-424242", data.OrderNumber)
	assert.Equal(t, "10", data.Shipping.String())
	assert.True(t, placed.Equal(data.PlacedAt))
}

func TestPublish_WriterError(t *testing.T) {
	writer := new(mockEventWriter)
	p := NewProducer(writer, newTestLogger())
	writer.On("Publish", mock.Anything, TopicCartUpdated, mock.Anything).Return(errors.New("broker down"))

	err := p.PublishCartUpdated(context.Background(), "sess-1", domain.NewCart(), domain.Totals{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), TopicCartUpdated)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishCartUpdated(context.Background(), "s", domain.NewCart(), domain.Totals{}))
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), "s", domain.OrderConfirmation{}))
}
