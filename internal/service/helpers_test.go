package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/repository/memory"
)

// ============================================================================
// Mocks
// ============================================================================

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// A function return hands out a fresh session per call.
	if fn, ok := args.Get(0).(func(context.Context, string) *domain.Session); ok {
		return fn(ctx, id), args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) SaveIfVersion(ctx context.Context, session *domain.Session, expectedVersion int) (bool, error) {
	args := m.Called(ctx, session, expectedVersion)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu          sync.Mutex
	cartUpdates []string
	orders      []domain.OrderConfirmation
	err         error
}

func (p *recordingPublisher) PublishCartUpdated(_ context.Context, sessionID string, _ domain.Cart, _ domain.Totals) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cartUpdates = append(p.cartUpdates, sessionID)
	return p.err
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, _ string, order domain.OrderConfirmation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	return p.err
}

func (p *recordingPublisher) orderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}

func (p *recordingPublisher) cartUpdateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cartUpdates)
}

// stubLookup serves products from a fixed list.
type stubLookup struct {
	products []domain.Product
}

func (s stubLookup) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	if p, ok := domain.FindProduct(s.products, id); ok {
		return p, nil
	}
	return domain.Product{}, fmt.Errorf("product %d: not found", id)
}

// ============================================================================
// Fixtures
// ============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Title: "Backpack", Price: decimal.RequireFromString("9.99"), Category: "men's clothing", Description: "Fits laptops"},
		{ID: 2, Title: "Jacket", Price: decimal.RequireFromString("150"), Category: "women's clothing"},
		{ID: 3, Title: "Ring", Price: decimal.RequireFromString("20"), Category: "jewelery"},
	}
}

func sequentialIDs() domain.IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("line-%d", n)
	}
}

func validFields() map[string]string {
	return map[string]string{
		domain.FieldName:       "Ada Lovelace",
		domain.FieldEmail:      "ada@example.com",
		domain.FieldAddress:    "12 Analytical Row",
		domain.FieldCity:       "London",
		domain.FieldZipCode:    "N1 9GU",
		domain.FieldCardNumber: "4111 1111 1111 1111",
		domain.FieldCardExpiry: "12/29",
		domain.FieldCardCvv:    "123",
	}
}

type fixture struct {
	repo      *memory.SessionRepository
	sessions  *SessionService
	carts     *CartService
	checkout  *CheckoutService
	publisher *recordingPublisher
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	repo := memory.NewSessionRepository()
	sessions := NewSessionService(repo, newTestLogger(), time.Hour)
	publisher := &recordingPublisher{}
	pricing := domain.DefaultPricing()

	f := &fixture{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		carts: NewCartService(sessions, stubLookup{products: sampleProducts()},
			domain.NewEngine(sequentialIDs()), pricing, publisher, newTestLogger()),
		checkout: NewCheckoutService(sessions, pricing, publisher, newTestLogger(), CheckoutConfig{
			ProcessingDelay: delay,
			OrderNumbers:    func(int) int { return 23456 },
		}),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.checkout.Shutdown(ctx)
	})
	return f
}
