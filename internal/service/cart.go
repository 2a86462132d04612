package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/event"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// ProductLookup finds a catalog product by id. *CatalogService satisfies it.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// CartView is a cart together with its derived totals.
type CartView struct {
	Lines   []domain.CartLine    `json:"lines"`
	Totals  domain.Totals        `json:"totals"`
	Display domain.DisplayTotals `json:"display"`
}

func newCartView(cart domain.Cart, pricing domain.Pricing) *CartView {
	lines := cart.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	totals := pricing.Summarize(cart)
	return &CartView{
		Lines:   lines,
		Totals:  totals,
		Display: totals.Display(),
	}
}

// CartService implements the cart operations of a session.
type CartService struct {
	sessions  *SessionService
	products  ProductLookup
	engine    *domain.Engine
	pricing   domain.Pricing
	publisher event.Publisher
	logger    *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(
	sessions *SessionService,
	products ProductLookup,
	engine *domain.Engine,
	pricing domain.Pricing,
	publisher event.Publisher,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		sessions:  sessions,
		products:  products,
		engine:    engine,
		pricing:   pricing,
		publisher: publisher,
		logger:    logger,
	}
}

// GetCart returns the session's cart. A new session has an empty cart.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return newCartView(session.Cart, s.pricing), nil
}

// AddItem adds quantity units of a catalog product to the cart.
func (s *CartService) AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*CartView, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	view, err := s.mutate(ctx, sessionID, "add", func(cart domain.Cart) (domain.Cart, error) {
		return s.engine.AddItem(cart, product, quantity)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("session_id", sessionID),
		slog.Int64("product_id", productID),
		slog.Int("quantity", quantity),
	)
	return view, nil
}

// UpdateQuantity sets a line's quantity. Quantities below 1 and unknown line
// ids leave the cart as it is.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, lineID string, quantity int) (*CartView, error) {
	return s.mutate(ctx, sessionID, "set_quantity", func(cart domain.Cart) (domain.Cart, error) {
		return domain.SetQuantity(cart, lineID, quantity), nil
	})
}

// RemoveItem removes a line. An unknown line id leaves the cart as it is.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, lineID string) (*CartView, error) {
	return s.mutate(ctx, sessionID, "remove", func(cart domain.Cart) (domain.Cart, error) {
		return domain.RemoveItem(cart, lineID), nil
	})
}

// ClearCart empties the cart.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) (*CartView, error) {
	return s.mutate(ctx, sessionID, "clear", func(cart domain.Cart) (domain.Cart, error) {
		return domain.Clear(cart), nil
	})
}

// errCartUnchanged aborts a session update whose mutation was a no-op.
var errCartUnchanged = errors.New("cart unchanged")

// mutate applies op to the session cart, saves it and publishes cart.updated.
// A mutation that leaves the cart unchanged is not saved. The cart is frozen
// while an accepted order is being processed.
func (s *CartService) mutate(ctx context.Context, sessionID, operation string, op func(domain.Cart) (domain.Cart, error)) (*CartView, error) {
	var unchanged domain.Cart
	session, err := s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		if session.Checkout.Status == domain.StatusProcessing {
			return apperrors.Conflict("cart cannot change while an order is being processed")
		}
		next, err := op(session.Cart)
		if err != nil {
			return err
		}
		if cartsEqual(session.Cart, next) {
			unchanged = session.Cart
			return errCartUnchanged
		}
		session.Cart = next
		return nil
	})
	if errors.Is(err, errCartUnchanged) {
		return newCartView(unchanged, s.pricing), nil
	}
	if err != nil {
		return nil, err
	}

	cartOperations.WithLabelValues(operation).Inc()
	view := newCartView(session.Cart, s.pricing)

	if err := s.publisher.PublishCartUpdated(ctx, sessionID, session.Cart, view.Totals); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	return view, nil
}

// cartsEqual reports whether two carts hold the same lines with the same
// quantities in the same order.
func cartsEqual(a, b domain.Cart) bool {
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i].ID != b.Lines[i].ID || a.Lines[i].Quantity != b.Lines[i].Quantity {
			return false
		}
	}
	return true
}
