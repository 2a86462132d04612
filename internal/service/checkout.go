package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/event"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
	"github.com/enginerror/Shopping-Cart/pkg/logger"
)

// Default checkout settings.
const (
	DefaultProcessingDelay  = 1500 * time.Millisecond
	defaultMaxWriteAttempts = 3
	abandonWriteTimeout     = 2 * time.Second
)

var (
	// errSessionEnded cancels processing when the shopper ends the session.
	errSessionEnded = errors.New("session ended")
	// errShuttingDown cancels processing when the service stops.
	errShuttingDown = errors.New("service shutting down")
	// errStaleAttempt reports that the processing run is no longer current.
	errStaleAttempt = errors.New("processing attempt is no longer current")
)

// CheckoutConfig holds checkout service settings.
type CheckoutConfig struct {
	ProcessingDelay  time.Duration
	MaxWriteAttempts int
	OrderNumbers     domain.OrderNumberSource
}

// CheckoutView is the checkout state with the totals of the current cart.
type CheckoutView struct {
	Checkout  domain.Checkout      `json:"checkout"`
	Rejected  bool                 `json:"rejected"`
	CartEmpty bool                 `json:"cart_empty"`
	Totals    domain.Totals        `json:"totals"`
	Display   domain.DisplayTotals `json:"display"`
}

// ProcessingTask is one running order placement.
type ProcessingTask struct {
	SessionID string
	Attempt   int

	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

// Done is closed when the task has finished.
func (t *ProcessingTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done. It returns the task's
// error, which is nil for a placed order.
func (t *ProcessingTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckoutService runs the checkout form and order placement of a session.
type CheckoutService struct {
	sessions  *SessionService
	pricing   domain.Pricing
	publisher event.Publisher
	logger    *slog.Logger
	cfg       CheckoutConfig
	nowFunc   func() time.Time

	baseCtx context.Context
	stop    context.CancelCauseFunc

	mu     sync.Mutex
	tasks  map[string]*ProcessingTask
	closed bool
	wg     sync.WaitGroup
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	sessions *SessionService,
	pricing domain.Pricing,
	publisher event.Publisher,
	logger *slog.Logger,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = DefaultProcessingDelay
	}
	if cfg.MaxWriteAttempts <= 0 {
		cfg.MaxWriteAttempts = defaultMaxWriteAttempts
	}
	if cfg.OrderNumbers == nil {
		cfg.OrderNumbers = rand.IntN
	}

	baseCtx, stop := context.WithCancelCause(context.Background())
	return &CheckoutService{
		sessions:  sessions,
		pricing:   pricing,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		nowFunc:   func() time.Time { return time.Now().UTC() },
		baseCtx:   baseCtx,
		stop:      stop,
		tasks:     make(map[string]*ProcessingTask),
	}
}

func (s *CheckoutService) newView(session *domain.Session) *CheckoutView {
	totals := s.pricing.Summarize(session.Cart)
	checkout := session.Checkout
	if checkout.Errors == nil {
		checkout.Errors = domain.ValidationErrors{}
	}
	return &CheckoutView{
		Checkout:  checkout,
		Rejected:  checkout.Rejected(),
		CartEmpty: session.Cart.IsEmpty(),
		Totals:    totals,
		Display:   totals.Display(),
	}
}

// GetCheckout returns the checkout state of the session.
func (s *CheckoutService) GetCheckout(ctx context.Context, sessionID string) (*CheckoutView, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.newView(session), nil
}

// applyFields sets each field in display order so the result does not depend
// on map iteration.
func applyFields(checkout domain.Checkout, fields map[string]string) (domain.Checkout, error) {
	for name := range fields {
		if !slices.Contains(domain.FormFields, name) {
			return checkout, apperrors.InvalidInput(fmt.Sprintf("unknown form field %q", name))
		}
	}
	for _, name := range domain.FormFields {
		value, ok := fields[name]
		if !ok {
			continue
		}
		next, err := checkout.EditField(name, value)
		if err != nil {
			return checkout, err
		}
		checkout = next
	}
	return checkout, nil
}

// EditForm sets form values. Each edited field's error is cleared.
func (s *CheckoutService) EditForm(ctx context.Context, sessionID string, fields map[string]string) (*CheckoutView, error) {
	if len(fields) == 0 {
		return nil, apperrors.InvalidInput("at least one form field is required")
	}

	session, err := s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		checkout, err := applyFields(session.Checkout, fields)
		if err != nil {
			return err
		}
		session.Checkout = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.newView(session), nil
}

// Submit merges fields into the form and submits it. A rejected form is
// returned with its errors and no task. An accepted form starts a processing
// task that places the order after the processing delay.
func (s *CheckoutService) Submit(ctx context.Context, sessionID string, fields map[string]string) (*CheckoutView, *ProcessingTask, error) {
	if s.isClosed() {
		return nil, nil, apperrors.ServiceUnavailable("checkout is shutting down")
	}

	session, err := s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		checkout, err := applyFields(session.Checkout, fields)
		if err != nil {
			return err
		}
		checkout, err = checkout.Submit(session.Cart.IsEmpty())
		if err != nil {
			return err
		}
		session.Checkout = checkout
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	view := s.newView(session)
	if session.Checkout.Status != domain.StatusProcessing {
		checkoutOutcomes.WithLabelValues(outcomeRejected).Inc()
		s.logger.InfoContext(ctx, "checkout rejected",
			slog.String("session_id", sessionID),
			slog.Int("errors", len(session.Checkout.Errors)),
		)
		return view, nil, nil
	}

	checkoutOutcomes.WithLabelValues(outcomeAccepted).Inc()
	task := s.startTask(ctx, sessionID, session.Checkout.Attempt)
	s.logger.InfoContext(ctx, "checkout accepted",
		slog.String("session_id", sessionID),
		slog.Int("attempt", task.Attempt),
	)
	return view, task, nil
}

// Task returns the running processing task of a session, if any.
func (s *CheckoutService) Task(sessionID string) (*ProcessingTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[sessionID]
	return t, ok
}

// startTask launches the processing goroutine. Its context is tied to the
// service lifetime, not to the request, and keeps the request's logger and
// correlation id.
func (s *CheckoutService) startTask(reqCtx context.Context, sessionID string, attempt int) *ProcessingTask {
	ctx := logger.NewContext(s.baseCtx, logger.FromContext(reqCtx))
	ctx = logger.WithCorrelationID(ctx, logger.CorrelationIDFromContext(reqCtx))
	ctx = logger.WithSessionID(ctx, sessionID)
	ctx, cancel := context.WithCancelCause(ctx)

	task := &ProcessingTask{
		SessionID: sessionID,
		Attempt:   attempt,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		// Shutdown already waits on the group; settle the run here instead.
		s.mu.Unlock()
		cancel(errShuttingDown)
		task.err = s.cancelled(ctx, task)
		close(task.done)
		return task
	}
	if prev, ok := s.tasks[sessionID]; ok {
		prev.cancel(errStaleAttempt)
	}
	s.tasks[sessionID] = task
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(task.done)
		defer cancel(nil)
		defer s.forget(task)

		task.err = s.process(ctx, task)
	}()
	return task
}

func (s *CheckoutService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *CheckoutService) forget(task *ProcessingTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[task.SessionID] == task {
		delete(s.tasks, task.SessionID)
	}
}

// process waits out the processing delay and places the order. A run that is
// cancelled because its session ended writes nothing.
func (s *CheckoutService) process(ctx context.Context, task *ProcessingTask) error {
	timer := time.NewTimer(s.cfg.ProcessingDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return s.cancelled(ctx, task)
	case <-timer.C:
	}

	order, err := s.placeOrder(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx, task)
		}
		checkoutOutcomes.WithLabelValues(outcomeFailed).Inc()
		logger.FromContext(ctx).ErrorContext(ctx, "order placement failed",
			slog.String("session_id", task.SessionID),
			slog.Int("attempt", task.Attempt),
			slog.String("error", err.Error()),
		)
		return err
	}

	checkoutOutcomes.WithLabelValues(outcomePlaced).Inc()
	logger.FromContext(ctx).InfoContext(ctx, "order placed",
		slog.String("session_id", task.SessionID),
		slog.String("order_number", order.Number),
		slog.String("total", domain.FormatAmount(order.Totals.Total)),
	)

	if err := s.publisher.PublishOrderPlaced(ctx, task.SessionID, order); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to publish order.placed event",
			slog.String("session_id", task.SessionID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// placeOrder completes the checkout and clears the cart in one session write,
// retrying a bounded number of times when the session changed underneath.
func (s *CheckoutService) placeOrder(ctx context.Context, task *ProcessingTask) (domain.OrderConfirmation, error) {
	var order domain.OrderConfirmation
	var err error

	for i := 0; i < s.cfg.MaxWriteAttempts; i++ {
		if ctx.Err() != nil {
			return order, ctx.Err()
		}

		_, err = s.sessions.Update(ctx, task.SessionID, func(session *domain.Session) error {
			order = domain.NewOrderConfirmation(
				domain.OrderNumber(s.cfg.OrderNumbers),
				s.nowFunc(),
				session.Cart,
				s.pricing.Summarize(session.Cart),
				session.Checkout.Form,
			)
			checkout, err := session.Checkout.Complete(task.Attempt, order)
			if err != nil {
				return fmt.Errorf("%w: %w", errStaleAttempt, err)
			}
			session.Checkout = checkout
			session.Cart = domain.Clear(session.Cart)
			return nil
		})
		if err == nil || !errors.Is(err, apperrors.ErrConflict) || errors.Is(err, errStaleAttempt) {
			break
		}
	}
	if err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("complete checkout: %w", err)
	}
	return order, nil
}

// cancelled handles a processing run whose context was cancelled. Only a
// shutdown returns the checkout to idle; an ended session is left alone.
func (s *CheckoutService) cancelled(ctx context.Context, task *ProcessingTask) error {
	cause := context.Cause(ctx)
	log := logger.FromContext(ctx)

	if !errors.Is(cause, errShuttingDown) {
		checkoutOutcomes.WithLabelValues(outcomeCancelled).Inc()
		log.InfoContext(ctx, "order processing cancelled",
			slog.String("session_id", task.SessionID),
			slog.String("reason", cause.Error()),
		)
		return cause
	}

	checkoutOutcomes.WithLabelValues(outcomeAbandoned).Inc()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonWriteTimeout)
	defer cancel()

	_, err := s.sessions.Update(writeCtx, task.SessionID, func(session *domain.Session) error {
		session.Checkout = session.Checkout.Abandon(task.Attempt)
		return nil
	})
	if err != nil {
		log.WarnContext(ctx, "failed to abandon order processing",
			slog.String("session_id", task.SessionID),
			slog.String("error", err.Error()),
		)
	}
	return cause
}

// EndSession cancels any order being processed for the session, waits for
// it to stop and deletes the session.
func (s *CheckoutService) EndSession(ctx context.Context, sessionID string) error {
	if task, ok := s.Task(sessionID); ok {
		task.cancel(errSessionEnded)
		select {
		case <-task.done:
		case <-ctx.Done():
			return fmt.Errorf("end session: %w", ctx.Err())
		}
	}
	return s.sessions.Delete(ctx, sessionID)
}

// Shutdown cancels every running task and waits for them to finish or for
// ctx to expire. Later submits are refused.
func (s *CheckoutService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop(errShuttingDown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for processing tasks: %w", ctx.Err())
	}
}
