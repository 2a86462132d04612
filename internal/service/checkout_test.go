package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

func waitTask(t *testing.T, task *ProcessingTask) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

// ============================================================================
// EditForm
// ============================================================================

func TestEditForm_SetsValuesAndClearsErrors(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	view, _, err := f.checkout.Submit(ctx, "sess-1", nil)
	require.NoError(t, err)
	require.True(t, view.Rejected)
	require.Len(t, view.Checkout.Errors, len(domain.FormFields))

	view, err = f.checkout.EditForm(ctx, "sess-1", map[string]string{
		domain.FieldName:  "Ada",
		domain.FieldEmail: "not-an-email",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", view.Checkout.Form.Name)
	assert.Equal(t, "not-an-email", view.Checkout.Form.Email)
	assert.NotContains(t, view.Checkout.Errors, domain.FieldName)
	assert.NotContains(t, view.Checkout.Errors, domain.FieldEmail)
	assert.Contains(t, view.Checkout.Errors, domain.FieldCity)
}

func TestEditForm_UnknownFieldRejectsWholeUpdate(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()

	_, err := f.checkout.EditForm(ctx, "sess-1", map[string]string{
		domain.FieldName: "Ada",
		"phone":          "555",
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	view, err := f.checkout.GetCheckout(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, view.Checkout.Form.Name)
}

func TestEditForm_NoFields(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	_, err := f.checkout.EditForm(context.Background(), "sess-1", map[string]string{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// ============================================================================
// Submit
// ============================================================================

func TestSubmit_EmptyCart(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	_, task, err := f.checkout.Submit(context.Background(), "sess-1", validFields())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Nil(t, task)
}

func TestSubmit_RejectedFormKeepsCart(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	fields := validFields()
	fields[domain.FieldCardNumber] = "4111"

	view, task, err := f.checkout.Submit(ctx, "sess-1", fields)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.True(t, view.Rejected)
	assert.Equal(t, domain.ValidationErrors{
		domain.FieldCardNumber: "Card number must be 16 digits",
	}, view.Checkout.Errors)
	assert.False(t, view.CartEmpty)
}

func TestSubmit_PlacesOrderAndClearsCart(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, "sess-1", 1, 3)
	require.NoError(t, err)

	view, task, err := f.checkout.Submit(ctx, "sess-1", validFields())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, domain.StatusProcessing, view.Checkout.Status)
	assert.Equal(t, 1, task.Attempt)

	_, running := f.checkout.Task("sess-1")
	assert.True(t, running)

	require.NoError(t, waitTask(t, task))

	got, err := f.checkout.GetCheckout(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, got.Checkout.Status)
	require.NotNil(t, got.Checkout.Order)
	assert.Equal(t, "ORD-123456", got.Checkout.Order.Number)
	assert.Equal(t, "42.37", got.Checkout.Order.Display.Total)
	assert.Equal(t, "1111", got.Checkout.Order.CardLastFour)
	assert.True(t, got.CartEmpty)

	cart, err := f.carts.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	assert.Equal(t, 1, f.publisher.orderCount())
	_, running = f.checkout.Task("sess-1")
	assert.False(t, running)
}

func TestSubmit_WhileProcessingIsConflict(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	_, task, err := f.checkout.Submit(ctx, "sess-1", validFields())
	require.NoError(t, err)
	require.NotNil(t, task)

	_, _, err = f.checkout.Submit(ctx, "sess-1", nil)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = f.checkout.EditForm(ctx, "sess-1", map[string]string{domain.FieldName: "Bob"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

// ============================================================================
// Cancellation
// ============================================================================

func TestEndSession_CancelsProcessingWithoutWriting(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	_, task, err := f.checkout.Submit(ctx, "sess-1", validFields())
	require.NoError(t, err)

	require.NoError(t, f.checkout.EndSession(ctx, "sess-1"))

	err = waitTask(t, task)
	assert.ErrorIs(t, err, errSessionEnded)
	assert.Equal(t, 0, f.repo.Len(), "a cancelled task must not recreate the session")
	assert.Equal(t, 0, f.publisher.orderCount())
}

func TestEndSession_NoTask(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	require.NoError(t, f.checkout.EndSession(ctx, "sess-1"))
	assert.Equal(t, 0, f.repo.Len())
}

func TestShutdown_AbandonsProcessing(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	_, task, err := f.checkout.Submit(ctx, "sess-1", validFields())
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.checkout.Shutdown(shutdownCtx))
	assert.ErrorIs(t, waitTask(t, task), errShuttingDown)

	view, err := f.checkout.GetCheckout(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, view.Checkout.Status)
	assert.False(t, view.CartEmpty, "an abandoned order keeps the cart")
}

func TestSubmit_AfterShutdownIsRefused(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	require.NoError(t, f.checkout.Shutdown(ctx))

	_, task, err := f.checkout.Submit(ctx, "sess-1", validFields())
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Nil(t, task)

	view, err := f.checkout.GetCheckout(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, view.Checkout.Status)
}

func TestStartTask_AfterShutdownAbandonsWithoutGoroutine(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	// Accept the order without starting a run, as a submit racing shutdown would.
	session, err := f.sessions.Update(ctx, "sess-1", func(session *domain.Session) error {
		checkout, err := applyFields(session.Checkout, validFields())
		if err != nil {
			return err
		}
		session.Checkout, err = checkout.Submit(false)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, session.Checkout.Status)

	require.NoError(t, f.checkout.Shutdown(ctx))

	task := f.checkout.startTask(ctx, "sess-1", session.Checkout.Attempt)
	select {
	case <-task.Done():
	default:
		t.Fatal("task should be settled synchronously after shutdown")
	}
	assert.ErrorIs(t, task.err, errShuttingDown)
	_, ok := f.checkout.Task("sess-1")
	assert.False(t, ok)

	view, err := f.checkout.GetCheckout(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, view.Checkout.Status)
}

// ============================================================================
// Final write retries
// ============================================================================

func TestPlaceOrder_RetriesVersionConflicts(t *testing.T) {
	repo := new(mockSessionRepository)
	sessions := NewSessionService(repo, newTestLogger(), time.Hour)
	publisher := &recordingPublisher{}
	svc := NewCheckoutService(sessions, domain.DefaultPricing(), publisher, newTestLogger(), CheckoutConfig{
		ProcessingDelay:  time.Millisecond,
		MaxWriteAttempts: 3,
		OrderNumbers:     func(int) int { return 1 },
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	newProcessing := func() *domain.Session {
		s := domain.NewSession("sess-1", time.Now(), time.Hour)
		s.Cart.Lines = []domain.CartLine{{ID: "line-1", Product: sampleProducts()[0], Quantity: 1}}
		s.Checkout.Status = domain.StatusProcessing
		s.Checkout.Attempt = 1
		s.Version = 7
		return s
	}

	repo.On("Get", mock.Anything, "sess-1").Return(func(context.Context, string) *domain.Session {
		return newProcessing()
	}, nil)
	repo.On("SaveIfVersion", mock.Anything, mock.Anything, 7).Return(false, nil).Twice()
	repo.On("SaveIfVersion", mock.Anything, mock.Anything, 7).Return(true, nil).Once()

	task := svc.startTask(context.Background(), "sess-1", 1)
	require.NoError(t, waitTask(t, task))

	repo.AssertNumberOfCalls(t, "SaveIfVersion", 3)
	assert.Equal(t, 1, publisher.orderCount())
}

func TestPlaceOrder_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := new(mockSessionRepository)
	sessions := NewSessionService(repo, newTestLogger(), time.Hour)
	svc := NewCheckoutService(sessions, domain.DefaultPricing(), &recordingPublisher{}, newTestLogger(), CheckoutConfig{
		ProcessingDelay:  time.Millisecond,
		MaxWriteAttempts: 2,
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	s := domain.NewSession("sess-1", time.Now(), time.Hour)
	s.Checkout.Status = domain.StatusProcessing
	s.Checkout.Attempt = 1
	repo.On("Get", mock.Anything, "sess-1").Return(func(context.Context, string) *domain.Session {
		copied := *s
		return &copied
	}, nil)
	repo.On("SaveIfVersion", mock.Anything, mock.Anything, 0).Return(false, nil)

	task := svc.startTask(context.Background(), "sess-1", 1)
	err := waitTask(t, task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	repo.AssertNumberOfCalls(t, "SaveIfVersion", 2)
}

func TestPlaceOrder_StaleAttemptIsNotRetried(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	_, _ = f.carts.AddItem(ctx, "sess-1", 1, 1)

	task := f.checkout.startTask(ctx, "sess-1", 5)
	err := waitTask(t, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStaleAttempt)
	assert.Equal(t, 0, f.publisher.orderCount())
}
