package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

func newTestRepo(now time.Time) (*SessionRepository, *time.Time) {
	clock := now
	repo := NewSessionRepository()
	repo.nowFunc = func() time.Time { return clock }
	return repo, &clock
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(baseTime)

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSaveIfVersion_NewSessionThenGet(t *testing.T) {
	repo, _ := newTestRepo(baseTime)
	ctx := context.Background()
	s := domain.NewSession("s1", baseTime, time.Hour)

	ok, err := repo.SaveIfVersion(ctx, s, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Version)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Cart.IsEmpty())
}

func TestSaveIfVersion_StaleVersionRejected(t *testing.T) {
	repo, _ := newTestRepo(baseTime)
	ctx := context.Background()

	s := domain.NewSession("s1", baseTime, time.Hour)
	ok, err := repo.SaveIfVersion(ctx, s, 0)
	require.NoError(t, err)
	require.True(t, ok)

	stale := *s
	ok, err = repo.SaveIfVersion(ctx, s, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SaveIfVersion(ctx, &stale, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, stale.Version, "rejected save must not bump the version")
}

func TestGet_ReturnsCopy(t *testing.T) {
	repo, _ := newTestRepo(baseTime)
	ctx := context.Background()
	s := domain.NewSession("s1", baseTime, time.Hour)
	_, err := repo.SaveIfVersion(ctx, s, 0)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	got.Checkout.Status = domain.StatusProcessing

	again, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, again.Checkout.Status)
}

func TestGet_ExpiredSessionIsGone(t *testing.T) {
	repo, clock := newTestRepo(baseTime)
	ctx := context.Background()
	_, err := repo.SaveIfVersion(ctx, domain.NewSession("s1", baseTime, time.Hour), 0)
	require.NoError(t, err)

	*clock = baseTime.Add(2 * time.Hour)

	_, err = repo.Get(ctx, "s1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, repo.Len())
}

func TestSaveIfVersion_ExpiredSessionCountsAsNew(t *testing.T) {
	repo, clock := newTestRepo(baseTime)
	ctx := context.Background()
	_, err := repo.SaveIfVersion(ctx, domain.NewSession("s1", baseTime, time.Hour), 0)
	require.NoError(t, err)

	*clock = baseTime.Add(2 * time.Hour)

	ok, err := repo.SaveIfVersion(ctx, domain.NewSession("s1", *clock, time.Hour), 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepo(baseTime)
	ctx := context.Background()
	_, err := repo.SaveIfVersion(ctx, domain.NewSession("s1", baseTime, time.Hour), 0)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "s1"))
	require.NoError(t, repo.Delete(ctx, "s1"))

	_, err = repo.Get(ctx, "s1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSweep(t *testing.T) {
	repo, clock := newTestRepo(baseTime)
	ctx := context.Background()
	_, _ = repo.SaveIfVersion(ctx, domain.NewSession("short", baseTime, time.Minute), 0)
	_, _ = repo.SaveIfVersion(ctx, domain.NewSession("long", baseTime, time.Hour), 0)

	*clock = baseTime.Add(10 * time.Minute)

	assert.Equal(t, 1, repo.Sweep())
	assert.Equal(t, 1, repo.Len())
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	repo := NewSessionRepository()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		repo.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSaveIfVersion_ConcurrentWritersOneWins(t *testing.T) {
	repo, _ := newTestRepo(baseTime)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.SaveIfVersion(ctx, domain.NewSession("s1", baseTime, time.Hour), 0)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
