// Package memory keeps sessions in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/repository"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// SessionRepository implements repository.SessionRepository with a
// mutex-guarded map. Expired sessions are dropped on read and by Sweep.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	nowFunc  func() time.Time
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates an empty in-memory session store.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.Session),
		nowFunc:  time.Now,
	}
}

// Get returns a copy of the stored session.
func (r *SessionRepository) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	if s.IsExpired(r.nowFunc()) {
		delete(r.sessions, id)
		return nil, apperrors.NotFound("session", id)
	}
	return &s, nil
}

// SaveIfVersion stores a copy of the session when the version matches.
func (r *SessionRepository) SaveIfVersion(_ context.Context, session *domain.Session, expectedVersion int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := 0
	if s, ok := r.sessions[session.ID]; ok && !s.IsExpired(r.nowFunc()) {
		current = s.Version
	}
	if current != expectedVersion {
		return false, nil
	}

	session.Version = expectedVersion + 1
	r.sessions[session.ID] = *session
	return true, nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (r *SessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *SessionRepository) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of stored sessions, expired or not.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
