package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/repository"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// SessionService loads and saves shopper sessions with optimistic locking.
type SessionService struct {
	repo    repository.SessionRepository
	logger  *slog.Logger
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(repo repository.SessionRepository, logger *slog.Logger, ttl time.Duration) *SessionService {
	return &SessionService{
		repo:    repo,
		logger:  logger,
		ttl:     ttl,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Load returns the stored session, or a new unsaved one if none exists.
func (s *SessionService) Load(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewSession(id, s.nowFunc(), s.ttl), nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Update applies fn to the current session and saves the result. If fn
// returns an error nothing is saved. A concurrent change to the same session
// is reported as a conflict.
func (s *SessionService) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	session, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := session.Version
	if err := fn(session); err != nil {
		return nil, err
	}
	session.Touch(s.nowFunc(), s.ttl)

	ok, err := s.repo.SaveIfVersion(ctx, session, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("session was modified concurrently, please retry")
	}
	return session, nil
}

// Delete removes the stored session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.InfoContext(ctx, "session ended", slog.String("session_id", id))
	return nil
}
