package repository

import (
	"context"

	"github.com/enginerror/Shopping-Cart/internal/domain"
)

// SessionRepository stores shopper sessions for the length of their TTL.
type SessionRepository interface {
	// Get retrieves a session by id. A missing or expired session is reported
	// as apperrors.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// SaveIfVersion stores the session only if the stored version still equals
	// expectedVersion (0 for a session that was never saved). On success the
	// session's Version is advanced. It returns false when another writer got
	// there first.
	SaveIfVersion(ctx context.Context, session *domain.Session, expectedVersion int) (bool, error)

	// Delete removes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, id string) error
}
