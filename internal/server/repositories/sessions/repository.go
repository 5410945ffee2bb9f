// Package sessions provides repositories for refresh-session records.
package sessions

import (
	"context"
	"time"

	"github.com/identkit/identkit/internal/server/models"
)

// Repository is the persistence contract for refresh sessions.
//
// Rotate is the critical operation: it must replace token and expiry of the
// (userID, oldToken) session as one atomic conditional update so that two
// concurrent refreshes of the same stale token cannot both succeed. The loser
// observes common.ErrorNotFound. Rotate also refuses sessions already expired
// at the given instant.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, userID, token string) (*models.Session, error)
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	Rotate(ctx context.Context, userID, oldToken, newToken string, expiresAt, now time.Time) (*models.Session, error)
	Delete(ctx context.Context, userID, token string) error
	DeleteExpired(ctx context.Context, userID string, now time.Time) error
	DeleteAll(ctx context.Context, userID string) error
}
