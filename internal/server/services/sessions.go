package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/config"
	"github.com/identkit/identkit/internal/server/models"
	"github.com/identkit/identkit/internal/server/repositories/repomanager"
	"github.com/identkit/identkit/internal/server/repositories/users"
)

// SessionService owns refresh-session records: it creates, rotates,
// invalidates and lazily purges them. Expiry is evaluated by wall-clock
// comparison at lookup time; there is no background sweep.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		validity:    cfg.SessionValidity,
		now:         time.Now,
	}
}

// Create mints a session with a fresh random refresh token and the fixed
// session lifetime.
func (s *SessionService) Create(ctx context.Context, userID string) (*models.Session, error) {
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	session := &models.Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: s.now().Add(s.validity),
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Remove deletes one matching session; absent sessions are a no-op.
func (s *SessionService) Remove(ctx context.Context, userID, token string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, userID, token)
}

// RemoveExpired purges the user's sessions whose expiry has passed. Called
// opportunistically on login to bound storage growth.
func (s *SessionService) RemoveExpired(ctx context.Context, userID string) error {
	return s.repomanager.Sessions(s.db).DeleteExpired(ctx, userID, s.now())
}

// IsValid reports whether a session exists for the pair and has not expired.
func (s *SessionService) IsValid(ctx context.Context, userID, token string) (bool, error) {
	session, err := s.repomanager.Sessions(s.db).Find(ctx, userID, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.ExpiresAt.After(s.now()), nil
}

// Rotate atomically replaces the session's token and extends its expiry. The
// previous token is invalid the moment this returns, regardless of whether
// the caller ever sees the new one; a concurrent loser gets
// common.ErrorNotFound.
func (s *SessionService) Rotate(ctx context.Context, userID, token string) (*models.Session, error) {
	newToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}
	now := s.now()
	return s.repomanager.Sessions(s.db).Rotate(ctx, userID, token, newToken, now.Add(s.validity), now)
}

// UserAndSession resolves a presented refresh token to its session and owner.
// An unknown or expired token returns (nil, nil, nil) rather than an error;
// deciding the failure is the caller's business.
func (s *SessionService) UserAndSession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	session, err := s.repomanager.Sessions(s.db).FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if !session.ExpiresAt.After(s.now()) {
		return nil, nil, nil
	}

	user, err := s.repomanager.Users(s.db).Find(ctx, users.Filter{ID: session.UserID})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return user, session, nil
}
