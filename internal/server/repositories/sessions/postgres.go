package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/dbx"
	"github.com/identkit/identkit/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		session.UserID, session.Token, session.ExpiresAt).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID, token string) (*models.Session, error) {
	query := `
		SELECT user_id, token, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND token = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, token))
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// Rotate performs the atomic match-and-replace. The expiry guard in the WHERE
// clause makes an expired session unrotatable even before its lazy purge.
func (r *PostgresRepository) Rotate(ctx context.Context, userID, oldToken, newToken string, expiresAt, now time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET token = $3, expires_at = $4
		WHERE user_id = $1 AND token = $2 AND expires_at > $5
		RETURNING user_id, token, expires_at, created_at
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, oldToken, newToken, expiresAt, now))
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, token string) error {
	query := `DELETE FROM sessions WHERE user_id = $1 AND token = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) error {
	query := `DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2`
	if _, err := r.db.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Session, error) {
	session := &models.Session{}
	err := row.Scan(&session.UserID, &session.Token, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}
