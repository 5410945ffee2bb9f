package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/dbx"
	"github.com/identkit/identkit/internal/server/models"
)

const uniqueViolation = "23505"

// constraintFields maps database constraint names to the logical field they
// protect. The mapping keeps constraint detection structural: no message
// parsing.
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
}

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, verified,
		verification_token, recovery_token, recovery_requested_at,
		name, age, gender, newsletter, created_at`

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash, verified,
			verification_token, recovery_token, recovery_requested_at,
			name, age, gender, newsletter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Verified,
		user.VerificationToken, user.RecoveryToken, nullTime(user.RecoveryRequestedAt),
		user.Name, user.Age, user.Gender, user.Newsletter,
	).Scan(&user.CreatedAt)
	if err != nil {
		if ce := asConstraintError(err); ce != nil {
			return nil, ce
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Find(ctx context.Context, f Filter) (*models.User, error) {
	where, args := whereClause(f, 0)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)

	user := &models.User{}
	var recoveryAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Verified,
		&user.VerificationToken, &user.RecoveryToken, &recoveryAt,
		&user.Name, &user.Age, &user.Gender, &user.Newsletter, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if recoveryAt.Valid {
		user.RecoveryRequestedAt = recoveryAt.Time
	}
	return user, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, f Filter) (bool, error) {
	where, args := whereClause(f, 0)
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM users WHERE %s)`, where)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, f Filter, p Patch) error {
	sets, args := setClause(p)
	if len(sets) == 0 {
		return nil
	}
	where, whereArgs := whereClause(f, len(args))
	args = append(args, whereArgs...)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE %s`, strings.Join(sets, ", "), where)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if ce := asConstraintError(err); ce != nil {
			return ce
		}
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, f Filter) error {
	where, args := whereClause(f, 0)
	query := fmt.Sprintf(`DELETE FROM users WHERE %s`, where)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// whereClause renders the non-empty filter fields into an AND-ed condition,
// numbering placeholders from offset+1.
func whereClause(f Filter, offset int) (string, []any) {
	var conds []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, offset+len(args)))
	}

	add("id", f.ID)
	add("username", f.Username)
	add("email", f.Email)
	add("verification_token", f.VerificationToken)
	add("recovery_token", f.RecoveryToken)

	if len(conds) == 0 {
		// an empty filter must never match the whole table
		return "FALSE", nil
	}
	return strings.Join(conds, " AND "), args
}

func setClause(p Patch) ([]string, []any) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Verified != nil {
		add("verified", *p.Verified)
	}
	if p.VerificationToken != nil {
		add("verification_token", *p.VerificationToken)
	}
	if p.RecoveryToken != nil {
		add("recovery_token", *p.RecoveryToken)
	}
	if p.RecoveryRequestedAt != nil {
		add("recovery_requested_at", nullTime(*p.RecoveryRequestedAt))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Age != nil {
		add("age", *p.Age)
	}
	if p.Gender != nil {
		add("gender", *p.Gender)
	}
	if p.Newsletter != nil {
		add("newsletter", *p.Newsletter)
	}

	return sets, args
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// asConstraintError converts a unique-violation PgError into the structured
// ConstraintError, resolving the colliding field from the constraint name.
func asConstraintError(err error) *common.ConstraintError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return &common.ConstraintError{Field: field}
}
