// Package users provides repositories for identity records. Lookups are
// driven by a partial-field Filter and mutations by a sparse Patch, so the
// same call shape serves lookups by id, email, username or workflow token.
package users

import (
	"context"
	"time"

	"github.com/identkit/identkit/internal/server/models"
)

// Filter matches users on every non-empty field (AND semantics).
type Filter struct {
	ID                string
	Username          string
	Email             string
	VerificationToken string
	RecoveryToken     string
}

// Patch describes a sparse update: nil fields are untouched. An empty string
// for a token field clears it; a pointer to the zero time clears
// RecoveryRequestedAt.
type Patch struct {
	Username            *string
	Email               *string
	PasswordHash        *string
	Verified            *bool
	VerificationToken   *string
	RecoveryToken       *string
	RecoveryRequestedAt *time.Time
	Name                *string
	Age                 *int
	Gender              *string
	Newsletter          *bool
}

// Repository is the persistence contract for users.
//
// Create surfaces uniqueness violations as *common.ConstraintError carrying
// the offending field name; translation into domain errors is the account
// protocols' job. Find and Update return common.ErrorNotFound when the filter
// matches nothing. Delete is idempotent.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Find(ctx context.Context, f Filter) (*models.User, error)
	Exists(ctx context.Context, f Filter) (bool, error)
	Update(ctx context.Context, f Filter, p Patch) error
	Delete(ctx context.Context, f Filter) error
}
