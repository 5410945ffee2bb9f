// Package services contains server-side business logic: the credential store,
// the session store, and the account protocols composing them.
package services

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/dbx"
	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/config"
	"github.com/identkit/identkit/internal/server/models"
	"github.com/identkit/identkit/internal/server/repositories/repomanager"
	"github.com/identkit/identkit/internal/server/repositories/users"
)

// dummyHash is compared against when a password check targets an absent user,
// so the lookup-miss path costs a bcrypt verification too.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("identkit-timing-equalizer"), bcrypt.MinCost)

var validGenders = map[string]struct{}{
	"": {}, "male": {}, "female": {}, "other": {},
}

// TokenResult bundles a freshly issued bearer token with its expiry and the
// public projection of its subject.
type TokenResult struct {
	Token   string
	Expires time.Time
	User    *models.PublicUser
}

// CredentialService owns user records: it hashes and verifies passwords,
// enforces field-level validation, and issues bearer tokens for verified
// credentials.
type CredentialService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	privateKey    *rsa.PrivateKey
	tokenValidity time.Duration
	bcryptCost    int
}

// NewCredentialService constructs a CredentialService using repositories,
// server config and the signing key.
func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, key *rsa.PrivateKey) *CredentialService {
	return &CredentialService{
		db:            db,
		repomanager:   m,
		privateKey:    key,
		tokenValidity: cfg.AccessTokenValidity,
		bcryptCost:    cfg.BcryptCost,
	}
}

// PublicKey exposes the verification half of the signing key.
func (s *CredentialService) PublicKey() *rsa.PublicKey {
	return &s.privateKey.PublicKey
}

// Create validates the user's fields, hashes the password (fresh salt per
// call, so identical passwords never share a stored hash) and persists the
// record. Uniqueness violations surface unchanged as *common.ConstraintError;
// translating them is the caller's job.
func (s *CredentialService) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	user.PasswordHash = hash

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	return s.repomanager.Users(s.db).Create(ctx, user)
}

// Exists reports whether any user matches the filter.
func (s *CredentialService) Exists(ctx context.Context, f users.Filter) (bool, error) {
	return s.repomanager.Users(s.db).Exists(ctx, f)
}

// Get returns the user matching the filter, or common.ErrorNotFound.
func (s *CredentialService) Get(ctx context.Context, f users.Filter) (*models.User, error) {
	return s.repomanager.Users(s.db).Find(ctx, f)
}

// Update applies a sparse patch to the user matching the filter. Patched
// fields pass the same validation as at creation.
func (s *CredentialService) Update(ctx context.Context, f users.Filter, p users.Patch) error {
	if err := validatePatch(p); err != nil {
		return err
	}
	return s.repomanager.Users(s.db).Update(ctx, f, p)
}

// Remove deletes the user matching the filter together with all of the
// user's sessions, as one transaction.
func (s *CredentialService) Remove(ctx context.Context, f users.Filter) error {
	user, err := s.repomanager.Users(s.db).Find(ctx, f)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).DeleteAll(ctx, user.ID); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, users.Filter{ID: user.ID})
	})
}

// IsPasswordValid reports whether the candidate password matches the stored
// hash of the user selected by the filter. It returns false, never an error,
// for both "user not found" and "hash mismatch": the two outcomes must stay
// indistinguishable to the caller.
func (s *CredentialService) IsPasswordValid(ctx context.Context, f users.Filter, candidate string) bool {
	user, err := s.repomanager.Users(s.db).Find(ctx, f)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(candidate))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(candidate)) == nil
}

// Sign looks up the user, verifies the password and, on success, issues a
// bearer token embedding the public-safe projection. Lookup miss and password
// mismatch both yield common.ErrWrongCredentials.
func (s *CredentialService) Sign(ctx context.Context, f users.Filter, password string) (*TokenResult, error) {
	user, err := s.repomanager.Users(s.db).Find(ctx, f)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, common.ErrWrongCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrWrongCredentials
	}
	return s.issue(user)
}

// RefreshAuthToken re-issues a bearer token for an identity that already
// proved itself through a valid refresh session; no password is re-checked.
func (s *CredentialService) RefreshAuthToken(ctx context.Context, f users.Filter) (*TokenResult, error) {
	user, err := s.repomanager.Users(s.db).Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// PublicUser projects out the hash and workflow tokens of the matched user.
func (s *CredentialService) PublicUser(ctx context.Context, f users.Filter) (*models.PublicUser, error) {
	user, err := s.repomanager.Users(s.db).Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *CredentialService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *CredentialService) issue(user *models.User) (*TokenResult, error) {
	token, expires, err := auth.Sign(auth.NewClaims(user), s.privateKey, s.tokenValidity)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenResult{Token: token, Expires: expires, User: user.Public()}, nil
}

func validateUser(user *models.User) error {
	if len(user.Username) < 5 {
		return fmt.Errorf("%w: username must be at least 5 characters", common.ErrValidation)
	}
	if !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	if _, ok := validGenders[user.Gender]; !ok {
		return fmt.Errorf("%w: invalid gender", common.ErrValidation)
	}
	if user.Age < 0 {
		return fmt.Errorf("%w: invalid age", common.ErrValidation)
	}
	return nil
}

func validatePatch(p users.Patch) error {
	if p.Username != nil && len(*p.Username) < 5 {
		return fmt.Errorf("%w: username must be at least 5 characters", common.ErrValidation)
	}
	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	if p.Gender != nil {
		if _, ok := validGenders[*p.Gender]; !ok {
			return fmt.Errorf("%w: invalid gender", common.ErrValidation)
		}
	}
	if p.Age != nil && *p.Age < 0 {
		return fmt.Errorf("%w: invalid age", common.ErrValidation)
	}
	return nil
}
