package users

import (
	"context"
	"sync"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

// MemoryRepository is an in-memory Repository used by tests and by the
// in-memory repository manager. It enforces the same uniqueness rules as the
// SQL schema and surfaces them as *common.ConstraintError.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*models.User)}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, &common.ConstraintError{Field: "username"}
		}
		if u.Email == user.Email {
			return nil, &common.ConstraintError{Field: "email"}
		}
	}

	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.users[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *MemoryRepository) Find(ctx context.Context, f Filter) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.match(f)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryRepository) Exists(ctx context.Context, f Filter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match(f) != nil, nil
}

func (r *MemoryRepository) Update(ctx context.Context, f Filter, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.match(f)
	if u == nil {
		return common.ErrorNotFound
	}

	// check every constraint before touching the record, so a rejected patch
	// never half-applies
	if p.Username != nil {
		for _, other := range r.users {
			if other.ID != u.ID && other.Username == *p.Username {
				return &common.ConstraintError{Field: "username"}
			}
		}
	}
	if p.Email != nil {
		for _, other := range r.users {
			if other.ID != u.ID && other.Email == *p.Email {
				return &common.ConstraintError{Field: "email"}
			}
		}
	}

	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Verified != nil {
		u.Verified = *p.Verified
	}
	if p.VerificationToken != nil {
		u.VerificationToken = *p.VerificationToken
	}
	if p.RecoveryToken != nil {
		u.RecoveryToken = *p.RecoveryToken
	}
	if p.RecoveryRequestedAt != nil {
		u.RecoveryRequestedAt = *p.RecoveryRequestedAt
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.Newsletter != nil {
		u.Newsletter = *p.Newsletter
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, f Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u := r.match(f); u != nil {
		delete(r.users, u.ID)
	}
	return nil
}

// match must be called with the lock held.
func (r *MemoryRepository) match(f Filter) *models.User {
	empty := Filter{}
	if f == empty {
		return nil
	}
	for _, u := range r.users {
		if f.ID != "" && u.ID != f.ID {
			continue
		}
		if f.Username != "" && u.Username != f.Username {
			continue
		}
		if f.Email != "" && u.Email != f.Email {
			continue
		}
		if f.VerificationToken != "" && u.VerificationToken != f.VerificationToken {
			continue
		}
		if f.RecoveryToken != "" && u.RecoveryToken != f.RecoveryToken {
			continue
		}
		return u
	}
	return nil
}
