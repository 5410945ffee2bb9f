package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

// MemoryRepository is an in-memory Repository used by tests and by the
// in-memory repository manager. The single mutex gives Rotate the same
// winner-takes-all behavior as the conditional UPDATE in the SQL store.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // keyed by token
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*models.Session)}
}

func (r *MemoryRepository) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *session
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.sessions[stored.Token] = &stored
	session.CreatedAt = stored.CreatedAt
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, userID, token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || s.UserID != userID {
		return nil, common.ErrorNotFound
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, userID, oldToken, newToken string, expiresAt, now time.Time) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[oldToken]
	if !ok || s.UserID != userID || !s.ExpiresAt.After(now) {
		return nil, common.ErrorNotFound
	}

	delete(r.sessions, oldToken)
	rotated := &models.Session{
		UserID:    s.UserID,
		Token:     newToken,
		ExpiresAt: expiresAt,
		CreatedAt: s.CreatedAt,
	}
	r.sessions[newToken] = rotated

	out := *rotated
	return &out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[token]; ok && s.UserID == userID {
		delete(r.sessions, token)
	}
	return nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, s := range r.sessions {
		if s.UserID == userID && !s.ExpiresAt.After(now) {
			delete(r.sessions, token)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteAll(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, token)
		}
	}
	return nil
}
