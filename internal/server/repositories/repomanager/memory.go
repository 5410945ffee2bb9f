package repomanager

import (
	"context"
	"database/sql"

	"github.com/identkit/identkit/internal/dbx"
	"github.com/identkit/identkit/internal/server/repositories/sessions"
	"github.com/identkit/identkit/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves singleton in-memory repositories and
// ignores the database handle. Used by tests.
type InMemoryRepositoryManager struct {
	users    *users.MemoryRepository
	sessions *sessions.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		users:    users.NewMemoryRepository(),
		sessions: sessions.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return m.users
}

func (m *InMemoryRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return m.sessions
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}
