// Package repomanager hands out repository instances bound to a database
// handle, so services can run the same repository code against *sql.DB or an
// open transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/identkit/identkit/internal/dbx"
	"github.com/identkit/identkit/internal/server/repositories/sessions"
	"github.com/identkit/identkit/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
