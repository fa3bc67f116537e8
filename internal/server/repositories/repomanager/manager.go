package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cofounder/internal/dbx"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// use the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}

// Connect selects the store named by dsn. The memory:// DSN yields the
// in-memory manager and a nil *sql.DB; anything else is opened as a
// Postgres DSN.
func Connect(ctx context.Context, dsn string) (*sql.DB, RepositoryManager, error) {
	if dsn == MemoryDSN {
		return nil, NewMemoryRepositoryManager(), nil
	}
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, NewPostgresRepositoryManager(), nil
}
