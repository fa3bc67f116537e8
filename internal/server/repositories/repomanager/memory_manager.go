package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cofounder/internal/dbx"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/users"
)

// MemoryDSN selects the in-memory store instead of Postgres.
const MemoryDSN = "memory://"

// MemoryRepositoryManager hands out one shared in-memory users store,
// whatever DBTX it is given. Transactions are not isolated.
type MemoryRepositoryManager struct {
	users *users.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{users: users.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

// Store exposes the concrete store for seeding and tests.
func (m *MemoryRepositoryManager) Store() *users.MemoryRepository { return m.users }
