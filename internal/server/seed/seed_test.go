package seed

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const sample = `
users:
  - email: admin@example.com
    password: admin-pass
    first_name: Ada
    last_name: Admin
    role: admin
  - email: alice@example.com
    password: password123
    first_name: Alice
    last_name: Smith
`

// newService builds an AuthService on db and rm with a fast hasher. Seeding
// never issues tokens, so no issuer is needed.
func newService(db *sql.DB, rm repomanager.RepositoryManager, h auth.Hasher) *services.AuthService {
	return services.NewAuthService(db, rm, h, nil, logging.Nop(), nil)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Users, 2)
	assert.Equal(t, User{Email: "admin@example.com", Password: "admin-pass", FirstName: "Ada", LastName: "Admin", Role: "admin"}, f.Users[0])
	assert.Empty(t, f.Users[1].Role)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "users: [",
		"no password":  "users:\n  - email: a@example.com\n",
		"no names":     "users:\n  - email: a@example.com\n    password: x\n",
		"bad email":    "users:\n  - email: nope\n    password: x\n",
		"unknown role": "users:\n  - email: a@example.com\n    password: x\n    role: owner\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestSeedFromFile_Memory(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	hasher := auth.NewBcryptHasherWithCost(bcrypt.MinCost)
	s := NewSeeder(nil, newService(nil, rm, hasher), logging.Nop())
	path := writeFile(t, sample)
	ctx := context.Background()

	n, err := s.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	admin, err := rm.Store().GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	ok, err := hasher.Verify("admin-pass", *admin.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	alice, err := rm.Store().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleFounder, alice.Role)

	n, err = s.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, n, "existing emails are skipped")
}

func TestSeedFromFile_MissingFile(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	s := NewSeeder(nil, newService(nil, rm, auth.NewBcryptHasherWithCost(bcrypt.MinCost)), logging.Nop())
	_, err := s.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read seed file")
}

var (
	byEmailQuery = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	insertQuery  = `(?s)^INSERT\s+INTO\s+users.*RETURNING\s+id,\s*created_at,\s*updated_at\s*$`
)

func TestSeed_Postgres_UsesTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{
		"id", "email", "password_hash", "first_name", "last_name", "role",
		"email_verified", "two_factor_enabled", "subscription_tier", "preferences",
		"created_at", "updated_at",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(byEmailQuery).WithArgs("admin@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"8d1c7a52-5b1e-4b55-9a8e-2f6b7c1d0e11", "admin@example.com", "h", "Ada", "Admin", "admin",
			false, false, "basic", []byte("{}"), now, now))
	mock.ExpectQuery(byEmailQuery).WithArgs("alice@example.com").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(insertQuery).
		WithArgs("alice@example.com", sqlmock.AnyArg(), "Alice", "Smith", "founder", false, "basic", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("1b5c7e9a-0000-4000-8000-000000000001", now, now))
	mock.ExpectCommit()

	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	s := NewSeeder(db, newService(db, repomanager.NewPostgresRepositoryManager(), auth.NewBcryptHasherWithCost(bcrypt.MinCost)), logging.Nop())
	n, err := s.Seed(context.Background(), f.Users)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_Postgres_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	s := NewSeeder(db, newService(db, repomanager.NewPostgresRepositoryManager(), auth.NewBcryptHasherWithCost(bcrypt.MinCost)), logging.Nop())
	_, err = s.Seed(context.Background(), []User{{Email: "a@example.com", Password: "x", FirstName: "A", LastName: "B"}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParse_NormalizesRole(t *testing.T) {
	f, err := Parse([]byte("users:\n  - email: a@example.com\n    password: x\n    first_name: A\n    last_name: B\n    role: ' Admin '\n"))
	require.NoError(t, err)
	assert.Equal(t, "admin", f.Users[0].Role)
}

func TestSeed_AppliesRegistrationRules(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	s := NewSeeder(nil, newService(nil, rm, auth.NewBcryptHasherWithCost(bcrypt.MinCost)), logging.Nop())

	_, err := s.Seed(context.Background(), []User{{
		Email:     "a@example.com",
		Password:  "x",
		FirstName: strings.Repeat("n", models.MaxNameLength+1),
		LastName:  "B",
	}})
	assert.ErrorIs(t, err, common.ErrorBadRequest)
	assert.ErrorContains(t, err, services.MsgNameTooLong)

	_, err = rm.Store().GetByEmail(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
