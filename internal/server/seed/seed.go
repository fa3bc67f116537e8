// Package seed provisions accounts listed in a YAML file at startup.
//
//	users:
//	  - email: admin@example.com
//	    password: change-me
//	    first_name: Ada
//	    last_name: Admin
//	    role: admin
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/dbx"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"gopkg.in/yaml.v3"
)

// User is one entry of the seed file. An empty role means founder.
type User struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
}

type File struct {
	Users []User `yaml:"users"`
}

// Parse decodes and validates a seed file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, u := range f.Users {
		if u.Email == "" || u.Password == "" || u.FirstName == "" || u.LastName == "" {
			return nil, fmt.Errorf("seed user %d: email, password, first_name and last_name are required", i)
		}
		if !models.ValidEmail(u.Email) {
			return nil, fmt.Errorf("seed user %d: invalid email %q", i, u.Email)
		}
		if u.Role != "" {
			r, err := models.ParseRole(u.Role)
			if err != nil {
				return nil, fmt.Errorf("seed user %d: %w", i, err)
			}
			f.Users[i].Role = string(r)
		}
	}
	return &f, nil
}

// UserCreator provisions one account on the given connection, applying
// the same validation as registration.
type UserCreator interface {
	CreateUserTx(ctx context.Context, tx dbx.DBTX, in services.RegisterInput, role models.Role) (*models.User, error)
}

// Seeder creates the users of a seed file that do not exist yet.
type Seeder struct {
	db     *sql.DB
	users  UserCreator
	logger logging.Logger
}

// NewSeeder returns a Seeder. db may be nil for the in-memory store, in
// which case no transaction is used.
func NewSeeder(db *sql.DB, users UserCreator, l logging.Logger) *Seeder {
	return &Seeder{db: db, users: users, logger: l.With("module", "seed")}
}

// SeedFromFile reads path and seeds its users.
func (s *Seeder) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, f.Users)
}

// Seed creates every user whose email is not taken, all in one
// transaction, and returns how many were created.
func (s *Seeder) Seed(ctx context.Context, list []User) (int, error) {
	created := 0
	run := func(ctx context.Context, tx dbx.DBTX) error {
		created = 0

		for _, u := range list {
			role := models.RoleFounder
			if u.Role != "" {
				role = models.Role(u.Role)
			}
			in := services.RegisterInput{
				Email:     u.Email,
				Password:  u.Password,
				FirstName: u.FirstName,
				LastName:  u.LastName,
			}

			user, err := s.users.CreateUserTx(ctx, tx, in, role)
			switch {
			case errors.Is(err, common.ErrorConflict):
				s.logger.Debug(ctx, "seed user exists, skipping", "email", u.Email)
				continue
			case err != nil:
				return fmt.Errorf("seed %s: %w", u.Email, err)
			}
			created++
			s.logger.Info(ctx, "Seeded user", "email", user.Email, "role", user.Role)
		}
		return nil
	}

	var err error
	if s.db == nil {
		err = run(ctx, nil)
	} else {
		err = dbx.WithTx(ctx, s.db, nil, run)
	}
	if err != nil {
		return 0, err
	}
	return created, nil
}
