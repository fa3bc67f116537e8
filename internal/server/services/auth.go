// Package services contains server-side business logic. This file implements
// AuthService, which handles the account lifecycle: registration, login,
// token refresh, logout, password reset requests and the current user.
//
// Tokens are stateless. Refresh reissues both tokens without invalidating
// the presented refresh token, and logout is advisory only; a leaked
// refresh token stays usable until it expires.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/dbx"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/metrics"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/users"
)

// User-facing messages.
const (
	MsgEmailTaken           = "User with this email already exists"
	MsgInvalidCredentials   = "Invalid email or password"
	MsgRefreshTokenRequired = "Refresh token is required"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgUserNotFound         = "User not found"
	MsgNotAuthenticated     = "User not authenticated"
	MsgLoggedOut            = "Logged out successfully"
	MsgPasswordResetSent    = "If an account with this email exists, a password reset link has been sent."
	MsgFieldsRequired       = "email, password, first_name and last_name are required"
	MsgInvalidEmail         = "Invalid email address"
	MsgNameTooLong          = "Names must be at most 100 characters"
	MsgPasswordTooLong      = "Password must be at most 72 bytes"
)

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   models.PublicUser `json:"user"`
	Tokens *auth.TokenPair   `json:"tokens"`
}

// AuthService orchestrates the credential store, the password hasher and
// the token issuer. It keeps no per-request state.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.Hasher
	tokens      *auth.Issuer
	logger      logging.Logger
	metrics     *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires an AuthService. m may be nil.
func NewAuthService(db *sql.DB, rm repomanager.RepositoryManager, h auth.Hasher, t *auth.Issuer, l logging.Logger, m *metrics.Metrics) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: rm,
		hasher:      h,
		tokens:      t,
		logger:      l.With("module", "auth_service"),
		metrics:     m,
	}
}

// Register creates a founder account on the basic tier and signs the new
// user in. A duplicate email is common.ErrorConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validateRegistration(&in); err != nil {
		s.metrics.AuthEvent("register", "invalid")
		return nil, err
	}

	user, err := s.createUser(ctx, s.repomanager.Users(s.db), in, models.RoleFounder)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			s.metrics.AuthEvent("register", "conflict")
		}
		return nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.logger.Info(ctx, "User registered successfully", "userId", user.ID, "email", user.Email)
	s.metrics.AuthEvent("register", "success")

	return &AuthResult{User: user.Public(false), Tokens: pair}, nil
}

// CreateUser provisions an account with an explicit role. It is used by
// the admin CLI; the result is the stored user.
func (s *AuthService) CreateUser(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	return s.CreateUserTx(ctx, s.db, in, role)
}

// CreateUserTx is CreateUser on a caller-supplied connection, so startup
// seeding can create a batch of accounts in one transaction. It applies
// the registration validation.
func (s *AuthService) CreateUserTx(ctx context.Context, tx dbx.DBTX, in RegisterInput, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, common.BadRequest(fmt.Sprintf("Unknown role %q", role))
	}
	if err := validateRegistration(&in); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, s.repomanager.Users(tx), in, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "User created", "userId", user.ID, "email", user.Email, "role", user.Role)
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, repo users.Repository, in RegisterInput, role models.Role) (*models.User, error) {
	// The unique constraint is the real guard; this check saves a bcrypt
	// round in the common case.
	if _, err := repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, common.Conflict(MsgEmailTaken)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(in.Email, hash, in.FirstName, in.LastName)
	user.Role = role

	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.Conflict(MsgEmailTaken)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// Login checks the credentials and issues a fresh token pair. An unknown
// email, an account without a password and a wrong password all produce
// the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := common.Unauthorized(MsgInvalidCredentials)
	email = normalizeEmail(email)

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if user == nil || user.PasswordHash == nil {
		// Spend comparable time so response latency does not reveal
		// whether the account exists.
		_, _ = s.hasher.Verify(password, s.dummy())
		s.metrics.AuthEvent("login", "failure")
		return nil, invalid
	}

	ok, err := s.hasher.Verify(password, *user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash is unusable", "userId", user.ID, "error", err)
		s.metrics.AuthEvent("login", "failure")
		return nil, invalid
	}
	if !ok {
		s.metrics.AuthEvent("login", "failure")
		return nil, invalid
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.logger.Info(ctx, "User logged in successfully", "userId", user.ID, "email", user.Email)
	s.metrics.AuthEvent("login", "success")

	return &AuthResult{User: user.Public(false), Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is not revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, common.BadRequest(MsgRefreshTokenRequired)
	}

	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.AuthEvent("refresh", "failure")
		return nil, common.Unauthorized(MsgInvalidRefreshToken)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.AuthEvent("refresh", "failure")
			return nil, common.NotFound(MsgUserNotFound)
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.metrics.AuthEvent("refresh", "success")
	return pair, nil
}

// Logout always succeeds. userID may be empty for anonymous callers.
func (s *AuthService) Logout(ctx context.Context, userID string) string {
	if userID != "" {
		s.logger.Info(ctx, "User logged out", "userId", userID)
	}
	s.metrics.AuthEvent("logout", "success")
	return MsgLoggedOut
}

// ForgotPassword returns the same message whether or not the email is
// registered. Known accounts get an audit log entry; delivering the reset
// link is someone else's job.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) string {
	email = normalizeEmail(email)
	if email != "" {
		user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
		switch {
		case err == nil:
			s.logger.Info(ctx, "Password reset requested", "userId", user.ID, "email", user.Email, "audit", true)
		case !errors.Is(err, common.ErrorNotFound):
			s.logger.Error(ctx, "password reset lookup failed", "error", err)
		}
	}
	s.metrics.AuthEvent("forgot_password", "accepted")
	return MsgPasswordResetSent
}

// GetCurrentUser returns the public profile, preferences included, of the
// authenticated user.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*models.PublicUser, error) {
	if userID == "" {
		return nil, common.Unauthorized(MsgNotAuthenticated)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound(MsgUserNotFound)
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	p := user.Public(true)
	return &p, nil
}

// GetUser returns the stored user by id, for components that resolve
// identities (middleware, WebSocket handshake).
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// normalizeEmail is applied wherever an email enters the service, so
// lookups match what registration stored.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func validateRegistration(in *RegisterInput) error {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	switch {
	case in.Email == "" || in.Password == "" || in.FirstName == "" || in.LastName == "":
		return common.BadRequest(MsgFieldsRequired)
	case !models.ValidEmail(in.Email):
		return common.BadRequest(MsgInvalidEmail)
	case utf8.RuneCountInString(in.FirstName) > models.MaxNameLength ||
		utf8.RuneCountInString(in.LastName) > models.MaxNameLength:
		return common.BadRequest(MsgNameTooLong)
	case len(in.Password) > auth.MaxPasswordBytes:
		return common.BadRequest(MsgPasswordTooLong)
	}
	return nil
}
