package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/dbx"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/metrics"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/cofounder/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

// --- helpers ---

type fixture struct {
	svc     *AuthService
	store   *usersrepo.MemoryRepository
	issuer  *auth.Issuer
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rm := repomanager.NewMemoryRepositoryManager()
	return newFixtureWith(t, rm, rm.Store())
}

func newFixtureWith(t *testing.T, rm repomanager.RepositoryManager, store *usersrepo.MemoryRepository) *fixture {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	issuer := auth.NewIssuer(auth.Config{Secret: []byte("k"), AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour}, logging.Nop())
	m := metrics.New()
	svc := NewAuthService(nil, rm, auth.NewBcryptHasherWithCost(bcrypt.MinCost), issuer, logger, m)
	return &fixture{svc: svc, store: store, issuer: issuer, metrics: m, logs: &buf}
}

func alice() RegisterInput {
	return RegisterInput{Email: "alice@example.com", Password: "password123", FirstName: "Alice", LastName: "Smith"}
}

// failingUsersRepo returns errBoom (or the configured errors) from every call.
type failingUsersRepo struct {
	getByEmailOut *models.User
	getByEmailErr error
	getByIDErr    error
	createErr     error
}

func (f *failingUsersRepo) Create(context.Context, *models.User) (*models.User, error) {
	return nil, f.createErr
}
func (f *failingUsersRepo) GetByEmail(context.Context, string) (*models.User, error) {
	return f.getByEmailOut, f.getByEmailErr
}
func (f *failingUsersRepo) GetByID(context.Context, string) (*models.User, error) {
	return nil, f.getByIDErr
}

// brokenHasher fails every call, as bcrypt does when the system cannot
// provide randomness.
type brokenHasher struct{}

func (brokenHasher) Hash(string) (string, error) {
	return "", fmt.Errorf("%w: %v", common.ErrHashing, errBoom)
}
func (brokenHasher) Verify(string, string) (bool, error) {
	return false, fmt.Errorf("%w: %v", common.ErrHashing, errBoom)
}

type fakeRepoManager struct{ u usersrepo.Repository }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }

// --- register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), alice())
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, models.RoleFounder, res.User.Role)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, models.TierBasic, res.User.SubscriptionTier)
	assert.Nil(t, res.User.Preferences)

	sub, err := f.issuer.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)
	sub, err = f.issuer.VerifyRefresh(res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)

	stored, err := f.store.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordHash, "registered users always have a credential")
	assert.NotEqual(t, "password123", *stored.PasswordHash)

	assert.Contains(t, f.logs.String(), "User registered successfully")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthEventsTotal.WithLabelValues("register", "success")))
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	for _, pw := range []string{"password123", "somethingElse"} {
		in := alice()
		in.Password = pw
		_, err = f.svc.Register(ctx, in)
		assert.ErrorIs(t, err, common.ErrorConflict)
		assert.Equal(t, MsgEmailTaken, err.Error())
	}
}

func TestRegister_EmailIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	in := alice()
	in.Email = "Alice@example.com"
	_, err = f.svc.Register(ctx, in)
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }},
		{"missing password", func(in *RegisterInput) { in.Password = "" }},
		{"missing first name", func(in *RegisterInput) { in.FirstName = "  " }},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"long name", func(in *RegisterInput) { in.LastName = strings.Repeat("x", 101) }},
		{"long multibyte name", func(in *RegisterInput) { in.LastName = strings.Repeat("я", 101) }},
		{"password over bcrypt limit", func(in *RegisterInput) { in.Password = strings.Repeat("p", auth.MaxPasswordBytes+1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := alice()
			tt.mutate(&in)
			_, err := f.svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrorBadRequest)
		})
	}
}

func TestRegister_PasswordLengthLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := alice()
	in.Password = strings.Repeat("p", 80)
	_, err := f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, common.ErrorBadRequest)
	assert.NotErrorIs(t, err, common.ErrHashing)
	assert.Equal(t, MsgPasswordTooLong, err.Error())

	in.Password = strings.Repeat("p", auth.MaxPasswordBytes)
	_, err = f.svc.Register(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, in.Email, in.Password)
	assert.NoError(t, err)
}

func TestRegister_MultibyteNamesCountCharacters(t *testing.T) {
	f := newFixture(t)
	in := alice()
	in.FirstName = strings.Repeat("Ж", 60)
	in.LastName = strings.Repeat("ж", models.MaxNameLength)

	res, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.FirstName, res.User.FirstName)
}

func TestRegister_HashingFailure(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	issuer := auth.NewIssuer(auth.Config{Secret: []byte("k")}, logging.Nop())
	svc := NewAuthService(nil, rm, brokenHasher{}, issuer, logging.Nop(), nil)

	_, err := svc.Register(context.Background(), alice())
	assert.ErrorIs(t, err, common.ErrHashing)
}

func TestRegister_RaceLostToUniqueConstraint(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{
		getByEmailErr: common.ErrorNotFound,
		createErr:     common.ErrorConflict,
	}}, nil)

	_, err := f.svc.Register(context.Background(), alice())
	assert.ErrorIs(t, err, common.ErrorConflict)
	assert.Equal(t, MsgEmailTaken, err.Error())
}

func TestRegister_StoreErrors(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByEmailErr: errBoom}}, nil)
	_, err := f.svc.Register(context.Background(), alice())
	assert.ErrorIs(t, err, errBoom)

	f = newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByEmailErr: common.ErrorNotFound, createErr: errBoom}}, nil)
	_, err = f.svc.Register(context.Background(), alice())
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, errors.Is(err, common.ErrorConflict))
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), alice())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, common.ErrorConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
}

// --- create user ---

func TestCreateUser_ExplicitRole(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.CreateUser(context.Background(), alice(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	_, err = f.svc.CreateUser(context.Background(), RegisterInput{Email: "b@example.com", Password: "p", FirstName: "B", LastName: "C"}, "root")
	assert.ErrorIs(t, err, common.ErrorBadRequest)
}

// --- login ---

func TestLogin_AfterRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEqual(t, reg.Tokens.AccessToken, res.Tokens.AccessToken)
	assert.NotEqual(t, reg.Tokens.RefreshToken, res.Tokens.RefreshToken)

	sub, err := f.issuer.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sub)
}

func TestLogin_PaddedEmailMatchesRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := alice()
	in.Email = "  alice@example.com "
	reg, err := f.svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", reg.User.Email)

	for _, email := range []string{"  alice@example.com ", "alice@example.com"} {
		res, err := f.svc.Login(ctx, email, "password123")
		require.NoError(t, err, email)
		assert.Equal(t, reg.User.ID, res.User.ID)
	}

	f.logs.Reset()
	f.svc.ForgotPassword(ctx, " alice@example.com\t")
	assert.Contains(t, f.logs.String(), "Password reset requested")
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice@example.com", "wrong")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "password123")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.ErrorIs(t, wrongPassword, common.ErrorUnauthorized)
	assert.ErrorIs(t, unknownEmail, common.ErrorUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, MsgInvalidCredentials, unknownEmail.Error())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AuthEventsTotal.WithLabelValues("login", "failure")))
}

func TestLogin_AccountWithoutPassword(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{
		getByEmailOut: &models.User{ID: "u1", Email: "sso@example.com"},
	}}, nil)

	_, err := f.svc.Login(context.Background(), "sso@example.com", "anything")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, MsgInvalidCredentials, err.Error())
}

func TestLogin_CorruptHashIsUnauthorized(t *testing.T) {
	bad := "not-bcrypt"
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{
		getByEmailOut: &models.User{ID: "u1", Email: "x@example.com", PasswordHash: &bad},
	}}, nil)

	_, err := f.svc.Login(context.Background(), "x@example.com", "pw")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Contains(t, f.logs.String(), "stored password hash is unusable")
}

func TestLogin_StoreError(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByEmailErr: errBoom}}, nil)

	_, err := f.svc.Login(context.Background(), "alice@example.com", "pw")
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, errors.Is(err, common.ErrorUnauthorized))
}

// --- refresh ---

func TestRefresh_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.Tokens.AccessToken, pair.AccessToken)
	assert.NotEqual(t, reg.Tokens.RefreshToken, pair.RefreshToken)

	sub, err := f.issuer.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sub)

	// no rotation: the original refresh token still works
	_, err = f.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, common.ErrorBadRequest)
	assert.Equal(t, MsgRefreshTokenRequired, err.Error())

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, MsgInvalidRefreshToken, err.Error())

	_, err = f.svc.Refresh(ctx, reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized, "access tokens cannot be used to refresh")

	expired := auth.NewIssuer(auth.Config{Secret: []byte("k"), RefreshTTL: time.Nanosecond}, logging.Nop())
	tok, err := expired.IssueRefreshToken(reg.User.ID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, tok)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	f.store.Delete(reg.User.ID)
	_, err = f.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, MsgUserNotFound, err.Error())
}

func TestRefresh_StoreError(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByIDErr: errBoom}}, nil)
	tok, err := f.issuer.IssueRefreshToken("u1")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), tok)
	assert.ErrorIs(t, err, errBoom)
}

// --- logout / forgot password ---

func TestLogout_AlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, MsgLoggedOut, f.svc.Logout(context.Background(), ""))
	assert.Equal(t, MsgLoggedOut, f.svc.Logout(context.Background(), "u1"))
}

func TestForgotPassword_GenericMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)
	f.logs.Reset()

	known := f.svc.ForgotPassword(ctx, "alice@example.com")
	assert.Contains(t, f.logs.String(), "Password reset requested")
	assert.Contains(t, f.logs.String(), reg.User.ID)

	f.logs.Reset()
	unknown := f.svc.ForgotPassword(ctx, "nobody@example.com")
	assert.NotContains(t, f.logs.String(), "Password reset requested")

	empty := f.svc.ForgotPassword(ctx, "")

	assert.Equal(t, MsgPasswordResetSent, known)
	assert.Equal(t, known, unknown)
	assert.Equal(t, known, empty)
}

func TestForgotPassword_StoreErrorIsHidden(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByEmailErr: errBoom}}, nil)

	assert.Equal(t, MsgPasswordResetSent, f.svc.ForgotPassword(context.Background(), "a@example.com"))
	assert.Contains(t, f.logs.String(), "password reset lookup failed")
}

// --- current user ---

func TestGetCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, alice())
	require.NoError(t, err)

	me, err := f.svc.GetCurrentUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.NotNil(t, me.Preferences, "preferences are included")

	_, err = f.svc.GetCurrentUser(ctx, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	f.store.Delete(reg.User.ID)
	_, err = f.svc.GetCurrentUser(ctx, reg.User.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetCurrentUser_StoreError(t *testing.T) {
	f := newFixtureWith(t, &fakeRepoManager{u: &failingUsersRepo{getByIDErr: errBoom}}, nil)
	_, err := f.svc.GetCurrentUser(context.Background(), "u1")
	assert.ErrorIs(t, err, errBoom)
}
