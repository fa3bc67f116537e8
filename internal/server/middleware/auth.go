package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/httputil"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
)

const (
	MsgTokenRequired    = "Access token is required"
	MsgInvalidToken     = "Invalid or expired token"
	MsgUserNotFound     = "User not found"
	MsgNotAuthenticated = "User not authenticated"
	MsgForbidden        = "Insufficient permissions"
)

// TokenVerifier turns an access token into a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserFinder loads the current state of a user.
type UserFinder interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Authenticator resolves bearer tokens to identities. HTTP middleware,
// the WebSocket handshake and the gRPC interceptor all go through Resolve.
type Authenticator struct {
	tokens TokenVerifier
	users  UserFinder
	logger logging.Logger
}

func NewAuthenticator(tokens TokenVerifier, users UserFinder, logger logging.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger.With("module", "auth_middleware")}
}

// Resolve verifies token and loads its user. Failures are Unauthorized
// domain errors, except store failures which are returned wrapped.
func (a *Authenticator) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, common.Unauthorized(MsgTokenRequired)
	}

	userID, err := a.tokens.Verify(token)
	if err != nil {
		return Identity{}, common.Unauthorized(MsgInvalidToken)
	}

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Identity{}, common.Unauthorized(MsgUserNotFound)
		}
		return Identity{}, fmt.Errorf("resolve user: %w", err)
	}

	return Identity{UserID: user.ID, User: user.Public(false)}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Any other scheme yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid bearer token for an
// existing user and attaches the Identity otherwise.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := a.Resolve(ctx, BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			httputil.WriteError(ctx, w, a.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

// OptionalAuth attaches an Identity when the request carries a usable
// token and otherwise passes the request on untouched. It never fails.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.Resolve(ctx, token)
		if err != nil {
			a.logger.Debug(ctx, "optional authentication failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

// RequireRoles only lets through callers whose role is one of roles. It
// must run after RequireAuth; without an identity the request is
// rejected as unauthenticated.
func (a *Authenticator) RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			id, ok := IdentityFromContext(ctx)
			if !ok {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, MsgNotAuthenticated)
				return
			}

			if _, ok := allowed[id.Role()]; !ok {
				a.logger.Warn(ctx, "Access denied: insufficient permissions",
					"userId", id.UserID,
					"role", id.Role(),
					"requiredRoles", roles,
					"ip", ClientIP(r),
					"url", r.URL.String(),
				)
				httputil.WriteErrorMessage(w, http.StatusForbidden, MsgForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
