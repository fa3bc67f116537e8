// Package middleware contains the HTTP middleware of the server: bearer
// token authentication, the role gate, rate limiting and the ambient
// request plumbing (request ids, access logs, recovery, CORS).
package middleware

import (
	"context"

	"github.com/dmitrijs2005/cofounder/internal/server/models"
)

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

// Identity is the authenticated caller attached to a request context. It
// is stored by value and never modified after Resolve builds it.
type Identity struct {
	UserID string
	User   models.PublicUser
}

func (i Identity) Role() models.Role { return i.User.Role }

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by RequireAuth or
// OptionalAuth, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
