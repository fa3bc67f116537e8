// Package auth implements credential hashing and the signed, time-limited
// tokens handed out to clients.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSecret is used when no signing secret is configured. Any token
// signed with it can be forged by anyone who has read this file.
const DefaultSecret = "fallback-secret"

const (
	DefaultAccessTTL  = 7 * 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Config is the issuer configuration. It is copied into the Issuer, so
// later changes by the caller have no effect.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the token payload: the registered claims (sub, exp, iat, jti)
// plus the user id and the token type.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Type   string `json:"typ"`
}

// TokenPair bundles an access token and a refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Issuer signs and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewIssuer builds an Issuer from cfg. Zero TTLs take the defaults. An
// empty secret falls back to DefaultSecret and is reported as a critical
// misconfiguration.
func NewIssuer(cfg Config, logger logging.Logger) *Issuer {
	return newIssuer(cfg, logger, time.Now)
}

func newIssuer(cfg Config, logger logging.Logger, now func() time.Time) *Issuer {
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	if len(secret) == 0 {
		if logger != nil {
			logger.Error(context.Background(), "JWT secret is not configured, falling back to the built-in default secret; tokens can be forged",
				"severity", "critical")
		}
		secret = []byte(DefaultSecret)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	return &Issuer{
		secret:     secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}
}

func (i *Issuer) IssueAccessToken(userID string) (string, error) {
	return i.issue(userID, typeAccess, i.accessTTL)
}

func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	return i.issue(userID, typeRefresh, i.refreshTTL)
}

// IssuePair issues a fresh access and refresh token for userID.
func (i *Issuer) IssuePair(userID string) (*TokenPair, error) {
	access, err := i.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := i.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks an access token and returns its user id. It fails with
// common.ErrTokenExpired once the expiry has been reached and with
// common.ErrInvalidToken for anything else that is wrong with the token.
func (i *Issuer) Verify(token string) (string, error) {
	return i.verify(token, typeAccess)
}

// VerifyRefresh is Verify for refresh tokens.
func (i *Issuer) VerifyRefresh(token string) (string, error) {
	return i.verify(token, typeRefresh)
}

func (i *Issuer) issue(userID, typ string, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
		Type:   typ,
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (i *Issuer) verify(tokenString, typ string) (string, error) {
	claims := &Claims{}

	token, err := i.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Type != typ || claims.UserID == "" || claims.UserID != claims.Subject {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}
