// Package models defines server-side data models persisted in the database.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	MaxEmailLength = 255
	MaxNameLength  = 100
)

// Role is the closed set of account roles checked by the role gate.
type Role string

const (
	RoleFounder Role = "founder"
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFounder, RoleAdmin, RoleUser:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type SubscriptionTier string

const (
	TierBasic      SubscriptionTier = "basic"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Preferences is a free-form document stored as JSONB.
type Preferences map[string]any

func (p Preferences) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

func (p *Preferences) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*p = Preferences{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("preferences: unsupported type %T", src)
	}
	out := Preferences{}
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	*p = out
	return nil
}

// User is an account record. PasswordHash is nil for accounts provisioned
// outside of registration.
type User struct {
	ID               string
	Email            string
	PasswordHash     *string
	FirstName        string
	LastName         string
	Role             Role
	EmailVerified    bool
	TwoFactorEnabled bool
	SubscriptionTier SubscriptionTier
	Preferences      Preferences
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser returns a user with the registration defaults applied.
func NewUser(email, passwordHash, firstName, lastName string) *User {
	return &User{
		Email:            email,
		PasswordHash:     &passwordHash,
		FirstName:        firstName,
		LastName:         lastName,
		Role:             RoleFounder,
		EmailVerified:    false,
		SubscriptionTier: TierBasic,
		Preferences:      Preferences{},
	}
}

// PublicUser is the outward view of a User. It has no credential fields.
type PublicUser struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	Role             Role             `json:"role"`
	EmailVerified    bool             `json:"email_verified"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	Preferences      *Preferences     `json:"preferences,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Public converts u to its outward view. Preferences are only copied when
// withPreferences is set, and then always serialize, as {} when empty.
func (u *User) Public(withPreferences bool) PublicUser {
	p := PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             u.Role,
		EmailVerified:    u.EmailVerified,
		SubscriptionTier: u.SubscriptionTier,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if withPreferences {
		prefs := u.Preferences
		if prefs == nil {
			prefs = Preferences{}
		}
		p.Preferences = &prefs
	}
	return p
}

// ValidEmail reports whether s is a bare email address that fits the
// column. Display names ("Alice <a@b.c>") are rejected.
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndexByte(s, '@'):], ".")
}
