// Package auth issues and verifies session tokens and carries the caller's
// church scope through request contexts. Every service call takes an explicit
// Scope; handlers obtain it from ScopeFrom.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shepherd/internal/pkg/apperr"
)

var (
	ErrUnauthenticated = apperr.New(apperr.ErrUnauthenticated, "authentication required")
	ErrInvalidToken    = apperr.New(apperr.ErrUnauthenticated, "invalid or expired token")
	ErrForbidden       = apperr.New(apperr.ErrForbidden, "insufficient role")
)

// Role is a user's permission level within one church.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleViewer:
		return true
	}
	return false
}

// Scope is the tenant boundary for a call: every query filters on ChurchID.
type Scope struct {
	ChurchID uuid.UUID
	UserID   uuid.UUID
	Role     Role
}

// Allows reports whether the scope holds one of roles.
func (s Scope) Allows(roles ...Role) bool {
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// Claims is the JWT payload. The subject is the user id.
type Claims struct {
	ChurchID string `json:"church_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for scope and returns it with its expiry.
func (i *Issuer) Issue(scope Scope, email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		ChurchID: scope.ChurchID.String(),
		Role:     scope.Role,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   scope.UserID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns the scope it grants.
func (i *Issuer) Verify(token string) (Scope, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !t.Valid {
		return Scope{}, ErrInvalidToken
	}
	churchID, err := uuid.Parse(claims.ChurchID)
	if err != nil {
		return Scope{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Scope{}, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return Scope{}, ErrInvalidToken
	}
	return Scope{ChurchID: churchID, UserID: userID, Role: claims.Role}, nil
}

type scopeKey struct{}

// WithScope stores s in ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope Middleware stored in ctx.
func ScopeFrom(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, ErrUnauthenticated
	}
	return s, nil
}
