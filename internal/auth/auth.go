// Package auth issues and verifies session tokens and carries the signed-in
// user through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/pkg/core"
)

// User is the signed-in account.
type User struct {
	ID    string
	Email string
}

// Claims are the session token claims.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer from the auth config.
func NewIssuer(cfg config.AuthConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth.secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

// Sign returns a token for u.
func (i *Issuer) Sign(u User) (string, error) {
	if u.ID == "" {
		return "", errors.New("user id is required")
	}
	now := i.now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks a token and returns its user.
func (i *Issuer) Verify(tokenStr string) (User, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired()}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return User{}, fmt.Errorf("%w: invalid token", core.ErrUnauthenticated)
	}
	return User{ID: claims.UserID, Email: claims.Email}, nil
}

// ParseBearerToken extracts the token from an Authorization header.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

type ctxKey struct{}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user carried by ctx.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

// Session holds the user signed in on this process. Context users take
// precedence so one Session can serve several requests.
type Session struct {
	mu   sync.RWMutex
	user *User
}

// SignIn records u as the current user.
func (s *Session) SignIn(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

// CurrentUser returns the user for ctx, or core.ErrUnauthenticated.
func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	if u, ok := UserFrom(ctx); ok {
		return u, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, core.ErrUnauthenticated
	}
	return *s.user, nil
}
