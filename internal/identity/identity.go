// Package identity authenticates bearer tokens and carries the caller through the request context.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Authenticator struct {
	log     *slog.Logger
	secret  []byte
	revoked RevocationList
}

func NewAuthenticator(log *slog.Logger, secret string, revoked RevocationList) *Authenticator {
	return &Authenticator{log: log, secret: []byte(secret), revoked: revoked}
}

// Issue signs a token for u. The storefront's auth service owns login; this exists
// for tooling and tests.
func (a *Authenticator) Issue(u User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Authenticate(ctx context.Context, raw string) (User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}

	if claims.ID != "" && a.revoked != nil {
		revoked, err := a.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return User{}, fmt.Errorf("%w: revocation check: %v", ErrUnauthenticated, err)
		}
		if revoked {
			return User{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
		}
	}

	return User{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, r)
			return
		}
		u, err := a.Authenticate(r.Context(), raw)
		if err != nil {
			a.log.Debug("authentication failed", "path", r.URL.Path, "err", err)
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]any{"statusCode": http.StatusUnauthorized, "message": "Unauthorized"})
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}
