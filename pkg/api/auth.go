package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const agencyKey contextKey = "agency_id"

// AgencyClaims are the JWT claims carried by agency session tokens.
type AgencyClaims struct {
	jwt.RegisteredClaims
	AgencyID string `json:"agency_id"`
}

// JWTValidator validates agency session tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator; an empty secret returns nil and the
// middleware fails closed.
func NewJWTValidator(secret string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and validates a token string.
func (v *JWTValidator) Validate(tokenStr string) (*AgencyClaims, error) {
	claims := &AgencyClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// IssueToken mints an agency session token; used by tests and the CLI.
func (v *JWTValidator) IssueToken(agencyID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &AgencyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agencyID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AgencyID: agencyID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// WithAgency attaches an agency id to the context.
func WithAgency(ctx context.Context, agencyID string) context.Context {
	return context.WithValue(ctx, agencyKey, agencyID)
}

// AgencyFromContext retrieves the authenticated agency id.
func AgencyFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(agencyKey).(string)
	if !ok || id == "" {
		return "", errors.New("no agency in context")
	}
	return id, nil
}

// AgencyAuth creates the mobile-surface auth middleware. A nil validator
// rejects everything (fail closed).
func AgencyAuth(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			if validator == nil {
				WriteUnauthorized(w, "Authentication not configured")
				return
			}
			claims, err := validator.Validate(parts[1])
			if err != nil {
				WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.AgencyID == "" {
				WriteUnauthorized(w, "Token agency binding is required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAgency(r.Context(), claims.AgencyID)))
		})
	}
}

// AdminAuth guards the admin surface with a static key in X-Admin-Key.
// An empty configured key rejects everything.
func AdminAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				WriteForbidden(w, "Admin surface not configured")
				return
			}
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
				WriteForbidden(w, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
