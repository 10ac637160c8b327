package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	bearerPrefix                       = "bearer"
	defaultClockSkewTolerance          = 5 * time.Minute
	subjectContextKey       contextKey = "auth_subject"
)

// Middleware validates bearer JWTs on mutating endpoints. Tokens must be
// signed with HS256 over the shared secret and carry a non-empty subject.
type Middleware struct {
	secret    []byte
	clockSkew time.Duration
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		secret:    []byte(secret),
		clockSkew: defaultClockSkewTolerance,
	}
}

// RequireAuth rejects the request with 401 unless it carries a valid token.
// The token subject is stored in the request context as the caller identity.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.validateTokenAndExtractSubject(r)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected unauthenticated request")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the authenticated caller identity, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok
}

func (m *Middleware) validateTokenAndExtractSubject(r *http.Request) (string, error) {
	tokenString, err := extractBearerToken(r)
	if err != nil {
		return "", err
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithLeeway(m.clockSkew))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}

	if claims.Subject == "" {
		return "", errors.New("token subject is empty")
	}

	return claims.Subject, nil
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerPrefix) {
		return "", errors.New("authorization header is not a bearer token")
	}

	return strings.TrimSpace(parts[1]), nil
}
