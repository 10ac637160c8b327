package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/orders-api/internal/auth"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedHandler(t *testing.T, gotSubject *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := auth.SubjectFromContext(r.Context())
		assert.True(t, ok)
		*gotSubject = subject
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_RequireAuth(t *testing.T) {
	now := time.Now()

	validClaims := jwt.RegisteredClaims{
		Subject:   "ops-user",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "valid_token",
			authHeader: "Bearer " + signToken(t, testSecret, validClaims),
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "missing_header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not_a_bearer_token",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage_token",
			authHeader: "Bearer not.a.jwt",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong_secret",
			authHeader: "Bearer " + signToken(t, "other-secret", validClaims),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired_token",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{
				Subject:   "ops-user",
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "empty_subject",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSubject string
			middleware := auth.NewMiddleware(testSecret)
			srv := middleware.RequireAuth(protectedHandler(t, &gotSubject))

			req := httptest.NewRequest(http.MethodDelete, "/api/orders/some-id", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCalled {
				assert.Equal(t, "ops-user", gotSubject)
			} else {
				assert.Empty(t, gotSubject)
			}
		})
	}
}
