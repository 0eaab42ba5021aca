// ABOUTME: Tests for the bearer token HTTP middleware
// ABOUTME: Covers valid, missing, malformed and expired tokens

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var httpTestSecret = []byte("http-middleware-test-secret-32b!")

func serveWithAuth(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var learner string
	handler := Middleware(NewJWTVerifier(httpTestSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		learner = LearnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws/learning-coach/t1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, learner
}

func TestMiddleware_ValidToken(t *testing.T) {
	token, err := NewJWTVerifier(httpTestSecret).Generate("learner-7", time.Hour)
	require.NoError(t, err)

	rec, learner := serveWithAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "learner-7", learner)
}

func TestMiddleware_Rejections(t *testing.T) {
	expired, err := NewJWTVerifier(httpTestSecret).Generate("learner-7", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewJWTVerifier([]byte("some-other-secret-of-32-bytes!!!")).Generate("learner-7", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty token", "Bearer ", "empty token"},
		{"expired", "Bearer " + expired, "token expired"},
		{"wrong secret", "Bearer " + foreign, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, learner := serveWithAuth(t, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Empty(t, learner)
		})
	}
}

func TestLearnerFromContext_Empty(t *testing.T) {
	assert.Empty(t, LearnerFromContext(t.Context()))
}
