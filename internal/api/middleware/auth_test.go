package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/goalq/internal/api/shared"
	"github.com/phrazzld/goalq/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAuthenticator accepts "good-key" and "good-token".
type mockAuthenticator struct {
	keyCalls   int
	tokenCalls int
}

func (m *mockAuthenticator) AuthenticateAPIKey(_ context.Context, key string) (*auth.Principal, error) {
	m.keyCalls++
	if key == "good-key" {
		return &auth.Principal{Subject: "key:abc", Method: auth.MethodAPIKey}, nil
	}
	return nil, auth.ErrInvalidCredential
}

func (m *mockAuthenticator) AuthenticateToken(_ context.Context, token string) (*auth.Principal, error) {
	m.tokenCalls++
	switch token {
	case "good-token":
		return &auth.Principal{Subject: "token:ci", Method: auth.MethodToken}, nil
	case "old-token":
		return nil, auth.ErrExpiredToken
	}
	return nil, auth.ErrInvalidToken
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		target        string
		headers       map[string]string
		wantStatus    int
		wantSubject   string
		wantMessage   string
		wantKeyCalls  int
		wantTokenCall int
	}{
		{
			name:         "api key header",
			target:       "/tasks",
			headers:      map[string]string{APIKeyHeader: "good-key"},
			wantStatus:   http.StatusOK,
			wantSubject:  "key:abc",
			wantKeyCalls: 1,
		},
		{
			name:         "api key query parameter",
			target:       "/tasks?api_key=good-key",
			wantStatus:   http.StatusOK,
			wantSubject:  "key:abc",
			wantKeyCalls: 1,
		},
		{
			name:          "bearer token",
			target:        "/tasks",
			headers:       map[string]string{"Authorization": "Bearer good-token"},
			wantStatus:    http.StatusOK,
			wantSubject:   "token:ci",
			wantTokenCall: 1,
		},
		{
			name:          "lowercase bearer scheme",
			target:        "/tasks",
			headers:       map[string]string{"Authorization": "bearer good-token"},
			wantStatus:    http.StatusOK,
			wantSubject:   "token:ci",
			wantTokenCall: 1,
		},
		{
			name:        "no credential",
			target:      "/tasks",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "API key or bearer token required",
		},
		{
			name:         "wrong api key",
			target:       "/tasks",
			headers:      map[string]string{APIKeyHeader: "bad-key"},
			wantStatus:   http.StatusUnauthorized,
			wantMessage:  "Invalid credential",
			wantKeyCalls: 1,
		},
		{
			name:        "malformed authorization header",
			target:      "/tasks",
			headers:     map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid credential",
		},
		{
			name:          "expired token",
			target:        "/tasks",
			headers:       map[string]string{"Authorization": "Bearer old-token"},
			wantStatus:    http.StatusUnauthorized,
			wantMessage:   "Token expired",
			wantTokenCall: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			authn := &mockAuthenticator{}
			var captured *auth.Principal
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, _ = GetPrincipal(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(authn).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantKeyCalls, authn.keyCalls)
			assert.Equal(t, tc.wantTokenCall, authn.tokenCalls)

			if tc.wantStatus == http.StatusOK {
				require.NotNil(t, captured)
				assert.Equal(t, tc.wantSubject, captured.Subject)
				return
			}

			assert.Nil(t, captured, "handler must not run")
			var body shared.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.wantMessage, body.Error)
		})
	}
}
