package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/goalq/internal/api/shared"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/service/auth"
)

// APIKeyHeader and APIKeyQueryParam are where API keys are accepted.
const (
	APIKeyHeader     = "X-API-Key"
	APIKeyQueryParam = "api_key"
)

// Authenticator verifies API keys and bearer tokens.
// It is satisfied by *auth.Authenticator.
type Authenticator interface {
	AuthenticateAPIKey(ctx context.Context, key string) (*auth.Principal, error)
	AuthenticateToken(ctx context.Context, token string) (*auth.Principal, error)
}

// AuthMiddleware rejects requests without a valid credential before they
// reach a handler.
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate accepts, in order, an Authorization bearer token, the
// X-API-Key header or the api_key query parameter, and stores the
// resulting principal in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authenticate(r)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, unauthorizedMessage(err), err)
			return
		}

		ctx := shared.WithPrincipal(r.Context(), principal)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(slog.String("principal", principal.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*auth.Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return nil, auth.ErrInvalidToken
		}
		return m.authenticator.AuthenticateToken(r.Context(), strings.TrimSpace(token))
	}

	if key := r.Header.Get(APIKeyHeader); key != "" {
		return m.authenticator.AuthenticateAPIKey(r.Context(), key)
	}
	if key := r.URL.Query().Get(APIKeyQueryParam); key != "" {
		return m.authenticator.AuthenticateAPIKey(r.Context(), key)
	}
	return nil, auth.ErrMissingCredential
}

func unauthorizedMessage(err error) string {
	switch err {
	case auth.ErrMissingCredential:
		return "API key or bearer token required"
	case auth.ErrExpiredToken:
		return "Token expired"
	default:
		return "Invalid credential"
	}
}

// GetPrincipal extracts the authenticated caller from the request context.
func GetPrincipal(r *http.Request) (*auth.Principal, bool) {
	return shared.GetPrincipal(r.Context())
}
