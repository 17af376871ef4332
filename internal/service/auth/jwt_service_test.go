package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewTokenServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService("short")
	assert.Error(t, err)

	_, err = NewTokenService(testSecret)
	assert.NoError(t, err)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newTokenService(testSecret, fixedClock(fixedTime))
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background(), "ci-bot", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", claims.Subject)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), "", time.Hour)
	assert.Error(t, err)
	_, err = svc.GenerateToken(context.Background(), "ci-bot", 0)
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	issue := func(t *testing.T, secret string, at time.Time, ttl time.Duration) string {
		t.Helper()
		svc, err := newTokenService(secret, fixedClock(at))
		require.NoError(t, err)
		token, err := svc.GenerateToken(context.Background(), "subject", ttl)
		require.NoError(t, err)
		return token
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "subject",
		ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "subject",
		ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid", token: issue(t, testSecret, fixedTime, time.Hour)},
		{name: "within clock skew", token: issue(t, testSecret, fixedTime.Add(-61*time.Minute), time.Hour)},
		{name: "expired", token: issue(t, testSecret, fixedTime.Add(-2*time.Hour), time.Hour), wantErr: ErrExpiredToken},
		{name: "not yet valid", token: issue(t, testSecret, fixedTime.Add(time.Hour), time.Hour), wantErr: ErrTokenNotYetValid},
		{name: "wrong secret", token: issue(t, "wrong-secret-that-is-long-enough-for-testing", fixedTime, time.Hour), wantErr: ErrInvalidToken},
		{name: "malformed", token: "not.a.token", wantErr: ErrInvalidToken},
		{name: "alg none", token: noneToken, wantErr: ErrInvalidToken},
		{name: "foreign issuer", token: foreignIssuer, wantErr: ErrInvalidToken},
	}

	svc, err := newTokenService(testSecret, fixedClock(fixedTime))
	require.NoError(t, err)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claims, err := svc.ValidateToken(context.Background(), tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, ErrInvalidCredential)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "subject", claims.Subject)
		})
	}
}
