package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/goalq/internal/config"
	"github.com/phrazzld/goalq/internal/platform/logger"
)

// Credential methods recorded on a Principal.
const (
	MethodAPIKey = "api_key"
	MethodToken  = "token"
)

// Principal is an authenticated caller. Subject is stable per credential
// and never contains the secret itself, so it is safe to log and to key
// rate limits on.
type Principal struct {
	Subject string
	Method  string
}

// Authenticator checks API keys (plaintext or bcrypt-hashed) and bearer tokens.
type Authenticator struct {
	keys     [][32]byte
	hashes   []string
	tokens   TokenService
	verifier KeyVerifier

	// matched caches keys already verified against a bcrypt hash.
	mu      sync.RWMutex
	matched map[[32]byte]string
}

// NewAuthenticator builds an Authenticator from configuration. It fails
// when no credential source is configured.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	if !cfg.HasCredentials() {
		return nil, errors.New("no api keys, key hashes or token secret configured")
	}

	a := &Authenticator{
		hashes:   cfg.APIKeyHashes,
		verifier: NewBcryptVerifier(),
		matched:  make(map[[32]byte]string),
	}
	for _, key := range cfg.APIKeys {
		a.keys = append(a.keys, sha256.Sum256([]byte(key)))
	}
	if cfg.TokenSecret != "" {
		tokens, err := NewTokenService(cfg.TokenSecret)
		if err != nil {
			return nil, err
		}
		a.tokens = tokens
	}
	return a, nil
}

// AuthenticateAPIKey checks key against the configured plaintext keys and hashes.
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, ErrMissingCredential
	}

	digest := sha256.Sum256([]byte(key))
	principal := &Principal{Subject: keySubject(digest), Method: MethodAPIKey}

	// Compare every key so timing does not reveal which one matched.
	found := 0
	for _, k := range a.keys {
		found |= subtle.ConstantTimeCompare(digest[:], k[:])
	}
	if found == 1 {
		return principal, nil
	}

	a.mu.RLock()
	_, ok := a.matched[digest]
	a.mu.RUnlock()
	if ok {
		return principal, nil
	}

	for _, hash := range a.hashes {
		if err := a.verifier.Compare(hash, key); err == nil {
			a.mu.Lock()
			a.matched[digest] = principal.Subject
			a.mu.Unlock()
			return principal, nil
		}
	}

	logger.FromContext(ctx).Debug("api key rejected", slog.String("subject", principal.Subject))
	return nil, fmt.Errorf("%w: unknown api key", ErrInvalidCredential)
}

// AuthenticateToken verifies a bearer token.
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}
	if a.tokens == nil {
		return nil, ErrTokensDisabled
	}

	claims, err := a.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Principal{Subject: "token:" + claims.Subject, Method: MethodToken}, nil
}

func keySubject(digest [32]byte) string {
	return "key:" + hex.EncodeToString(digest[:6])
}
