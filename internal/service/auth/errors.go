package auth

import (
	"errors"
	"fmt"
)

// Authentication errors. Everything that is not ErrMissingCredential wraps
// ErrInvalidCredential so callers can map both to 401 with errors.Is.
var (
	// ErrMissingCredential indicates the request carried no API key or token.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential indicates a credential was present but rejected.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = fmt.Errorf("%w: invalid authentication token", ErrInvalidCredential)

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = fmt.Errorf("%w: authentication token has expired", ErrInvalidCredential)

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = fmt.Errorf("%w: authentication token not yet valid", ErrInvalidCredential)

	// ErrTokensDisabled indicates a bearer token was presented but no token secret is configured.
	ErrTokensDisabled = fmt.Errorf("%w: bearer tokens are not enabled", ErrInvalidCredential)
)
