package apperrors

import (
	"errors"
)

var (
	ErrChildAlreadyExists = errors.New("child account already exists")
	ErrChildNotFound      = errors.New("child account not found")

	// Unknown username and wrong PIN resolve to the same error so the
	// caller can't enumerate usernames
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrSuspiciousActivity = errors.New("suspicious activity detected")
	ErrAccountLocked      = errors.New("account temporarily locked")

	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenRevoked  = errors.New("refresh token is revoked")
	ErrTokenExpired  = errors.New("refresh token is expired")
	ErrAccessInvalid = errors.New("access token is invalid")

	// Transient persistence failures. Callers may retry; never to be
	// confused with credential errors
	ErrUnavailable = errors.New("storage unavailable")
)
