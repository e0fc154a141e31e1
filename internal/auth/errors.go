package auth

import "errors"

var (
	// ErrUnauthorized is the single rejection signal for authentication flows.
	// Callers never learn which check failed.
	ErrUnauthorized = errors.New("auth: invalid credentials or token")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrNotConfigured reports a missing piece of configuration, such as the
	// signing key or the Google client id.
	ErrNotConfigured = errors.New("auth: not configured")
	// ErrUnavailable wraps transient failures of external providers.
	ErrUnavailable = errors.New("auth: upstream unavailable")
)
