package domain

import (
	"github.com/opsdash/dashgate/internal/errors"
)

// Session and backend errors.
var (
	// ErrInvalidCredentials indicates the backend rejected the login or the
	// session cookie is no longer valid.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")

	// ErrSessionExpired indicates the backend reported an expired session.
	ErrSessionExpired = errors.Wrap(errors.ErrUnauthorized, "session expired")

	// ErrBackendUnavailable indicates the backend could not be reached or
	// timed out. Logged distinctly from authentication failures, but both
	// move the session to Anonymous.
	ErrBackendUnavailable = errors.Wrap(errors.ErrUnavailable, "backend unavailable")

	// ErrMalformedProfile indicates the backend returned a profile payload
	// that could not be decoded.
	ErrMalformedProfile = errors.Wrap(errors.ErrUnauthorized, "malformed profile")

	// ErrBlobNotFound indicates no persisted blob exists for the storage key.
	ErrBlobNotFound = errors.Wrap(errors.ErrNotFound, "blob not found")
)
