// Package service provides technical services for the session gateway:
// profile blob encryption, master key loading, and the HTTP client for the
// backend authentication API.
package service

import (
	"context"
	"time"

	"github.com/opsdash/dashgate/internal/rbac"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// BlobCipher encrypts and decrypts persisted profile blobs. The storage key
// participates in key derivation, so a blob copied under another key fails
// authentication.
type BlobCipher interface {
	// Encrypt encrypts plaintext for the given storage key. Returns the
	// ciphertext (with authentication tag) and the nonce.
	Encrypt(plaintext []byte, storageKey string) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts a blob previously encrypted under the same storage
	// key. Fails if the blob was tampered with or the key doesn't match.
	Decrypt(ciphertext, nonce []byte, storageKey string) ([]byte, error)
}

// Identity is the backend's view of the authenticated user, returned by
// login and profile calls. Credential is the opaque backend session cookie;
// it is owned by the secure store and never reaches handlers or pages.
type Identity struct {
	Profile    sessionDomain.Profile
	Role       rbac.Role
	Credential string
}

// RemoteSession describes an active backend session as reported by the
// sessions listing endpoint.
type RemoteSession struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Backend is the client for the backend authentication API. Implementations
// must apply a fixed timeout to every call and classify failures so network
// errors and authentication failures can be logged distinctly.
type Backend interface {
	// Login exchanges credentials for a backend session. Returns
	// ErrInvalidCredentials on rejection, ErrBackendUnavailable on
	// network failure or timeout.
	Login(ctx context.Context, creds sessionDomain.Credentials) (*Identity, error)

	// Profile validates the backend session and returns the current
	// identity. Returns ErrSessionExpired or ErrInvalidCredentials when the
	// session is no longer valid, ErrMalformedProfile when the payload
	// cannot be decoded.
	Profile(ctx context.Context, credential string) (*Identity, error)

	// Logout invalidates the backend session. Best-effort: callers clear
	// local state regardless of the result.
	Logout(ctx context.Context, credential string) error

	// Sessions lists the user's active backend sessions.
	Sessions(ctx context.Context, credential string, offset, limit int) ([]RemoteSession, error)

	// RevokeAll invalidates every backend session of the user.
	RevokeAll(ctx context.Context, credential string) error
}
