// Package usecase implements the session lifecycle: login, validation,
// logout, and the per-browser-session manager registry. Managers own the
// state machine Unknown -> Checking -> {Authenticated, Anonymous} and
// guarantee that concurrent operations resolve deterministically.
package usecase

import (
	"context"

	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
)

// SessionUseCase defines the session lifecycle operations for one browser
// session. All methods are safe for concurrent use.
type SessionUseCase interface {
	// Login exchanges credentials for an authenticated session. A completed
	// login supersedes any validation still in flight.
	Login(ctx context.Context, creds sessionDomain.Credentials) (*sessionDomain.Session, error)

	// CheckAuth validates the session against the backend. Concurrent calls
	// are collapsed into a single backend request. Any failure, including
	// backend unavailability, resolves the session to Anonymous.
	CheckAuth(ctx context.Context) (*sessionDomain.Session, error)

	// Logout clears local session state unconditionally and invalidates the
	// backend session best-effort. Never fails from the caller's view.
	Logout(ctx context.Context) error

	// State returns a snapshot of the current session.
	State() sessionDomain.Session

	// Sessions lists the user's active backend sessions.
	Sessions(ctx context.Context, offset, limit int) ([]service.RemoteSession, error)

	// RevokeAll invalidates every backend session of the user, then clears
	// local state.
	RevokeAll(ctx context.Context) error
}
