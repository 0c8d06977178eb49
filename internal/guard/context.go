package guard

import (
	"context"

	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// SessionSource is the view of a browser session the guard needs. The session
// manager satisfies it. Guards only read state and trigger validation; they
// never mutate session state themselves.
type SessionSource interface {
	// State returns a snapshot of the current session.
	State() sessionDomain.Session

	// CheckAuth validates the session against the backend. Concurrent calls
	// collapse into a single backend request.
	CheckAuth(ctx context.Context) (*sessionDomain.Session, error)
}

// sessionSourceKey is a context key type for storing the request's session source.
type sessionSourceKey struct{}

// sessionKey is a context key type for storing the resolved session snapshot.
type sessionKey struct{}

// WithSessionSource stores the request's session source in the context.
// This is called by the session resolution middleware before any guard runs.
func WithSessionSource(ctx context.Context, source SessionSource) context.Context {
	return context.WithValue(ctx, sessionSourceKey{}, source)
}

// GetSessionSource retrieves the request's session source from the context.
// Returns (nil, false) when no session middleware ran; guards treat that as
// an anonymous caller.
func GetSessionSource(ctx context.Context) (SessionSource, bool) {
	source, ok := ctx.Value(sessionSourceKey{}).(SessionSource)
	return source, ok
}

// WithSession stores the session snapshot that satisfied a guard in the
// context, so downstream handlers and the proxy can read the identity
// without consulting the manager again.
func WithSession(ctx context.Context, session sessionDomain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSession retrieves the guard-approved session snapshot from the context.
func GetSession(ctx context.Context) (sessionDomain.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(sessionDomain.Session)
	return session, ok
}
