// Package domain defines the session domain model for the dashboard gateway.
//
// A Session tracks the authenticated-identity state for one browser context.
// Its lifecycle follows a small state machine: Unknown on creation, Checking
// while a backend validation is in flight, then Authenticated or Anonymous.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/opsdash/dashgate/internal/rbac"
)

// State is the session lifecycle state.
type State int

const (
	// StateUnknown is the initial state before the first validation attempt.
	StateUnknown State = iota

	// StateChecking means a backend validation or login is in flight.
	// Consumers must not treat Checking as Anonymous: doing so causes a
	// redirect-then-reauthenticate flash.
	StateChecking

	// StateAuthenticated means the backend confirmed the session and a
	// profile is attached.
	StateAuthenticated

	// StateAnonymous means there is no valid session.
	StateAnonymous
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// Profile holds the minimal, non-sensitive display fields of a user. Only
// these fields are ever persisted across restarts; role and email are
// deliberately excluded and re-fetched from the backend on validation.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Credentials are the login inputs forwarded to the backend. They are never
// stored anywhere in the gateway.
type Credentials struct {
	Email    string
	Password string
}

// Session is the authenticated-identity state for one browser context.
// It is mutated only by the session manager; everyone else reads copies.
type Session struct {
	ID              uuid.UUID
	Profile         Profile
	Role            rbac.Role
	State           State
	LastValidatedAt time.Time
}

// IsAuthenticated reports whether the session carries a confirmed identity.
func (s Session) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

// Anonymous returns a reset copy of the session keeping only its ID.
func (s Session) Anonymous() Session {
	return Session{ID: s.ID, State: StateAnonymous}
}
