package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
	"github.com/opsdash/dashgate/internal/session/store"
)

const storageKeyPrefix = "auth:"

// Manager owns the session state machine for one browser session.
//
// Causality is tracked with a sequence counter: every completed login or
// logout bumps it, and a validation result is discarded when the counter
// moved while the backend call was in flight. A login that completes during
// a slow validation therefore wins, and a logout is never undone by a stale
// validation response.
type Manager struct {
	id         uuid.UUID
	storageKey string
	backend    service.Backend
	store      *store.SecureStore
	timeout    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	session sessionDomain.Session
	seq     uint64

	checkGroup singleflight.Group
	lastAccess atomic.Int64
}

// NewManager creates a manager in the Unknown state. If the persisted tier
// holds a profile for this session, it is used to prefill the display
// identity; the state stays Unknown until a validation resolves it.
func NewManager(
	ctx context.Context,
	id uuid.UUID,
	backend service.Backend,
	secureStore *store.SecureStore,
	timeout time.Duration,
	logger *slog.Logger,
) *Manager {
	m := &Manager{
		id:         id,
		storageKey: storageKeyPrefix + id.String(),
		backend:    backend,
		store:      secureStore,
		timeout:    timeout,
		logger:     logger.With("session_id", id.String()),
	}
	m.session = sessionDomain.Session{ID: id, State: sessionDomain.StateUnknown}
	m.touch()

	if profile, ok := secureStore.LoadProfile(ctx, m.storageKey); ok {
		m.session.Profile = *profile
	}
	return m
}

// Login exchanges credentials for an authenticated session.
func (m *Manager) Login(ctx context.Context, creds sessionDomain.Credentials) (*sessionDomain.Session, error) {
	m.touch()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	identity, err := m.backend.Login(callCtx, creds)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnavailable) {
			m.logger.Warn("login failed: backend unavailable", "error", err)
		} else {
			m.logger.Info("login rejected", "error", err)
		}

		m.mu.Lock()
		m.seq++
		m.session = m.session.Anonymous()
		m.mu.Unlock()

		m.store.Clear(ctx, m.storageKey)
		return nil, err
	}

	m.store.SaveIdentity(ctx, m.storageKey, identity)

	m.mu.Lock()
	m.seq++
	m.session.Profile = identity.Profile
	m.session.Role = identity.Role
	m.session.State = sessionDomain.StateAuthenticated
	m.session.LastValidatedAt = time.Now().UTC()
	snapshot := m.session
	m.mu.Unlock()

	m.logger.Info("login succeeded", "user_id", identity.Profile.ID, "role", string(identity.Role))
	return &snapshot, nil
}

// CheckAuth validates the session against the backend. Concurrent calls
// share a single backend request.
func (m *Manager) CheckAuth(ctx context.Context) (*sessionDomain.Session, error) {
	m.touch()

	result, err, _ := m.checkGroup.Do("check_auth", func() (any, error) {
		return m.checkAuth(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sessionDomain.Session), nil
}

func (m *Manager) checkAuth(ctx context.Context) (*sessionDomain.Session, error) {
	credential, ok := m.store.Credential(m.storageKey)
	if !ok {
		// No credential in memory: the process never saw a login, or the
		// session was cleared. Resolve immediately without a backend call.
		m.mu.Lock()
		m.session = m.session.Anonymous()
		snapshot := m.session
		m.mu.Unlock()
		return &snapshot, nil
	}

	m.mu.Lock()
	if m.session.State == sessionDomain.StateUnknown {
		m.session.State = sessionDomain.StateChecking
	}
	startSeq := m.seq
	m.mu.Unlock()

	// The outcome is shared by every concurrent caller through the
	// singleflight group, so no single caller's cancellation may decide
	// it. An aborted request must leave the session exactly as it was,
	// not demote it to Anonymous. Detach from the request context and
	// rely on the fixed backend timeout instead.
	detached := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(detached, m.timeout)
	defer cancel()

	identity, err := m.backend.Profile(callCtx, credential)

	m.mu.Lock()
	if m.seq != startSeq {
		// A login or logout completed while the validation was in flight.
		// Its result is newer; discard ours.
		snapshot := m.session
		m.mu.Unlock()
		return &snapshot, nil
	}

	if err != nil {
		m.session = m.session.Anonymous()
		snapshot := m.session
		m.mu.Unlock()

		if apperrors.Is(err, apperrors.ErrUnavailable) {
			m.logger.Warn("validation failed: backend unavailable", "error", err)
		} else {
			m.logger.Info("session no longer valid", "error", err)
		}
		m.store.Clear(detached, m.storageKey)
		return &snapshot, nil
	}

	m.session.Profile = identity.Profile
	m.session.Role = identity.Role
	m.session.State = sessionDomain.StateAuthenticated
	m.session.LastValidatedAt = time.Now().UTC()
	snapshot := m.session
	// Persist before releasing the lock so a concurrent logout cannot be
	// overwritten by this save.
	m.store.SaveIdentity(detached, m.storageKey, identity)
	m.mu.Unlock()

	return &snapshot, nil
}

// Logout clears local state unconditionally. The backend call is
// best-effort: its failure is logged, never surfaced.
func (m *Manager) Logout(ctx context.Context) error {
	m.touch()

	m.mu.Lock()
	m.seq++
	m.mu.Unlock()

	credential, hasCredential := m.store.Credential(m.storageKey)

	// Local state is cleared no matter what the backend says.
	defer func() {
		m.store.Clear(ctx, m.storageKey)
		m.mu.Lock()
		m.seq++
		m.session = m.session.Anonymous()
		m.mu.Unlock()
		m.logger.Info("logout completed")
	}()

	if !hasCredential {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.backend.Logout(callCtx, credential); err != nil {
		m.logger.Warn("backend logout failed, local state cleared anyway", "error", err)
	}
	return nil
}

// State returns a snapshot of the current session.
func (m *Manager) State() sessionDomain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Sessions lists the user's active backend sessions.
func (m *Manager) Sessions(ctx context.Context, offset, limit int) ([]service.RemoteSession, error) {
	m.touch()

	credential, ok := m.store.Credential(m.storageKey)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "no active session")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return m.backend.Sessions(callCtx, credential, offset, limit)
}

// RevokeAll invalidates every backend session of the user and clears local
// state. Unlike Logout, the backend call must succeed: revoking other
// sessions is the whole point.
func (m *Manager) RevokeAll(ctx context.Context) error {
	m.touch()

	credential, ok := m.store.Credential(m.storageKey)
	if !ok {
		return apperrors.Wrap(apperrors.ErrUnauthorized, "no active session")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.backend.RevokeAll(callCtx, credential); err != nil {
		return err
	}

	m.store.Clear(ctx, m.storageKey)
	m.mu.Lock()
	m.seq++
	m.session = m.session.Anonymous()
	m.mu.Unlock()
	return nil
}

// ID returns the browser session identifier.
func (m *Manager) ID() uuid.UUID {
	return m.id
}

// LastAccess returns the time of the last operation on this manager.
func (m *Manager) LastAccess() time.Time {
	return time.Unix(0, m.lastAccess.Load())
}

func (m *Manager) touch() {
	m.lastAccess.Store(time.Now().UnixNano())
}
