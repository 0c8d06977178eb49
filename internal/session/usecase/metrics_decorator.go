package usecase

import (
	"context"
	"time"

	"github.com/opsdash/dashgate/internal/metrics"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
)

// sessionUseCaseWithMetrics decorates SessionUseCase with metrics instrumentation.
type sessionUseCaseWithMetrics struct {
	next    SessionUseCase
	metrics metrics.BusinessMetrics
}

// NewSessionUseCaseWithMetrics wraps a SessionUseCase with metrics recording.
func NewSessionUseCaseWithMetrics(useCase SessionUseCase, m metrics.BusinessMetrics) SessionUseCase {
	return &sessionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Login records metrics for login operations.
func (s *sessionUseCaseWithMetrics) Login(
	ctx context.Context,
	creds sessionDomain.Credentials,
) (*sessionDomain.Session, error) {
	start := time.Now()
	session, err := s.next.Login(ctx, creds)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", "login", status)
	s.metrics.RecordDuration(ctx, "session", "login", time.Since(start), status)

	return session, err
}

// CheckAuth records metrics for validation operations.
func (s *sessionUseCaseWithMetrics) CheckAuth(ctx context.Context) (*sessionDomain.Session, error) {
	start := time.Now()
	session, err := s.next.CheckAuth(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", "check_auth", status)
	s.metrics.RecordDuration(ctx, "session", "check_auth", time.Since(start), status)

	return session, err
}

// Logout records metrics for logout operations.
func (s *sessionUseCaseWithMetrics) Logout(ctx context.Context) error {
	start := time.Now()
	err := s.next.Logout(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", "logout", status)
	s.metrics.RecordDuration(ctx, "session", "logout", time.Since(start), status)

	return err
}

// State passes through without metrics; it is a memory read.
func (s *sessionUseCaseWithMetrics) State() sessionDomain.Session {
	return s.next.State()
}

// Sessions records metrics for session listing operations.
func (s *sessionUseCaseWithMetrics) Sessions(
	ctx context.Context,
	offset, limit int,
) ([]service.RemoteSession, error) {
	start := time.Now()
	sessions, err := s.next.Sessions(ctx, offset, limit)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", "sessions_list", status)
	s.metrics.RecordDuration(ctx, "session", "sessions_list", time.Since(start), status)

	return sessions, err
}

// RevokeAll records metrics for bulk revocation operations.
func (s *sessionUseCaseWithMetrics) RevokeAll(ctx context.Context) error {
	start := time.Now()
	err := s.next.RevokeAll(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", "revoke_all", status)
	s.metrics.RecordDuration(ctx, "session", "revoke_all", time.Since(start), status)

	return err
}
