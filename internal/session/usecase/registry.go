package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ManagerFactory builds a manager for a browser session identifier.
type ManagerFactory func(ctx context.Context, id uuid.UUID) *Manager

// Registry holds one Manager per browser session with automatic cleanup of
// idle managers. Lookups and creation are safe for concurrent use.
type Registry struct {
	managers sync.Map // map[uuid.UUID]*Manager
	factory  ManagerFactory
	idleTTL  time.Duration
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry. Managers untouched for idleTTL are removed
// by the sweep loop; their persisted profiles stay in storage and are
// rehydrated when the browser session returns.
func NewRegistry(factory ManagerFactory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// GetOrCreate returns the manager for a session identifier, creating and
// rehydrating it on first access.
func (r *Registry) GetOrCreate(ctx context.Context, id uuid.UUID) *Manager {
	if val, ok := r.managers.Load(id); ok {
		return val.(*Manager)
	}

	manager := r.factory(ctx, id)
	if existing, loaded := r.managers.LoadOrStore(id, manager); loaded {
		// Another request created the manager first; use theirs.
		return existing.(*Manager)
	}
	return manager
}

// Get returns the manager for a session identifier, if present.
func (r *Registry) Get(id uuid.UUID) (*Manager, bool) {
	val, ok := r.managers.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Manager), true
}

// Remove drops the manager for a session identifier.
func (r *Registry) Remove(id uuid.UUID) {
	r.managers.Delete(id)
}

// Start launches the sweep loop. Call Stop to terminate it.
func (r *Registry) Start(sweepInterval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit. Safe to call
// multiple times.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}

// sweep removes managers that have been idle longer than the TTL.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleTTL)
	var removed int

	r.managers.Range(func(key, value any) bool {
		manager := value.(*Manager)
		if manager.LastAccess().Before(cutoff) {
			r.managers.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		r.logger.Debug("swept idle session managers", "removed", removed)
	}
}
