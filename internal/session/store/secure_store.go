// Package store implements the two-tier secure store for session state.
//
// The memory tier holds the backend credential and the full profile for the
// lifetime of the process; it is never written to disk. The persisted tier
// holds an encrypted, reduced profile used to resume a session after a
// restart. Reads from the persisted tier fail open: a missing, expired,
// tampered, or foreign-environment record behaves like an empty store, never
// like an error.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
)

// BlobRepository defines the interface for encrypted blob persistence.
type BlobRepository interface {
	Upsert(ctx context.Context, record *sessionDomain.BlobRecord) error
	Get(ctx context.Context, storageKey string) (*sessionDomain.BlobRecord, error)
	Delete(ctx context.Context, storageKey string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// persistedProfile is the reduced profile written to the persisted tier.
// The credential and role are deliberately excluded: the credential lives
// only in memory, and the role must be re-derived from the backend on resume.
type persistedProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type memoryEntry struct {
	profile    sessionDomain.Profile
	credential string
}

// SecureStore keeps session identity in a memory tier and an encrypted
// persisted tier. Safe for concurrent use.
type SecureStore struct {
	repo        BlobRepository
	cipher      service.BlobCipher
	environment string
	sensitive   bool
	ttl         time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	memory map[string]memoryEntry
}

// NewSecureStore creates a secure store bound to an environment. Records
// written by another environment are invisible to this store. sensitive
// marks the environment as production-sensitive: identity blobs in such an
// environment never outlive a Clear.
func NewSecureStore(
	repo BlobRepository,
	cipher service.BlobCipher,
	environment string,
	sensitive bool,
	ttl time.Duration,
	logger *slog.Logger,
) *SecureStore {
	return &SecureStore{
		repo:        repo,
		cipher:      cipher,
		environment: environment,
		sensitive:   sensitive,
		ttl:         ttl,
		logger:      logger,
		memory:      make(map[string]memoryEntry),
	}
}

// SaveIdentity stores the identity in the memory tier and writes the reduced
// profile to the persisted tier. Persistence failures are logged and
// absorbed: the memory tier is authoritative for the current process.
func (s *SecureStore) SaveIdentity(ctx context.Context, storageKey string, identity *service.Identity) {
	s.mu.Lock()
	s.memory[storageKey] = memoryEntry{
		profile:    identity.Profile,
		credential: identity.Credential,
	}
	s.mu.Unlock()

	plaintext, err := json.Marshal(persistedProfile{
		ID:          identity.Profile.ID,
		DisplayName: identity.Profile.DisplayName,
	})
	if err != nil {
		s.logger.Warn("failed to marshal profile for persistence", "error", err)
		return
	}

	ciphertext, nonce, err := s.cipher.Encrypt(plaintext, storageKey)
	if err != nil {
		s.logger.Warn("failed to encrypt profile blob", "error", err)
		return
	}

	now := time.Now().UTC()
	record := &sessionDomain.BlobRecord{
		StorageKey:  storageKey,
		Environment: s.environment,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		s.logger.Warn("failed to persist profile blob", "storage_key", storageKey, "error", err)
	}
}

// Identity returns the in-memory identity for a storage key, if present.
func (s *SecureStore) Identity(storageKey string) (*service.Identity, bool) {
	s.mu.RLock()
	entry, ok := s.memory[storageKey]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &service.Identity{Profile: entry.profile, Credential: entry.credential}, true
}

// Credential returns the backend credential for a storage key, if present.
// The credential never leaves the memory tier.
func (s *SecureStore) Credential(storageKey string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.memory[storageKey]
	s.mu.RUnlock()
	if !ok || entry.credential == "" {
		return "", false
	}
	return entry.credential, true
}

// LoadProfile reads the persisted profile for a storage key. Returns false
// when no usable record exists. Expired, tampered, or foreign-environment
// records are removed and reported as absent.
func (s *SecureStore) LoadProfile(ctx context.Context, storageKey string) (*sessionDomain.Profile, bool) {
	record, err := s.repo.Get(ctx, storageKey)
	if err != nil {
		if !apperrors.Is(err, sessionDomain.ErrBlobNotFound) {
			s.logger.Warn("failed to read profile blob", "storage_key", storageKey, "error", err)
		}
		return nil, false
	}

	if record.Environment != s.environment {
		s.logger.Warn("discarding profile blob from another environment",
			"storage_key", storageKey, "environment", record.Environment)
		s.removeRecord(ctx, storageKey)
		return nil, false
	}

	if record.Expired(time.Now().UTC()) {
		s.removeRecord(ctx, storageKey)
		return nil, false
	}

	plaintext, err := s.cipher.Decrypt(record.Ciphertext, record.Nonce, storageKey)
	if err != nil {
		s.logger.Warn("discarding undecryptable profile blob", "storage_key", storageKey, "error", err)
		s.removeRecord(ctx, storageKey)
		return nil, false
	}

	var persisted persistedProfile
	if err := json.Unmarshal(plaintext, &persisted); err != nil {
		s.logger.Warn("discarding malformed profile blob", "storage_key", storageKey, "error", err)
		s.removeRecord(ctx, storageKey)
		return nil, false
	}
	if persisted.ID == "" {
		s.removeRecord(ctx, storageKey)
		return nil, false
	}

	return &sessionDomain.Profile{ID: persisted.ID, DisplayName: persisted.DisplayName}, true
}

// Clear removes the memory entry and, in a production-sensitive environment,
// the persisted record for a storage key. Non-sensitive environments keep
// the persisted display profile across logouts so a development session
// resumes with the last known identity; the credential is always dropped.
// Clearing an absent key is a no-op; persistence failures are absorbed.
func (s *SecureStore) Clear(ctx context.Context, storageKey string) {
	s.mu.Lock()
	delete(s.memory, storageKey)
	s.mu.Unlock()

	if s.sensitive {
		s.removeRecord(ctx, storageKey)
	}
}

// PurgeExpired removes all expired records from the persisted tier and
// returns the number of records removed.
func (s *SecureStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now().UTC())
}

func (s *SecureStore) removeRecord(ctx context.Context, storageKey string) {
	if err := s.repo.Delete(ctx, storageKey); err != nil {
		s.logger.Warn("failed to delete profile blob", "storage_key", storageKey, "error", err)
	}
}
