package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// prefPrefix namespaces preference records so that clearing session state
// never touches them.
const prefPrefix = "pref:"

// preferenceRetention is refreshed on every write, so actively used
// preferences never expire.
const preferenceRetention = 365 * 24 * time.Hour

// PreferenceStore persists user preferences as plain JSON. Preferences are
// not sensitive and survive logout.
type PreferenceStore struct {
	repo   BlobRepository
	logger *slog.Logger
}

// NewPreferenceStore creates a preference store backed by the blob repository.
func NewPreferenceStore(repo BlobRepository, logger *slog.Logger) *PreferenceStore {
	return &PreferenceStore{repo: repo, logger: logger}
}

// Set stores a preference value under its name.
func (p *PreferenceStore) Set(ctx context.Context, name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal preference")
	}

	now := time.Now().UTC()
	record := &sessionDomain.BlobRecord{
		StorageKey:  prefPrefix + name,
		Environment: "preferences",
		Ciphertext:  payload,
		Nonce:       []byte{},
		ExpiresAt:   now.Add(preferenceRetention),
		CreatedAt:   now,
	}
	if err := p.repo.Upsert(ctx, record); err != nil {
		return apperrors.Wrap(err, "failed to persist preference")
	}
	return nil
}

// Get reads a preference into out. Returns false when the preference does
// not exist or cannot be decoded; malformed records are removed.
func (p *PreferenceStore) Get(ctx context.Context, name string, out any) bool {
	record, err := p.repo.Get(ctx, prefPrefix+name)
	if err != nil {
		if !apperrors.Is(err, sessionDomain.ErrBlobNotFound) {
			p.logger.Warn("failed to read preference", "name", name, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(record.Ciphertext, out); err != nil {
		p.logger.Warn("discarding malformed preference", "name", name, "error", err)
		if delErr := p.repo.Delete(ctx, prefPrefix+name); delErr != nil {
			p.logger.Warn("failed to delete malformed preference", "name", name, "error", delErr)
		}
		return false
	}
	return true
}

// Delete removes a preference. Deleting a missing preference is a no-op.
func (p *PreferenceStore) Delete(ctx context.Context, name string) error {
	if err := p.repo.Delete(ctx, prefPrefix+name); err != nil {
		return apperrors.Wrap(err, "failed to delete preference")
	}
	return nil
}
