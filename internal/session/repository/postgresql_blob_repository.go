// Package repository provides PostgreSQL and MySQL persistence for encrypted
// session blobs. Both drivers share the same semantics: upsert by storage key,
// lookups scoped to an environment, and bulk expiry cleanup.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/opsdash/dashgate/internal/database"
	apperrors "github.com/opsdash/dashgate/internal/errors"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// PostgreSQLBlobRepository implements blob persistence for PostgreSQL.
// Uses BYTEA for ciphertext and nonce with transaction support via database.GetTx().
type PostgreSQLBlobRepository struct {
	db *sql.DB
}

// Upsert inserts a blob record or replaces the existing one for its storage key.
func (p *PostgreSQLBlobRepository) Upsert(ctx context.Context, record *sessionDomain.BlobRecord) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO blob_records (storage_key, environment, ciphertext, nonce, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (storage_key) DO UPDATE
			  SET environment = EXCLUDED.environment,
				  ciphertext = EXCLUDED.ciphertext,
				  nonce = EXCLUDED.nonce,
				  expires_at = EXCLUDED.expires_at,
				  created_at = EXCLUDED.created_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.StorageKey,
		record.Environment,
		record.Ciphertext,
		record.Nonce,
		record.ExpiresAt,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert blob record")
	}
	return nil
}

// Get retrieves a blob record by its storage key.
func (p *PostgreSQLBlobRepository) Get(
	ctx context.Context,
	storageKey string,
) (*sessionDomain.BlobRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT storage_key, environment, ciphertext, nonce, expires_at, created_at
			  FROM blob_records
			  WHERE storage_key = $1`

	var record sessionDomain.BlobRecord
	err := querier.QueryRowContext(ctx, query, storageKey).Scan(
		&record.StorageKey,
		&record.Environment,
		&record.Ciphertext,
		&record.Nonce,
		&record.ExpiresAt,
		&record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sessionDomain.ErrBlobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get blob record")
	}

	return &record, nil
}

// Delete removes the blob record for a storage key. Deleting a missing key is
// not an error.
func (p *PostgreSQLBlobRepository) Delete(ctx context.Context, storageKey string) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM blob_records WHERE storage_key = $1`

	_, err := querier.ExecContext(ctx, query, storageKey)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete blob record")
	}
	return nil
}

// DeleteExpired removes all blob records whose expiry is at or before the
// given cutoff and returns the number of rows removed.
func (p *PostgreSQLBlobRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM blob_records WHERE expires_at <= $1`

	result, err := querier.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired blob records")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count deleted blob records")
	}
	return rows, nil
}

// NewPostgreSQLBlobRepository creates a new PostgreSQL blob repository.
func NewPostgreSQLBlobRepository(db *sql.DB) *PostgreSQLBlobRepository {
	return &PostgreSQLBlobRepository{db: db}
}
