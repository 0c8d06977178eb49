package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/opsdash/dashgate/internal/database"
	apperrors "github.com/opsdash/dashgate/internal/errors"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// MySQLBlobRepository implements blob persistence for MySQL.
// Uses BLOB columns for binary data with transaction support via database.GetTx().
type MySQLBlobRepository struct {
	db *sql.DB
}

// Upsert inserts a blob record or replaces the existing one for its storage key.
func (m *MySQLBlobRepository) Upsert(ctx context.Context, record *sessionDomain.BlobRecord) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO blob_records (storage_key, environment, ciphertext, nonce, expires_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  environment = VALUES(environment),
			  ciphertext = VALUES(ciphertext),
			  nonce = VALUES(nonce),
			  expires_at = VALUES(expires_at),
			  created_at = VALUES(created_at)`

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
func (m *MySQLBlobRepository) Get(
	ctx context.Context,
	storageKey string,
) (*sessionDomain.BlobRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT storage_key, environment, ciphertext, nonce, expires_at, created_at
			  FROM blob_records
			  WHERE storage_key = ?`

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
func (m *MySQLBlobRepository) Delete(ctx context.Context, storageKey string) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM blob_records WHERE storage_key = ?`

	_, err := querier.ExecContext(ctx, query, storageKey)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete blob record")
	}
	return nil
}

// DeleteExpired removes all blob records whose expiry is at or before the
// given cutoff and returns the number of rows removed.
func (m *MySQLBlobRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM blob_records WHERE expires_at <= ?`

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

// NewMySQLBlobRepository creates a new MySQL blob repository.
func NewMySQLBlobRepository(db *sql.DB) *MySQLBlobRepository {
	return &MySQLBlobRepository{db: db}
}
