package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/opsdash/dashgate/internal/database"
	"github.com/opsdash/dashgate/internal/session/store"
)

// RunPurgeBlobs deletes expired profile blobs from storage. The purge runs
// inside a transaction so a partial failure leaves storage untouched.
// Supports text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunPurgeBlobs(
	ctx context.Context,
	txManager database.TxManager,
	secureStore *store.SecureStore,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	logger.Info("purging expired profile blobs")

	var count int64
	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		var purgeErr error
		count, purgeErr = secureStore.PurgeExpired(ctx)
		return purgeErr
	})
	if err != nil {
		return fmt.Errorf("failed to purge expired blobs: %w", err)
	}

	if format == "json" {
		result := map[string]any{"count": count}
		if err := json.NewEncoder(writer).Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		fmt.Fprintf(writer, "Successfully deleted %d expired blob record(s)\n", count)
	}

	logger.Info("purge completed", slog.Int64("count", count))
	return nil
}
