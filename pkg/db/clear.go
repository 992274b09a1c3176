package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearCommandEvents truncates the audit log. The schema is preserved.
func ClearCommandEvents(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing command_events", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE command_events`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Audit log cleared", clearLogPrefix))
	return nil
}
