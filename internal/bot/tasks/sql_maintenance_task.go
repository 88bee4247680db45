package tasks

import (
	"context"
	"fmt"
)

// newSQLMaintenanceTask vacuums and analyzes the database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", SQLMaintenance)
	clock := deps.clock()

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting SQL maintenance")
		started := clock.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance failed", "error", err, "duration", clock.Since(started))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "SQL maintenance completed", "duration", clock.Since(started))
		return nil
	}
}
