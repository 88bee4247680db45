package tasks

import (
	"context"
	"fmt"
)

// newGenerationPruneTask deletes audit rows older than the configured retention.
func newGenerationPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", GenerationPrune)
	clock := deps.clock()

	return func(ctx context.Context) error {
		retention := deps.Config.Database.GenerationRetention
		if retention <= 0 {
			log.WarnContext(ctx, "Generation retention not set, skipping prune")
			return nil
		}

		cutoff := clock.Now().Add(-retention)
		deleted, err := deps.Store.PruneGenerations(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune generations older than %s: %w", cutoff.Format("2006-01-02T15:04:05Z07:00"), err)
		}

		log.InfoContext(ctx, "Pruned generation audit log", "deleted", deleted, "cutoff", cutoff)
		return nil
	}
}
