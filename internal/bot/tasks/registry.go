package tasks

import (
	"context"
)

// Task names, matching the keys of the scheduler.tasks config section.
const (
	SQLMaintenance  = "sql_maintenance"
	GenerationPrune = "generation_prune"
)

// ScheduledTaskFunc is the signature of every scheduled task. Tasks must
// respect ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every known task keyed by its config name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		SQLMaintenance:  newSQLMaintenanceTask(deps),
		GenerationPrune: newGenerationPruneTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
