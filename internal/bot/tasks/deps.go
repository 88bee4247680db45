// Package tasks implements the scheduled upkeep jobs of the drafting service.
package tasks

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
)

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
	// Clock defaults to the real clock when nil.
	Clock clockwork.Clock
}

func (d TaskDeps) clock() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}
