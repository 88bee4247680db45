package tasks

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
)

func newDeps(t *testing.T, clock clockwork.Clock) TaskDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return TaskDeps{
		Logger: log,
		Store:  database.NewStore(db, log),
		Config: config.Default(),
		Clock:  clock,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	tasks := RegisterAllTasks(newDeps(t, nil))
	assert.Len(t, tasks, 2)
	assert.Contains(t, tasks, SQLMaintenance)
	assert.Contains(t, tasks, GenerationPrune)

	for name := range config.DefaultTasks {
		assert.Contains(t, tasks, name, "default config schedules a registered task")
	}
}

func TestSQLMaintenanceTask(t *testing.T) {
	task := newSQLMaintenanceTask(newDeps(t, nil))
	require.NoError(t, task(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, task(ctx))
}

func TestGenerationPruneTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	deps := newDeps(t, clockwork.NewFakeClockAt(now))
	deps.Config.Database.GenerationRetention = 7 * 24 * time.Hour

	for i, age := range []time.Duration{time.Hour, 6 * 24 * time.Hour, 8 * 24 * time.Hour, 30 * 24 * time.Hour} {
		require.NoError(t, deps.Store.RecordGeneration(ctx, &database.Generation{
			CreatedAt: now.Add(-age),
			RequestID: "req-" + string(rune('a'+i)),
			ChatID:    1,
			Source:    database.SourceTelegram,
			Mode:      "create",
			Outcome:   database.OutcomeSuccess,
		}))
	}

	require.NoError(t, newGenerationPruneTask(deps)(ctx))

	left, err := deps.Store.ListGenerations(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "req-a", left[0].RequestID)
	assert.Equal(t, "req-b", left[1].RequestID)
}

func TestGenerationPruneTask_NoRetention(t *testing.T) {
	deps := newDeps(t, nil)
	deps.Config.Database.GenerationRetention = 0
	assert.NoError(t, newGenerationPruneTask(deps)(context.Background()))
}
