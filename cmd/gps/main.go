// Package main is the entrypoint of the Rhythm Logic GPS drafting service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/rhythmlogic/gps/internal/bot"
	"github.com/rhythmlogic/gps/internal/bot/handlers"
	"github.com/rhythmlogic/gps/internal/bot/tasks"
	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/httpapi"
	"github.com/rhythmlogic/gps/internal/logger"
	"github.com/rhythmlogic/gps/internal/metrics"
	"github.com/rhythmlogic/gps/internal/providers"
	_ "github.com/rhythmlogic/gps/internal/providers/gemini"
	_ "github.com/rhythmlogic/gps/internal/providers/openrouter"
	"github.com/rhythmlogic/gps/internal/studio"
	"github.com/rhythmlogic/gps/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Configuration loaded", "config", cfg)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	m := metrics.New()
	controller, err := newController(ctx, cfg, m, log)
	if err != nil {
		log.Error("Failed to set up generation cascade", "error", err)
		return 1
	}

	svc, err := studio.New(controller, store, cfg.CascadeCandidates(), log, studio.WithMessages(cfg.Messages))
	if err != nil {
		log.Error("Failed to create studio service", "error", err)
		return 1
	}

	var tg *tgbot.Bot
	if cfg.Telegram.Enabled {
		tg, err = newTelegram(ctx, cfg, svc, log)
		if err != nil {
			log.Error("Failed to set up Telegram", "error", err)
			return 1
		}
	}

	var httpServer bot.Runner
	if cfg.HTTP.Enabled {
		httpServer = httpapi.NewServer(cfg.HTTP, svc, store, m, log, httpapi.WithRequestTimeout(cfg.Cascade.RequestTimeout))
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	runErr := bot.NewBot(log, tg, sched, httpServer).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully")
	return 0
}

// newController builds the cascade from the configured provider backends.
func newController(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*cascade.Controller, error) {
	primary, err := providers.New(ctx, cfg.Cascade.Primary.Backend, cfg.Cascade.Primary, log)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}

	opts := []cascade.Option{
		cascade.WithPolicy(cfg.RetryPolicy()),
		cascade.WithObserver(m),
		cascade.WithLogger(log),
	}
	if cfg.Cascade.Secondary.Configured() {
		secondary, err := providers.New(ctx, cfg.Cascade.Secondary.Backend, cfg.Cascade.Secondary, log)
		if err != nil {
			return nil, fmt.Errorf("secondary provider: %w", err)
		}
		opts = append(opts, cascade.WithSecondary(secondary))
	} else {
		log.Warn("No secondary provider configured, secondary candidates will be skipped")
	}

	return cascade.New(primary, opts...)
}

// newTelegram creates the Telegram client with every handler registered.
func newTelegram(ctx context.Context, cfg *config.Config, svc *studio.Service, log *slog.Logger) (*tgbot.Bot, error) {
	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Studio: svc,
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.AllowedUsers(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewComposeHandler(hDeps)),
	)
	if err != nil {
		return nil, err
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	cmds := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmds); err != nil {
		return nil, err
	}
	if err := telegram.PublishCommands(ctx, tg, cmds); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}
	return tg, nil
}
