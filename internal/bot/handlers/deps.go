package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/studio"
)

// Studio is the session service the handlers drive. *studio.Service implements it.
type Studio interface {
	Start(ctx context.Context, chatID, userID int64, subject string) (*database.Session, error)
	SetContext(ctx context.Context, chatID, userID int64, key, value string) (*database.Session, error)
	Current(ctx context.Context, chatID int64) (*database.Session, error)
	Reset(ctx context.Context, chatID int64) error
	History(ctx context.Context, chatID int64, limit int) ([]*database.Generation, error)
	Compose(ctx context.Context, in studio.Input, progress cascade.ProgressFunc) (*studio.Run, error)
	Candidates() []cascade.Candidate
	UserMessage(err error) string
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Studio Studio
	// HTTPClient downloads voice files; http.DefaultClient when nil.
	HTTPClient *http.Client
}

func (d HandlerDeps) httpClient() *http.Client {
	if d.HTTPClient == nil {
		return http.DefaultClient
	}
	return d.HTTPClient
}
