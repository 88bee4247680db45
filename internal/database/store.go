package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the persistence operations of the service.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetSession returns the session of a chat, or nil, nil if there is none.
	GetSession(ctx context.Context, chatID int64) (*Session, error)

	// SaveSession inserts or replaces the session of session.ChatID.
	SaveSession(ctx context.Context, session *Session) error

	// DeleteSession removes the session of a chat. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, chatID int64) error

	// RecordGeneration appends a cascade run to the audit log.
	RecordGeneration(ctx context.Context, gen *Generation) error

	// ListGenerations returns the most recent runs of a chat, newest first.
	ListGenerations(ctx context.Context, chatID int64, limit int) ([]*Generation, error)

	// PruneGenerations deletes audit rows created before the cutoff and returns how many were removed.
	PruneGenerations(ctx context.Context, before time.Time) (int64, error)

	// RunSQLMaintenance performs VACUUM and ANALYZE.
	RunSQLMaintenance(ctx context.Context) error
}

const maxListLimit = 100

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetSession(ctx context.Context, chatID int64) (*Session, error) {
	if chatID == 0 {
		return nil, errors.New("chat_id cannot be zero")
	}

	var session Session
	query := `SELECT id, created_at, updated_at, chat_id, user_id, subject, params, draft, served_by, revision
	          FROM sessions WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &session, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No session found", "chat_id", chatID)
		return nil, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting session", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get session for chat %d: %w", chatID, err)
	}

	if session.Params == nil {
		session.Params = Params{}
	}
	return &session, nil
}

func (s *sqlxStore) SaveSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("cannot save nil session")
	}
	if session.ChatID == 0 {
		return errors.New("session must have a non-zero chat_id")
	}

	now := time.Now().UTC()
	session.UpdatedAt = now
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.Params == nil {
		session.Params = Params{}
	}

	query := `
		INSERT INTO sessions (chat_id, user_id, subject, params, draft, served_by, revision, created_at, updated_at)
		VALUES (:chat_id, :user_id, :subject, :params, :draft, :served_by, :revision, :created_at, :updated_at)
		ON CONFLICT (chat_id) DO UPDATE SET
			user_id = excluded.user_id,
			subject = excluded.subject,
			params = excluded.params,
			draft = excluded.draft,
			served_by = excluded.served_by,
			revision = excluded.revision,
			updated_at = excluded.updated_at;
	`

	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		s.logger.ErrorContext(ctx, "Error saving session", "chat_id", session.ChatID, "error", err)
		return fmt.Errorf("failed to save session for chat %d: %w", session.ChatID, err)
	}

	s.logger.DebugContext(ctx, "Session saved", "chat_id", session.ChatID, "revision", session.Revision)
	return nil
}

func (s *sqlxStore) DeleteSession(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = ?`, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting session", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to delete session for chat %d: %w", chatID, err)
	}
	s.logger.DebugContext(ctx, "Session deleted", "chat_id", chatID)
	return nil
}

func (s *sqlxStore) RecordGeneration(ctx context.Context, gen *Generation) error {
	if gen == nil {
		return errors.New("cannot record nil generation")
	}
	if gen.RequestID == "" {
		return errors.New("generation must have a request_id")
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO generations (request_id, chat_id, user_id, source, mode, outcome, served_by, provider, attempts, error, duration_ms, created_at)
		VALUES (:request_id, :chat_id, :user_id, :source, :mode, :outcome, :served_by, :provider, :attempts, :error, :duration_ms, :created_at);
	`

	result, err := s.db.NamedExecContext(ctx, query, gen)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording generation", "request_id", gen.RequestID, "error", err)
		return fmt.Errorf("failed to record generation %s: %w", gen.RequestID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // ids are positive
		gen.ID = uint(id)
	}
	return nil
}

func (s *sqlxStore) ListGenerations(ctx context.Context, chatID int64, limit int) ([]*Generation, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var gens []*Generation
	query := `
		SELECT id, created_at, request_id, chat_id, user_id, source, mode, outcome, served_by, provider, attempts, error, duration_ms
		FROM generations
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`

	if err := s.db.SelectContext(ctx, &gens, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing generations", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to list generations for chat %d: %w", chatID, err)
	}
	return gens, nil
}

func (s *sqlxStore) PruneGenerations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE created_at < ?`, before.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning generations", "before", before, "error", err)
		return 0, fmt.Errorf("failed to prune generations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned generations: %w", err)
	}

	s.logger.InfoContext(ctx, "Pruned generation records", "before", before, "deleted", affected)
	return affected, nil
}

// RunSQLMaintenance runs VACUUM (which must run outside a transaction) and ANALYZE.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance")

	for _, stmt := range []string{"VACUUM;", "ANALYZE;"} {
		_, err := s.db.ExecContext(ctx, stmt)
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			s.logger.WarnContext(ctx, "Database maintenance timed out or was cancelled", "statement", stmt, "error", err)
			return fmt.Errorf("database maintenance (%s) timed out: %w", stmt, err)
		case err != nil:
			s.logger.ErrorContext(ctx, "Database maintenance failed", "statement", stmt, "error", err)
			return fmt.Errorf("failed to execute %s: %w", stmt, err)
		}
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}
