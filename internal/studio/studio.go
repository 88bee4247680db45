// Package studio manages per-chat drafting sessions on top of the generation
// cascade. A session starts with a subject, collects context parameters and
// holds the current draft, which every further instruction refines.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/prompts"
)

var (
	// ErrEmptyInput is returned when a compose call carries neither text nor audio.
	ErrEmptyInput = errors.New("nothing to compose from")
	// ErrNoSession is returned when an operation needs a session that does not exist.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidParam is returned for malformed context parameters.
	ErrInvalidParam = errors.New("invalid context parameter")
)

const maxParamValueLen = 200

var paramKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// Generator runs one cascade. *cascade.Controller implements it.
type Generator interface {
	Generate(ctx context.Context, req cascade.Request, candidates []cascade.Candidate, progress cascade.ProgressFunc) (*cascade.Result, error)
}

// Input is one user turn: a text instruction, a voice recording, or both.
type Input struct {
	ChatID int64
	UserID int64
	Source string
	Text   string
	Audio  *cascade.Audio
}

// Run describes a completed generation.
type Run struct {
	RequestID string
	Mode      prompts.Mode
	Result    *cascade.Result
	// Session is the updated session; nil for stateless runs.
	Session *database.Session
}

// Service is the drafting session layer shared by the Telegram and HTTP surfaces.
type Service struct {
	gen        Generator
	store      database.Store
	candidates []cascade.Candidate
	messages   config.MessagesConfig
	clock      clockwork.Clock
	log        *slog.Logger

	locks sync.Map // chat ID -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used to time runs.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMessages overrides the user-facing messages.
func WithMessages(m config.MessagesConfig) Option {
	return func(s *Service) { s.messages = m }
}

// New creates the service.
func New(gen Generator, store database.Store, candidates []cascade.Candidate, log *slog.Logger, opts ...Option) (*Service, error) {
	if gen == nil {
		return nil, errors.New("studio: generator is required")
	}
	if store == nil {
		return nil, errors.New("studio: store is required")
	}
	if len(candidates) == 0 {
		return nil, cascade.ErrNoCandidates
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		gen:        gen,
		store:      store,
		candidates: cascade.Order(candidates),
		messages:   config.DefaultMessages,
		clock:      clockwork.NewRealClock(),
		log:        log.With("component", "studio"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Candidates returns the configured candidates in priority order.
func (s *Service) Candidates() []cascade.Candidate {
	return append([]cascade.Candidate(nil), s.candidates...)
}

// Start begins a new session for a chat, discarding any previous draft.
func (s *Service) Start(ctx context.Context, chatID, userID int64, subject string) (*database.Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrEmptyInput
	}

	unlock := s.lock(chatID)
	defer unlock()

	session := &database.Session{
		ChatID:  chatID,
		UserID:  userID,
		Subject: subject,
		Params:  database.Params{},
	}
	// Carry context parameters over; they describe the audience, not the draft.
	prev, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if prev != nil {
		session.ID = prev.ID
		session.CreatedAt = prev.CreatedAt
		session.Params = prev.Params.Clone()
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.log.InfoContext(ctx, "Session started", "chat_id", chatID, "user_id", userID)
	return session, nil
}

// SetContext sets one context parameter. An empty value removes it.
func (s *Service) SetContext(ctx context.Context, chatID, userID int64, key, value string) (*database.Session, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if !paramKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: key %q must be 1-32 lowercase letters, digits or underscores", ErrInvalidParam, key)
	}
	if len(value) > maxParamValueLen {
		return nil, fmt.Errorf("%w: value for %q exceeds %d characters", ErrInvalidParam, key, maxParamValueLen)
	}

	unlock := s.lock(chatID)
	defer unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		session = &database.Session{ChatID: chatID, UserID: userID, Params: database.Params{}}
	}

	if value == "" {
		delete(session.Params, key)
	} else {
		session.Params[key] = value
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Current returns the session of a chat, or ErrNoSession.
func (s *Service) Current(ctx context.Context, chatID int64) (*database.Session, error) {
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

// Reset deletes the session of a chat.
func (s *Service) Reset(ctx context.Context, chatID int64) error {
	unlock := s.lock(chatID)
	defer unlock()

	if err := s.store.DeleteSession(ctx, chatID); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	s.log.InfoContext(ctx, "Session reset", "chat_id", chatID)
	return nil
}

// History returns the most recent generation records of a chat.
func (s *Service) History(ctx context.Context, chatID int64, limit int) ([]*database.Generation, error) {
	return s.store.ListGenerations(ctx, chatID, limit)
}

// Compose creates the first draft of a session or refines the current one.
// Without a session, the input text becomes the subject. Empty input is
// accepted only to draft a session that has a subject but no draft yet. The session is only
// updated when the cascade succeeds.
func (s *Service) Compose(ctx context.Context, in Input, progress cascade.ProgressFunc) (*Run, error) {
	text := strings.TrimSpace(in.Text)
	hasAudio := in.Audio != nil && len(in.Audio.Data) > 0

	unlock := s.lock(in.ChatID)
	defer unlock()

	session, err := s.store.GetSession(ctx, in.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	// A fresh session's subject is enough for the first draft.
	if text == "" && !hasAudio && (session == nil || session.Subject == "" || session.HasDraft()) {
		return nil, ErrEmptyInput
	}

	if session == nil {
		session = &database.Session{ChatID: in.ChatID, UserID: in.UserID, Params: database.Params{}}
	}

	req := cascade.Request{
		SubjectMatter: session.Subject,
		Context:       session.Params.Clone(),
		PriorOutput:   session.Draft,
	}
	if hasAudio {
		req.Audio = in.Audio
	}
	if session.Subject == "" && !session.HasDraft() {
		session.Subject = text
		req.SubjectMatter = text
	} else {
		req.Instruction = text
	}

	run, err := s.generate(ctx, in, req, progress)
	if err != nil {
		return nil, err
	}

	if session.Subject == "" {
		session.Subject = prompts.DefaultTopic
	}
	session.UserID = in.UserID
	session.Draft = run.Result.Text
	session.ServedBy = run.Result.ServedBy
	session.Revision++
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	run.Session = session
	return run, nil
}

// Generate runs a stateless generation, e.g. for the HTTP API. The run is
// still recorded in the audit log.
func (s *Service) Generate(ctx context.Context, in Input, req cascade.Request, progress cascade.ProgressFunc) (*Run, error) {
	return s.generate(ctx, in, req, progress)
}

func (s *Service) generate(ctx context.Context, in Input, req cascade.Request, progress cascade.ProgressFunc) (*Run, error) {
	requestID := uuid.NewString()
	mode := prompts.ModeOf(req)
	log := s.log.With("request_id", requestID, "chat_id", in.ChatID, "mode", string(mode))

	log.InfoContext(ctx, "Generation started", "source", in.Source, "audio", req.HasAudio())
	started := s.clock.Now()
	res, err := s.gen.Generate(ctx, req, s.candidates, progress)
	elapsed := s.clock.Since(started)

	gen := &database.Generation{
		RequestID:  requestID,
		ChatID:     in.ChatID,
		UserID:     in.UserID,
		Source:     in.Source,
		Mode:       string(mode),
		DurationMS: elapsed.Milliseconds(),
	}
	switch {
	case err == nil:
		gen.Outcome = database.OutcomeSuccess
		gen.ServedBy = res.ServedBy
		gen.Provider = res.Provider.String()
		gen.Attempts = res.Attempts
	case errors.Is(err, cascade.ErrCascadeExhausted):
		gen.Outcome = database.OutcomeExhausted
		gen.Error = err.Error()
		var exhausted *cascade.ExhaustedError
		if errors.As(err, &exhausted) {
			gen.Attempts = exhausted.Attempts
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		gen.Outcome = database.OutcomeCancelled
		gen.Error = err.Error()
	default:
		gen.Outcome = database.OutcomeError
		gen.Error = err.Error()
	}

	// Audit with a detached context so cancelled runs are still recorded.
	if recErr := s.store.RecordGeneration(context.WithoutCancel(ctx), gen); recErr != nil {
		log.WarnContext(ctx, "Failed to record generation", "error", recErr)
	}

	if err != nil {
		log.ErrorContext(ctx, "Generation failed", "outcome", gen.Outcome, "error", err, "duration_ms", gen.DurationMS)
		return nil, fmt.Errorf("generation %s failed: %w", requestID, err)
	}

	log.InfoContext(ctx, "Generation completed",
		"served_by", res.ServedBy, "provider", res.Provider, "attempts", res.Attempts, "duration_ms", gen.DurationMS)
	return &Run{RequestID: requestID, Mode: mode, Result: res}, nil
}

// UserMessage maps an error from this package to the message shown to users.
// Underlying provider errors are never exposed.
func (s *Service) UserMessage(err error) string {
	switch {
	case errors.Is(err, cascade.ErrCascadeExhausted):
		return s.messages.ServiceBusy
	case errors.Is(err, ErrNoSession):
		return s.messages.NoDraft
	case errors.Is(err, ErrEmptyInput), errors.Is(err, cascade.ErrInvalidRequest):
		return s.messages.ProvideSubject
	case errors.Is(err, ErrInvalidParam):
		return s.messages.ContextUsage
	default:
		return s.messages.GeneralError
	}
}

func (s *Service) lock(chatID int64) func() {
	v, _ := s.locks.LoadOrStore(chatID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
