package studio_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/prompts"
	"github.com/rhythmlogic/gps/internal/studio"
)

const chatID int64 = 100

var testCandidates = []cascade.Candidate{
	{ID: "model-b", Provider: cascade.Primary, Priority: 2},
	{ID: "model-a", Provider: cascade.Primary, Priority: 1},
}

// fakeGenerator records requests and replies from a queue of results.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []cascade.Request
	replies  []func(cascade.Request) (*cascade.Result, error)
}

func (f *fakeGenerator) reply(fn func(cascade.Request) (*cascade.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fn)
}

func (f *fakeGenerator) Generate(ctx context.Context, req cascade.Request, candidates []cascade.Candidate, progress cascade.ProgressFunc) (*cascade.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if progress != nil {
		progress(ctx, cascade.Progress{Candidate: candidates[0], Attempt: 1, MaxAttempts: 3})
	}
	if len(f.replies) == 0 {
		return &cascade.Result{Text: "draft for " + req.SubjectMatter, ServedBy: candidates[0].ID, Attempts: 1}, nil
	}
	fn := f.replies[0]
	f.replies = f.replies[1:]
	return fn(req)
}

func (f *fakeGenerator) last() cascade.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newService(t *testing.T) (*studio.Service, *fakeGenerator, database.Store) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	gen := &fakeGenerator{}
	svc, err := studio.New(gen, store, testCandidates, nil)
	require.NoError(t, err)
	return svc, gen, store
}

func TestCompose_CreatesThenRefines(t *testing.T) {
	ctx := context.Background()
	svc, gen, store := newService(t)

	var progressed int
	run, err := svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Source: database.SourceTelegram, Text: "Fractions"},
		func(context.Context, cascade.Progress) { progressed++ })
	require.NoError(t, err)
	assert.Equal(t, 1, progressed)
	assert.Equal(t, prompts.ModeCreate, run.Mode)
	assert.Equal(t, "draft for Fractions", run.Session.Draft)
	assert.Equal(t, "model-a", run.Session.ServedBy, "candidates are passed in priority order")
	assert.Equal(t, 1, run.Session.Revision)
	assert.NotEmpty(t, run.RequestID)

	req := gen.last()
	assert.Equal(t, "Fractions", req.SubjectMatter)
	assert.Empty(t, req.Instruction)
	assert.False(t, req.Refining())

	gen.reply(func(req cascade.Request) (*cascade.Result, error) {
		return &cascade.Result{Text: "harder " + req.PriorOutput, ServedBy: "model-b", Attempts: 2}, nil
	})
	run, err = svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Source: database.SourceTelegram, Text: "make the quiz harder"}, nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.ModeRefine, run.Mode)
	assert.Equal(t, 2, run.Session.Revision)
	assert.Equal(t, "harder draft for Fractions", run.Session.Draft)

	req = gen.last()
	assert.Equal(t, "draft for Fractions", req.PriorOutput)
	assert.Equal(t, "make the quiz harder", req.Instruction)
	assert.Equal(t, "Fractions", req.SubjectMatter)

	history, err := svc.History(ctx, chatID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, database.OutcomeSuccess, history[0].Outcome)
	assert.Equal(t, "refine", history[0].Mode)
	assert.Equal(t, 2, history[0].Attempts)

	stored, err := store.GetSession(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Revision)
}

func TestCompose_ExhaustedKeepsSessionAndMapsToServiceBusy(t *testing.T) {
	ctx := context.Background()
	svc, gen, _ := newService(t)

	_, err := svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Text: "Soil"}, nil)
	require.NoError(t, err)

	gen.reply(func(cascade.Request) (*cascade.Result, error) {
		return nil, &cascade.ExhaustedError{Summary: "all 2 candidates failed after 4 attempts", Attempts: 4, Last: errors.New("401 secret-key-xyz")}
	})
	_, err = svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Text: "shorter"}, nil)
	require.ErrorIs(t, err, cascade.ErrCascadeExhausted)

	msg := svc.UserMessage(err)
	assert.Equal(t, config.DefaultMessages.ServiceBusy, msg)
	assert.NotContains(t, msg, "secret-key-xyz")

	session, err := svc.Current(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Revision, "failed runs leave the draft untouched")
	assert.Equal(t, "draft for Soil", session.Draft)

	history, err := svc.History(ctx, chatID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, database.OutcomeExhausted, history[0].Outcome)
	assert.Equal(t, 4, history[0].Attempts)
}

func TestStart_KeepsParamsAndDropsDraft(t *testing.T) {
	ctx := context.Background()
	svc, gen, _ := newService(t)

	_, err := svc.SetContext(ctx, chatID, 1, "Region", "Lagos, Nigeria")
	require.NoError(t, err)
	_, err = svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Text: "Markets"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"region": "Lagos, Nigeria"}, gen.last().Context)

	session, err := svc.Start(ctx, chatID, 1, "Photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis", session.Subject)
	assert.False(t, session.HasDraft())
	assert.Equal(t, "Lagos, Nigeria", session.Params["region"])

	_, err = svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Text: "focus on leaves"}, nil)
	require.NoError(t, err)
	req := gen.last()
	assert.Equal(t, "Photosynthesis", req.SubjectMatter)
	assert.Equal(t, "focus on leaves", req.Instruction)
	assert.False(t, req.Refining())

	_, err = svc.Start(ctx, chatID, 1, "  ")
	require.ErrorIs(t, err, studio.ErrEmptyInput)
}

func TestSetContext(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	session, err := svc.SetContext(ctx, chatID, 1, "age", "9-11 Years")
	require.NoError(t, err)
	assert.Equal(t, "9-11 Years", session.Params["age"])

	session, err = svc.SetContext(ctx, chatID, 1, "age", "")
	require.NoError(t, err)
	assert.NotContains(t, session.Params, "age")

	for _, key := range []string{"", "9lives", "has space", "way_too_long_key_name_for_a_parameter"} {
		_, err = svc.SetContext(ctx, chatID, 1, key, "x")
		assert.ErrorIs(t, err, studio.ErrInvalidParam, key)
	}
	assert.Equal(t, config.DefaultMessages.ContextUsage, svc.UserMessage(err))
}

func TestCompose_AudioOnly(t *testing.T) {
	ctx := context.Background()
	svc, gen, _ := newService(t)

	audio := &cascade.Audio{MIMEType: "audio/ogg", Data: []byte("voice")}
	run, err := svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1, Audio: audio}, nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.DefaultTopic, run.Session.Subject)
	assert.Same(t, audio, gen.last().Audio)
}

func TestCompose_EmptyInput(t *testing.T) {
	svc, gen, _ := newService(t)
	_, err := svc.Compose(context.Background(), studio.Input{ChatID: chatID, Text: "   "}, nil)
	require.ErrorIs(t, err, studio.ErrEmptyInput)
	assert.Empty(t, gen.requests)
	assert.Equal(t, config.DefaultMessages.ProvideSubject, svc.UserMessage(err))
}

func TestResetAndCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Current(ctx, chatID)
	require.ErrorIs(t, err, studio.ErrNoSession)
	assert.Equal(t, config.DefaultMessages.NoDraft, svc.UserMessage(err))

	_, err = svc.Start(ctx, chatID, 1, "Soil")
	require.NoError(t, err)
	_, err = svc.Current(ctx, chatID)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, chatID))
	_, err = svc.Current(ctx, chatID)
	require.ErrorIs(t, err, studio.ErrNoSession)
}

func TestGenerate_StatelessRunIsRecorded(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	run, err := svc.Generate(ctx, studio.Input{Source: database.SourceHTTP}, cascade.Request{SubjectMatter: "Tides"}, nil)
	require.NoError(t, err)
	assert.Nil(t, run.Session)
	assert.Equal(t, "draft for Tides", run.Result.Text)

	history, err := svc.History(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, database.SourceHTTP, history[0].Source)
	assert.Equal(t, run.RequestID, history[0].RequestID)
}

func TestNew_Validation(t *testing.T) {
	_, err := studio.New(nil, nil, nil, nil)
	require.Error(t, err)
	_, err = studio.New(&fakeGenerator{}, database.NewStore(nil, nil), nil, nil)
	require.ErrorIs(t, err, cascade.ErrNoCandidates)
}

func TestCompose_DraftsFromSubjectAlone(t *testing.T) {
	ctx := context.Background()
	svc, gen, _ := newService(t)

	_, err := svc.Start(ctx, chatID, 1, "Water cycle")
	require.NoError(t, err)

	run, err := svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Water cycle", gen.last().SubjectMatter)
	assert.Empty(t, gen.last().Instruction)
	assert.Equal(t, 1, run.Session.Revision)

	_, err = svc.Compose(ctx, studio.Input{ChatID: chatID, UserID: 1}, nil)
	require.ErrorIs(t, err, studio.ErrEmptyInput, "an existing draft needs an instruction")
}
