package cascade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmlogic/gps/internal/cascade"
)

var errAuth = errors.New("401 unauthorized")

// fakeBackend replays scripted outcomes per model and counts calls.
type fakeBackend struct {
	name string

	mu      sync.Mutex
	script  map[string][]cascade.Outcome
	calls   map[string]int
	order   []string
	lastReq cascade.Request
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{
		name:   name,
		script: make(map[string][]cascade.Outcome),
		calls:  make(map[string]int),
	}
}

func (f *fakeBackend) on(model string, outcomes ...cascade.Outcome) *fakeBackend {
	f.script[model] = append(f.script[model], outcomes...)
	return f
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Attempt(_ context.Context, model string, req cascade.Request) cascade.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[model]++
	f.order = append(f.order, model)
	f.lastReq = req

	queue := f.script[model]
	if len(queue) == 0 {
		return cascade.Fatal(errors.New("unscripted call to " + model))
	}
	out := queue[0]
	if len(queue) > 1 {
		f.script[model] = queue[1:]
	}
	return out
}

func (f *fakeBackend) callsTo(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []cascade.Kind
	results  int
	failures int
}

func (o *recordingObserver) AttemptFinished(_ cascade.Candidate, kind cascade.Kind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, kind)
}

func (o *recordingObserver) CascadeFinished(_ *cascade.Result, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
		return
	}
	o.results++
}

var createReq = cascade.Request{SubjectMatter: "Photosynthesis for grade 7"}

func primaryCandidates(ids ...string) []cascade.Candidate {
	out := make([]cascade.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, cascade.Candidate{ID: id, Provider: cascade.Primary, Priority: i + 1})
	}
	return out
}

func newController(t *testing.T, primary cascade.Backend, opts ...cascade.Option) *cascade.Controller {
	t.Helper()
	c, err := cascade.New(primary, opts...)
	require.NoError(t, err)
	return c
}

type generated struct {
	res *cascade.Result
	err error
}

// generateAsync runs Generate in a goroutine so the test can drive the fake clock.
func generateAsync(ctx context.Context, c *cascade.Controller, req cascade.Request, cands []cascade.Candidate) <-chan generated {
	done := make(chan generated, 1)
	go func() {
		res, err := c.Generate(ctx, req, cands, nil)
		done <- generated{res: res, err: err}
	}()
	return done
}

// advanceBackoffs releases n pending backoff timers one at a time.
func advanceBackoffs(t *testing.T, fc *clockwork.FakeClock, n int, backoff time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1), "waiting for backoff timer %d", i+1)
		fc.Advance(backoff)
	}
}

func TestGenerate_FirstCandidateSucceeds(t *testing.T) {
	primary := newFakeBackend("primary").
		on("model-a", cascade.Success("draft A")).
		on("model-b", cascade.Success("draft B"))
	c := newController(t, primary)

	res, err := c.Generate(context.Background(), createReq, primaryCandidates("model-a", "model-b"), nil)
	require.NoError(t, err)

	assert.Equal(t, "draft A", res.Text)
	assert.Equal(t, "model-a", res.ServedBy)
	assert.Equal(t, cascade.Primary, res.Provider)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, primary.callsTo("model-b"), "later candidates must not be tried after a success")
}

func TestGenerate_RateLimitedThenNextCandidate(t *testing.T) {
	fc := clockwork.NewFakeClock()
	primary := newFakeBackend("primary").
		on("model-a", cascade.RateLimited(errors.New("429"))).
		on("model-b", cascade.Success("draft B"))
	obs := &recordingObserver{}
	c := newController(t, primary,
		cascade.WithClock(fc),
		cascade.WithPolicy(cascade.Policy{MaxAttempts: 3, Backoff: 4 * time.Second}),
		cascade.WithObserver(obs),
	)

	done := generateAsync(context.Background(), c, createReq, primaryCandidates("model-a", "model-b"))
	advanceBackoffs(t, fc, 2, 4*time.Second)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "draft B", got.res.Text)
	assert.Equal(t, "model-b", got.res.ServedBy)
	assert.Equal(t, 4, got.res.Attempts)
	assert.Equal(t, 3, primary.callsTo("model-a"))
	assert.Equal(t, 1, primary.callsTo("model-b"))

	assert.Equal(t, []cascade.Kind{
		cascade.KindRateLimited, cascade.KindRateLimited, cascade.KindRateLimited, cascade.KindSuccess,
	}, obs.attempts)
	assert.Equal(t, 1, obs.results)
}

func TestGenerate_UnavailableIsRetried(t *testing.T) {
	fc := clockwork.NewFakeClock()
	primary := newFakeBackend("primary").
		on("model-a", cascade.Unavailable(errors.New("503")), cascade.Success("recovered"))
	c := newController(t, primary, cascade.WithClock(fc))

	done := generateAsync(context.Background(), c, createReq, primaryCandidates("model-a"))
	advanceBackoffs(t, fc, 1, cascade.DefaultPolicy().Backoff)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "recovered", got.res.Text)
	assert.Equal(t, 2, primary.callsTo("model-a"))
}

func TestGenerate_WaitsFullBackoffBeforeRetry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	backoff := 4 * time.Second
	primary := newFakeBackend("primary").
		on("model-a", cascade.RateLimited(errors.New("429")), cascade.Success("second try"))
	c := newController(t, primary,
		cascade.WithClock(fc),
		cascade.WithPolicy(cascade.Policy{MaxAttempts: 3, Backoff: backoff}),
	)

	done := generateAsync(context.Background(), c, createReq, primaryCandidates("model-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(backoff - time.Millisecond)
	assert.Never(t, func() bool { return primary.callsTo("model-a") > 1 }, 50*time.Millisecond, 5*time.Millisecond,
		"retry must not start before the backoff has fully elapsed")

	fc.Advance(time.Millisecond)
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "second try", got.res.Text)
	assert.Equal(t, 2, primary.callsTo("model-a"))
}

func TestGenerate_FatalAbandonsCandidateImmediately(t *testing.T) {
	primary := newFakeBackend("primary").
		on("model-a", cascade.Fatal(errAuth)).
		on("model-b", cascade.Success("draft B"))
	c := newController(t, primary)

	res, err := c.Generate(context.Background(), createReq, primaryCandidates("model-a", "model-b"), nil)
	require.NoError(t, err)
	assert.Equal(t, "model-b", res.ServedBy)
	assert.Equal(t, 1, primary.callsTo("model-a"))
}

func TestGenerate_FatalWithoutSecondaryIsExhausted(t *testing.T) {
	primary := newFakeBackend("primary").on("model-a", cascade.Fatal(errAuth))
	obs := &recordingObserver{}
	c := newController(t, primary, cascade.WithObserver(obs))

	res, err := c.Generate(context.Background(), createReq, primaryCandidates("model-a"), nil)
	require.Error(t, err)
	assert.Nil(t, res, "exhaustion never returns a partial result")

	var exhausted *cascade.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.ErrorIs(t, err, cascade.ErrCascadeExhausted)
	assert.ErrorIs(t, err, errAuth)
	assert.Equal(t, 1, obs.failures)
}

func TestGenerate_SecondaryGetsExactlyOneAttempt(t *testing.T) {
	fc := clockwork.NewFakeClock()
	primary := newFakeBackend("primary").on("model-a", cascade.RateLimited(errors.New("429")))
	secondary := newFakeBackend("secondary").on("gemini-flash", cascade.RateLimited(errors.New("quota")))
	c := newController(t, primary,
		cascade.WithSecondary(secondary),
		cascade.WithClock(fc),
		cascade.WithPolicy(cascade.Policy{MaxAttempts: 2, Backoff: time.Second}),
	)

	cands := append(primaryCandidates("model-a"),
		cascade.Candidate{ID: "gemini-flash", Provider: cascade.Secondary, Priority: 100},
		cascade.Candidate{ID: "gemini-pro", Provider: cascade.Secondary, Priority: 101},
	)
	done := generateAsync(context.Background(), c, createReq, cands)
	advanceBackoffs(t, fc, 1, time.Second)

	got := <-done
	require.ErrorIs(t, got.err, cascade.ErrCascadeExhausted)
	assert.Nil(t, got.res)
	assert.Equal(t, 1, secondary.total(), "secondary is never retried")
	assert.Zero(t, secondary.callsTo("gemini-pro"))

	var exhausted *cascade.ExhaustedError
	require.ErrorAs(t, got.err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestGenerate_SecondaryServesAfterPrimaryExhausted(t *testing.T) {
	primary := newFakeBackend("primary").on("model-a", cascade.Fatal(errAuth))
	secondary := newFakeBackend("secondary").on("gemini-flash", cascade.Success("from gemini"))
	c := newController(t, primary, cascade.WithSecondary(secondary))

	cands := append(primaryCandidates("model-a"),
		cascade.Candidate{ID: "gemini-flash", Provider: cascade.Secondary, Priority: 100})
	res, err := c.Generate(context.Background(), createReq, cands, nil)
	require.NoError(t, err)
	assert.Equal(t, "from gemini", res.Text)
	assert.Equal(t, cascade.Secondary, res.Provider)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, c.HasSecondary())
}

func TestGenerate_SecondaryCandidateWithoutBackend(t *testing.T) {
	primary := newFakeBackend("primary")
	c := newController(t, primary)

	cands := []cascade.Candidate{{ID: "gemini-flash", Provider: cascade.Secondary, Priority: 1}}
	_, err := c.Generate(context.Background(), createReq, cands, nil)
	require.ErrorIs(t, err, cascade.ErrCascadeExhausted)
	assert.ErrorIs(t, err, cascade.ErrNoSecondary)
	assert.Zero(t, primary.total())
}

func TestGenerate_PriorityOrder(t *testing.T) {
	primary := newFakeBackend("primary").
		on("low", cascade.Fatal(errAuth)).
		on("high", cascade.Fatal(errAuth)).
		on("mid", cascade.Fatal(errAuth))
	c := newController(t, primary)

	cands := []cascade.Candidate{
		{ID: "low", Provider: cascade.Primary, Priority: 30},
		{ID: "high", Provider: cascade.Primary, Priority: 1},
		{ID: "mid", Provider: cascade.Primary, Priority: 10},
	}
	_, err := c.Generate(context.Background(), createReq, cands, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, primary.order)
}

func TestGenerate_BlankSuccessTreatedAsUnavailable(t *testing.T) {
	primary := newFakeBackend("primary").
		on("model-a", cascade.Success("   ")).
		on("model-b", cascade.Success("real"))
	c := newController(t, primary, cascade.WithPolicy(cascade.Policy{MaxAttempts: 1}))

	res, err := c.Generate(context.Background(), createReq, primaryCandidates("model-a", "model-b"), nil)
	require.NoError(t, err)
	assert.Equal(t, "model-b", res.ServedBy)
}

func TestGenerate_NoCandidates(t *testing.T) {
	primary := newFakeBackend("primary")
	c := newController(t, primary)

	_, err := c.Generate(context.Background(), createReq, nil, nil)
	require.ErrorIs(t, err, cascade.ErrNoCandidates)
	assert.Zero(t, primary.total())
}

func TestGenerate_InvalidRequest(t *testing.T) {
	primary := newFakeBackend("primary")
	c := newController(t, primary)

	_, err := c.Generate(context.Background(), cascade.Request{PriorOutput: "old draft"}, primaryCandidates("a"), nil)
	require.ErrorIs(t, err, cascade.ErrInvalidRequest)
	assert.Zero(t, primary.total())
}

func TestGenerate_CancelledDuringBackoff(t *testing.T) {
	fc := clockwork.NewFakeClock()
	primary := newFakeBackend("primary").on("model-a", cascade.RateLimited(errors.New("429")))
	c := newController(t, primary, cascade.WithClock(fc))

	ctx, cancel := context.WithCancel(context.Background())
	done := generateAsync(ctx, c, createReq, primaryCandidates("model-a", "model-b"))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	cancel()

	got := <-done
	require.ErrorIs(t, got.err, context.Canceled)
	assert.NotErrorIs(t, got.err, cascade.ErrCascadeExhausted)
	assert.Equal(t, 1, primary.total())
}

func TestGenerate_ProgressReportsEveryAttempt(t *testing.T) {
	primary := newFakeBackend("primary").
		on("model-a", cascade.Unavailable(errors.New("502")), cascade.Success("ok"))
	c := newController(t, primary, cascade.WithPolicy(cascade.Policy{MaxAttempts: 3}))

	var seen []cascade.Progress
	_, err := c.Generate(context.Background(), createReq, primaryCandidates("model-a"), func(_ context.Context, p cascade.Progress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, 2, seen[1].Attempt)
	assert.Equal(t, 3, seen[1].MaxAttempts)
	assert.Equal(t, "model-a", seen[1].Candidate.ID)
}

func TestNew_RejectsBadPolicy(t *testing.T) {
	_, err := cascade.New(nil)
	require.Error(t, err)

	_, err = cascade.New(newFakeBackend("p"), cascade.WithPolicy(cascade.Policy{MaxAttempts: 0}))
	require.Error(t, err)

	_, err = cascade.New(newFakeBackend("p"), cascade.WithPolicy(cascade.Policy{MaxAttempts: 1, Backoff: -time.Second}))
	require.Error(t, err)
}
