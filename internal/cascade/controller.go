package cascade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
)

// Backend performs single generation attempts against one provider API.
// Implementations must never retry internally; the controller owns the policy.
type Backend interface {
	Name() string
	Attempt(ctx context.Context, model string, req Request) Outcome
}

// Controller runs the cascade. It holds no per-run state and is safe for
// concurrent use; each run is strictly sequential.
type Controller struct {
	primary   Backend
	secondary Backend
	policy    Policy
	clock     clockwork.Clock
	log       *slog.Logger
	observer  Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithSecondary sets the backend used for the single last-resort attempt.
func WithSecondary(b Backend) Option {
	return func(c *Controller) { c.secondary = b }
}

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithClock sets the clock used for backoff waits.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger; per-candidate failures are only logged.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithObserver registers an attempt/run observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// New creates a controller around the primary backend.
func New(primary Backend, opts ...Option) (*Controller, error) {
	if primary == nil {
		return nil, errors.New("cascade: primary backend is required")
	}

	c := &Controller{
		primary: primary,
		policy:  DefaultPolicy(),
		clock:   clockwork.NewRealClock(),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("cascade: max attempts must be at least 1, got %d", c.policy.MaxAttempts)
	}
	if c.policy.Backoff < 0 {
		return nil, fmt.Errorf("cascade: negative backoff %s", c.policy.Backoff)
	}

	c.log = c.log.With("component", "cascade")
	return c, nil
}

// HasSecondary reports whether a secondary backend is configured.
func (c *Controller) HasSecondary() bool {
	return c.secondary != nil
}

// Policy returns the retry policy in effect.
func (c *Controller) Policy() Policy {
	return c.policy
}

// run tracks the attempt count and last error of one Generate call.
type run struct {
	attempts int
	lastErr  error
}

// Generate returns the text of the first candidate that succeeds, trying
// primary candidates in priority order and then at most one secondary
// candidate. Exhaustion is reported as *ExhaustedError.
func (c *Controller) Generate(ctx context.Context, req Request, candidates []Candidate, progress ProgressFunc) (*Result, error) {
	started := c.clock.Now()
	res, err := c.generate(ctx, req, candidates, progress)
	if c.observer != nil {
		c.observer.CascadeFinished(res, err, c.clock.Since(started))
	}
	return res, err
}

func (c *Controller) generate(ctx context.Context, req Request, candidates []Candidate, progress ProgressFunc) (*Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ordered := Order(candidates)
	r := &run{}

	for _, cand := range ordered {
		if cand.Provider != Primary {
			continue
		}
		if res := c.tryPrimary(ctx, req, cand, progress, r); res != nil {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled after %d attempts: %w", r.attempts, err)
		}
	}

	if sec, ok := firstSecondary(ordered); ok {
		if c.secondary == nil {
			c.log.WarnContext(ctx, "Secondary candidate present but no secondary backend configured", "model", sec.ID)
			if r.lastErr == nil {
				r.lastErr = ErrNoSecondary
			}
		} else {
			c.log.InfoContext(ctx, "Primary candidates exhausted, switching to secondary backend",
				"backend", c.secondary.Name(), "model", sec.ID, "attempts", r.attempts)
			out := c.attempt(ctx, c.secondary, sec, req, 1, 1, progress, r)
			if out.Kind == KindSuccess {
				return c.result(sec, out, r), nil
			}
			r.lastErr = out.Err
		}
	}

	exhausted := &ExhaustedError{
		Summary:  fmt.Sprintf("all %d candidates failed after %d attempts", len(ordered), r.attempts),
		Attempts: r.attempts,
		Last:     r.lastErr,
	}
	c.log.ErrorContext(ctx, "Generation cascade exhausted", "candidates", len(ordered), "attempts", r.attempts, "error", r.lastErr)
	return nil, exhausted
}

// tryPrimary attempts one primary candidate under the retry policy. It returns
// nil when the candidate is abandoned.
func (c *Controller) tryPrimary(ctx context.Context, req Request, cand Candidate, progress ProgressFunc, r *run) *Result {
	maxAttempts := c.policy.MaxAttempts
	for n := 1; n <= maxAttempts; n++ {
		if ctx.Err() != nil {
			return nil
		}

		out := c.attempt(ctx, c.primary, cand, req, n, maxAttempts, progress, r)
		switch {
		case out.Kind == KindSuccess:
			return c.result(cand, out, r)
		case !out.Kind.Retryable():
			c.log.WarnContext(ctx, "Abandoning candidate after non-retryable failure",
				"model", cand.ID, "kind", out.Kind, "error", out.Err)
			r.lastErr = out.Err
			return nil
		case n == maxAttempts:
			c.log.WarnContext(ctx, "Abandoning candidate after max attempts",
				"model", cand.ID, "kind", out.Kind, "attempts", n, "error", out.Err)
			r.lastErr = out.Err
			return nil
		}

		r.lastErr = out.Err
		c.log.InfoContext(ctx, "Retrying candidate after backoff",
			"model", cand.ID, "kind", out.Kind, "attempt", n, "max_attempts", maxAttempts, "delay", c.policy.Backoff)
		if err := c.wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}

func (c *Controller) attempt(ctx context.Context, b Backend, cand Candidate, req Request, n, maxAttempts int, progress ProgressFunc, r *run) Outcome {
	if progress != nil {
		progress(ctx, Progress{Candidate: cand, Attempt: n, MaxAttempts: maxAttempts})
	}

	started := c.clock.Now()
	out := b.Attempt(ctx, cand.ID, req)
	elapsed := c.clock.Since(started)
	r.attempts++

	if out.Kind == KindSuccess && strings.TrimSpace(out.Text) == "" {
		out = Unavailable(ErrEmptyResponse)
	}
	if out.Kind != KindSuccess && out.Err == nil {
		out.Err = fmt.Errorf("%s attempt on %s failed (%s)", b.Name(), cand.ID, out.Kind)
	}

	if c.observer != nil {
		c.observer.AttemptFinished(cand, out.Kind, elapsed)
	}
	c.log.DebugContext(ctx, "Attempt finished",
		"backend", b.Name(), "model", cand.ID, "attempt", n, "kind", out.Kind, "elapsed", elapsed)
	return out
}

func (c *Controller) result(cand Candidate, out Outcome, r *run) *Result {
	return &Result{
		Text:     out.Text,
		ServedBy: cand.ID,
		Provider: cand.Provider,
		Attempts: r.attempts,
	}
}

func (c *Controller) wait(ctx context.Context) error {
	if c.policy.Backoff <= 0 {
		return ctx.Err()
	}
	timer := c.clock.NewTimer(c.policy.Backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func firstSecondary(ordered []Candidate) (Candidate, bool) {
	for _, cand := range ordered {
		if cand.Provider == Secondary {
			return cand, true
		}
	}
	return Candidate{}, false
}
