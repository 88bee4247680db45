// Package cascade implements the generation cascade: a prioritized list of
// model candidates tried in order against a primary provider, with bounded
// in-place retries on transient failures and a single last-resort attempt
// against a secondary provider.
package cascade

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Provider identifies which backend serves a candidate.
type Provider int

const (
	Primary Provider = iota
	Secondary
)

func (p Provider) String() string {
	switch p {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// Candidate is one (provider, model) pair eligible to serve a request.
// Lower Priority values are tried first.
type Candidate struct {
	ID       string
	Provider Provider
	Priority int
}

// Audio is a recorded instruction or dictation.
type Audio struct {
	MIMEType string
	Data     []byte
}

// Request is the immutable input of one cascade run.
type Request struct {
	SubjectMatter string
	Context       map[string]string
	// PriorOutput is the draft being refined; empty when creating.
	PriorOutput string
	Instruction string
	Audio       *Audio
}

// ErrInvalidRequest is returned before any attempt when a request has nothing to work on.
var ErrInvalidRequest = errors.New("invalid generation request")

// Refining reports whether the request revises an existing draft.
func (r Request) Refining() bool {
	return strings.TrimSpace(r.PriorOutput) != ""
}

// HasAudio reports whether an audio instruction is attached.
func (r Request) HasAudio() bool {
	return r.Audio != nil && len(r.Audio.Data) > 0
}

// Validate checks that the request carries enough content to generate from.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SubjectMatter) == "" && !r.Refining() && strings.TrimSpace(r.Instruction) == "" && !r.HasAudio() {
		return fmt.Errorf("%w: subject matter, prior output, instruction or audio required", ErrInvalidRequest)
	}
	if r.Refining() && strings.TrimSpace(r.Instruction) == "" && !r.HasAudio() {
		return fmt.Errorf("%w: refining requires a text or audio instruction", ErrInvalidRequest)
	}
	if r.Audio != nil && len(r.Audio.Data) > 0 && r.Audio.MIMEType == "" {
		return fmt.Errorf("%w: audio MIME type is required", ErrInvalidRequest)
	}
	return nil
}

// Result is the output of a successful run.
type Result struct {
	Text     string
	ServedBy string
	Provider Provider
	// Attempts counts every backend call made during the run.
	Attempts int
}

// Progress describes the attempt about to be made.
type Progress struct {
	Candidate   Candidate
	Attempt     int
	MaxAttempts int
}

// ProgressFunc is notified before every attempt. It is advisory only.
type ProgressFunc func(ctx context.Context, p Progress)

// Observer receives attempt and run outcomes, e.g. for metrics.
type Observer interface {
	AttemptFinished(c Candidate, kind Kind, elapsed time.Duration)
	CascadeFinished(res *Result, err error, elapsed time.Duration)
}

// Policy is the per-candidate retry policy for the primary provider.
type Policy struct {
	// MaxAttempts is the total number of attempts per candidate, first try included.
	MaxAttempts int
	// Backoff is the fixed wait before each retry.
	Backoff time.Duration
}

// DefaultPolicy returns three attempts with a four second backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     4 * time.Second,
	}
}

// Order returns a copy of candidates stably sorted by priority.
func Order(candidates []Candidate) []Candidate {
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b Candidate) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return ordered
}
