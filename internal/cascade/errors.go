package cascade

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates is returned when Generate is called with an empty list.
	ErrNoCandidates = errors.New("cascade has no candidates")
	// ErrCascadeExhausted matches every *ExhaustedError.
	ErrCascadeExhausted = errors.New("cascade exhausted")
	// ErrEmptyResponse is reported when a provider answers with blank text.
	ErrEmptyResponse = errors.New("provider returned an empty response")
	// ErrNoSecondary is recorded when only secondary candidates remain but no secondary backend exists.
	ErrNoSecondary = errors.New("no secondary backend configured")
)

// ExhaustedError is the terminal failure of a run in which every candidate failed.
type ExhaustedError struct {
	Summary  string
	Attempts int
	// Last is the last underlying error observed, for diagnostics only.
	Last error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return e.Summary
	}
	return fmt.Sprintf("%s: %v", e.Summary, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes errors.Is(err, ErrCascadeExhausted) hold.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrCascadeExhausted
}
