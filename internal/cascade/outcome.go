package cascade

import (
	"context"
	"errors"
	"fmt"
)

// Kind tags the outcome of a single backend attempt.
type Kind int

const (
	KindSuccess Kind = iota
	// KindRateLimited is a provider-reported quota or capacity error.
	KindRateLimited
	// KindUnavailable covers network errors, timeouts and 5xx responses.
	KindUnavailable
	// KindFatal covers authentication, configuration and malformed requests.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether the same candidate may be tried again.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindUnavailable
}

// Outcome is the tagged result of one attempt. Err is set for every
// non-success kind; Text only for KindSuccess.
type Outcome struct {
	Kind Kind
	Text string
	Err  error
}

// Success builds a successful outcome.
func Success(text string) Outcome {
	return Outcome{Kind: KindSuccess, Text: text}
}

// RateLimited builds a quota outcome.
func RateLimited(err error) Outcome {
	return Outcome{Kind: KindRateLimited, Err: err}
}

// Unavailable builds a transient-failure outcome.
func Unavailable(err error) Outcome {
	return Outcome{Kind: KindUnavailable, Err: err}
}

// Fatal builds an outcome that abandons the candidate.
func Fatal(err error) Outcome {
	return Outcome{Kind: KindFatal, Err: err}
}

// Failure builds a non-success outcome of the given kind.
func Failure(kind Kind, err error) Outcome {
	if kind == KindSuccess {
		kind = KindFatal
	}
	return Outcome{Kind: kind, Err: err}
}

// FromContext classifies a context error raised during an attempt, or
// returns false when err is not one.
func FromContext(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Unavailable(err), true
	case errors.Is(err, context.Canceled):
		return Fatal(err), true
	default:
		return Outcome{}, false
	}
}

// ClassifyHTTPStatus maps an HTTP status code from a provider API to a kind.
func ClassifyHTTPStatus(code int) Kind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 408, code >= 500:
		return KindUnavailable
	default:
		return KindFatal
	}
}
