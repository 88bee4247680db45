package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmlogic/gps/internal/cascade"
)

func TestObserver(t *testing.T) {
	m := New()
	cand := cascade.Candidate{ID: "model-a", Provider: cascade.Primary}

	m.AttemptFinished(cand, cascade.KindRateLimited, time.Second)
	m.AttemptFinished(cand, cascade.KindRateLimited, time.Second)
	m.AttemptFinished(cand, cascade.KindSuccess, 2*time.Second)
	m.CascadeFinished(&cascade.Result{}, nil, 10*time.Second)
	m.CascadeFinished(nil, &cascade.ExhaustedError{Summary: "x"}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("primary", "model-a", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("primary", "model-a", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues(ResultExhausted)))
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultOf(nil))
	assert.Equal(t, ResultExhausted, ResultOf(fmt.Errorf("wrapped: %w", &cascade.ExhaustedError{})))
	assert.Equal(t, ResultCancelled, ResultOf(context.Canceled))
	assert.Equal(t, ResultError, ResultOf(errors.New("boom")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/items/{id}", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gps_http_requests_total{method="GET",route="/items/{id}",status="418"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}
