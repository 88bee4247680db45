package providers_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/providers"
)

type stubBackend struct{ key string }

func (s stubBackend) Name() string { return "stub" }

func (s stubBackend) Attempt(context.Context, string, cascade.Request) cascade.Outcome {
	return cascade.Success(s.key)
}

func TestRegistry(t *testing.T) {
	providers.Register("test-stub", func(_ context.Context, cfg config.ProviderConfig, _ *slog.Logger) (cascade.Backend, error) {
		if cfg.APIKey == "" {
			return nil, errors.New("api key required")
		}
		return stubBackend{key: cfg.APIKey}, nil
	})

	assert.Contains(t, providers.Names(), "test-stub")

	b, err := providers.New(context.Background(), "test-stub", config.ProviderConfig{APIKey: "k"}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "k", b.Attempt(context.Background(), "m", cascade.Request{}).Text)

	_, err = providers.New(context.Background(), "test-stub", config.ProviderConfig{}, slog.Default())
	require.ErrorContains(t, err, "api key required")

	_, err = providers.New(context.Background(), "nope", config.ProviderConfig{}, slog.Default())
	require.ErrorContains(t, err, "unsupported provider backend")

	assert.Panics(t, func() {
		providers.Register("test-stub", func(context.Context, config.ProviderConfig, *slog.Logger) (cascade.Backend, error) {
			return nil, nil
		})
	})
}
