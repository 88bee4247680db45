// Package openrouter implements the primary cascade backend on OpenRouter's
// OpenAI-compatible chat completion API.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/prompts"
	"github.com/rhythmlogic/gps/internal/providers"
	"github.com/rhythmlogic/gps/internal/text"
)

// BackendName is the config value selecting this backend.
const BackendName = "openrouter"

// ErrAudioUnsupported is reported for requests carrying audio; the chat endpoint is text only.
var ErrAudioUnsupported = errors.New("openrouter backend does not accept audio input")

func init() {
	providers.Register(BackendName, func(_ context.Context, cfg config.ProviderConfig, log *slog.Logger) (cascade.Backend, error) {
		return New(cfg, log)
	})
}

// Backend sends chat completions through go-openai with OpenRouter's base URL.
type Backend struct {
	client      *openai.Client
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

// New creates the backend. Attribution headers are added by the transport.
func New(cfg config.ProviderConfig, log *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter api key is required")
	}
	if log == nil {
		log = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &attributionTransport{
			referer: cfg.Referer,
			title:   cfg.Title,
			next:    http.DefaultTransport,
		},
	}

	return &Backend{
		client:      openai.NewClientWithConfig(clientCfg),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         log.With("component", "openrouter"),
	}, nil
}

func (b *Backend) Name() string {
	return BackendName
}

// Attempt makes one chat completion call and classifies its result.
func (b *Backend) Attempt(ctx context.Context, model string, req cascade.Request) cascade.Outcome {
	if req.HasAudio() {
		return cascade.Fatal(ErrAudioUnsupported)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompts.Render(req)},
		},
		Temperature: b.temperature,
	})
	duration := time.Since(start)

	if err != nil {
		out := classify(err)
		b.log.WarnContext(ctx, "Chat completion failed",
			"model", model, "kind", out.Kind, "error", err, "duration_ms", duration.Milliseconds())
		return out
	}

	if len(resp.Choices) == 0 {
		b.log.WarnContext(ctx, "No choices returned", "model", model)
		return cascade.Unavailable(fmt.Errorf("%s: %w", model, cascade.ErrEmptyResponse))
	}

	b.log.DebugContext(ctx, "Chat completion succeeded",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return cascade.Success(text.Normalize(resp.Choices[0].Message.Content))
}

// classify maps go-openai errors onto outcome kinds.
func classify(err error) cascade.Outcome {
	if out, ok := cascade.FromContext(err); ok {
		return out
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return cascade.Failure(cascade.ClassifyHTTPStatus(apiErr.HTTPStatusCode), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return cascade.Failure(cascade.ClassifyHTTPStatus(reqErr.HTTPStatusCode), err)
	}

	// No status code means the request never got an answer.
	return cascade.Unavailable(err)
}

// attributionTransport sets the headers OpenRouter uses to attribute traffic.
type attributionTransport struct {
	referer string
	title   string
	next    http.RoundTripper
}

func (t *attributionTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	if t.referer != "" {
		r.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		r.Header.Set("X-Title", t.title)
	}
	return t.next.RoundTrip(r)
}
