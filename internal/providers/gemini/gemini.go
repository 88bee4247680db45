// Package gemini implements the secondary cascade backend on Google's Gemini API.
// It is the only backend that accepts audio instructions.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/prompts"
	"github.com/rhythmlogic/gps/internal/providers"
	"github.com/rhythmlogic/gps/internal/text"
)

// BackendName is the config value selecting this backend.
const BackendName = "gemini"

// ErrBlocked is reported when Gemini refuses the prompt or returns no content.
var ErrBlocked = errors.New("gemini returned no usable content")

func init() {
	providers.Register(BackendName, func(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) (cascade.Backend, error) {
		return New(ctx, cfg, log)
	})
}

// Backend calls models.generateContent once per attempt.
type Backend struct {
	genaiClient   *genai.Client
	contentConfig *genai.GenerateContentConfig
	timeout       time.Duration
	log           *slog.Logger
}

// New creates the backend around a genai client for the Gemini API.
func New(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = slog.Default()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gi, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: genai.NewContentFromText(prompts.SystemInstruction, genai.RoleUser),
	}

	logger := log.With("component", "gemini")
	logger.Info("Gemini backend initialized")
	return &Backend{
		genaiClient:   gi,
		contentConfig: baseCfg,
		timeout:       cfg.Timeout,
		log:           logger,
	}, nil
}

func (b *Backend) Name() string {
	return BackendName
}

// Attempt sends the rendered prompt, plus the audio as an inline part when
// present, and classifies the response.
func (b *Backend) Attempt(ctx context.Context, model string, req cascade.Request) cascade.Outcome {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(prompts.Render(req))}
	if req.HasAudio() {
		parts = append(parts, genai.NewPartFromBytes(req.Audio.Data, req.Audio.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := b.genaiClient.Models.GenerateContent(ctx, model, contents, b.contentConfig)
	duration := time.Since(start)

	if err != nil {
		out := classify(err)
		b.log.WarnContext(ctx, "Gemini API call failed",
			"model", model, "kind", out.Kind, "error", err, "duration_ms", duration.Milliseconds())
		return out
	}

	content, err := b.extractText(ctx, model, resp)
	if err != nil {
		return cascade.Fatal(err)
	}

	b.log.DebugContext(ctx, "Gemini generation succeeded", "model", model, "duration_ms", duration.Milliseconds())
	return cascade.Success(text.Normalize(content))
}

func (b *Backend) extractText(ctx context.Context, model string, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		b.log.ErrorContext(ctx, "Gemini request blocked", "model", model, "reason", reason)
		return "", fmt.Errorf("%w: blocked by safety filter: %s", ErrBlocked, reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		b.log.WarnContext(ctx, "Gemini response missing candidates or content", "model", model, "finish_reason", finishReason)
		return "", fmt.Errorf("%w: finish reason %s", ErrBlocked, finishReason)
	}

	return resp.Text(), nil
}

// classify maps genai errors onto outcome kinds. Only 500, 503 and 504 are
// treated as transient server errors.
func classify(err error) cascade.Outcome {
	if out, ok := cascade.FromContext(err); ok {
		return out
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	default:
		// Transport failure, no response.
		return cascade.Unavailable(err)
	}

	switch code {
	case 429:
		return cascade.RateLimited(err)
	case 500, 503, 504:
		return cascade.Unavailable(err)
	default:
		return cascade.Fatal(err)
	}
}
