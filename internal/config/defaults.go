package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultDBPath              = "gps.db"
	DefaultGenerationRetention = 30 * 24 * time.Hour
	DefaultHistoryLimit        = 10

	DefaultHTTPAddr         = ":8080"
	DefaultHTTPReadTimeout  = 15 * time.Second
	DefaultHTTPWriteTimeout = 5 * time.Minute

	DefaultMaxAttempts    = 3
	DefaultBackoff        = 4 * time.Second
	DefaultRequestTimeout = 5 * time.Minute

	DefaultPrimaryBackend   = "openrouter"
	DefaultPrimaryBaseURL   = "https://openrouter.ai/api/v1"
	DefaultPrimaryReferer   = "https://rhythm-logic.com"
	DefaultPrimaryTitle     = "Rhythm Logic GPS"
	DefaultSecondaryBackend = "gemini"
	DefaultTemperature      = 0.7
	DefaultProviderTimeout  = 90 * time.Second
)

// DefaultCandidates is the cascade used when none is configured. The
// secondary entry is only tried when a secondary backend is set up.
var DefaultCandidates = []CandidateConfig{
	{ID: "google/gemini-2.0-flash-lite-preview-02-05:free", Provider: "primary", Priority: 1},
	{ID: "google/gemini-flash-1.5-8b", Provider: "primary", Priority: 2},
	{ID: "mistralai/mistral-7b-instruct:free", Provider: "primary", Priority: 3},
	{ID: "gemini-1.5-flash", Provider: "secondary", Priority: 100},
}

// DefaultTasks schedules database upkeep.
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance":  {Enabled: true, Schedule: "0 0 4 * * *"},
	"generation_prune": {Enabled: true, Schedule: "0 30 4 * * *"},
}

// DefaultMessages are the user-facing texts.
var DefaultMessages = MessagesConfig{
	Welcome: "🎙️ Rhythm Logic GPS is ready. Send /new followed by what you want drafted, " +
		"then reply with text or a voice note to refine it.",
	Help: "/new <subject> - start a new draft\n" +
		"/set key=value - set a context parameter (locale, age, style, ...)\n" +
		"/draft - show the current draft\n" +
		"/history - show recent generations\n" +
		"/models - show the model cascade\n" +
		"/reset - discard the current draft\n\n" +
		"Any other text or voice message refines the current draft.",
	NotAuthorized:  "🚫 Access denied. Please contact the administrator.",
	ServiceBusy:    "⏳ All models are busy right now. Please try again in a minute.",
	GeneralError:   "❌ An error occurred. Please try again later.",
	NoDraft:        "ℹ️ No draft yet. Start one with /new <subject>.",
	DraftReset:     "🔄 Draft discarded.",
	ProvideSubject: "ℹ️ Please tell me what to draft, e.g. /new photosynthesis for 10 year olds.",
	ContextUsage:   "ℹ️ Usage: /set key=value (for example /set locale=Lagos, Nigeria).",
	Progress:       "📡 Calling model %s (attempt %d/%d)...",
	ServedBy:       "✅ Draft revision %d (model: %s)",
}
