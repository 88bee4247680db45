// Package config manages application configuration from config files,
// GPS_* environment variables, and default values.
package config

import (
	"time"
)

// Config is the root configuration of the drafting service.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cascade   CascadeConfig   `mapstructure:"cascade"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"                 validate:"required"`
	// GenerationRetention of zero keeps audit rows forever.
	GenerationRetention time.Duration `mapstructure:"generation_retention" validate:"min=0"`
	HistoryLimit        int           `mapstructure:"history_limit"        validate:"min=1,max=100"`
}

// TelegramConfig holds bot credentials and access control.
type TelegramConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Token          string  `mapstructure:"token"            validate:"required_if=Enabled true"`
	AdminUserID    int64   `mapstructure:"admin_user_id"    validate:"required_if=Enabled true"`
	AllowedUserIDs []int64 `mapstructure:"allowed_user_ids"`
}

// HTTPConfig holds the HTTP API listener settings.
type HTTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"            validate:"required_if=Enabled true"`
	APIKeys        []string      `mapstructure:"api_keys"        validate:"dive,min=16"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"    validate:"min=1s"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"   validate:"min=1s"`
}

// CascadeConfig describes the model fallback sequence and its retry policy.
type CascadeConfig struct {
	MaxAttempts    int               `mapstructure:"max_attempts"    validate:"min=1,max=10"`
	Backoff        time.Duration     `mapstructure:"backoff"         validate:"min=0,max=1m"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout" validate:"min=1s,max=30m"`
	Primary        ProviderConfig    `mapstructure:"primary"`
	Secondary      ProviderConfig    `mapstructure:"secondary"`
	Candidates     []CandidateConfig `mapstructure:"candidates"      validate:"required,min=1,dive"`
}

// ProviderConfig configures one provider backend. Backend names are resolved
// through the providers registry.
type ProviderConfig struct {
	Backend     string        `mapstructure:"backend"`
	APIKey      string        `mapstructure:"api_key"     validate:"required_with=Backend"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=0,max=10m"`
}

// Configured reports whether a backend has been selected.
func (p ProviderConfig) Configured() bool {
	return p.Backend != ""
}

// CandidateConfig is one entry of the cascade.
type CandidateConfig struct {
	ID       string `mapstructure:"id"       validate:"required"`
	Provider string `mapstructure:"provider" validate:"required,oneof=primary secondary"`
	Priority int    `mapstructure:"priority" validate:"min=0"`
}

// SchedulerConfig lists scheduled tasks by registry name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a task on a cron schedule (seconds field optional).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing texts.
type MessagesConfig struct {
	Welcome        string `mapstructure:"welcome"         validate:"required"`
	Help           string `mapstructure:"help"            validate:"required"`
	NotAuthorized  string `mapstructure:"not_authorized"  validate:"required"`
	ServiceBusy    string `mapstructure:"service_busy"    validate:"required"`
	GeneralError   string `mapstructure:"general_error"   validate:"required"`
	NoDraft        string `mapstructure:"no_draft"        validate:"required"`
	DraftReset     string `mapstructure:"draft_reset"     validate:"required"`
	ProvideSubject string `mapstructure:"provide_subject" validate:"required"`
	ContextUsage   string `mapstructure:"context_usage"   validate:"required"`
	Progress       string `mapstructure:"progress"        validate:"required"`
	ServedBy       string `mapstructure:"served_by"       validate:"required"`
}
