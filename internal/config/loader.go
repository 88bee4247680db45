package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. GPS_CASCADE_PRIMARY_API_KEY.
const EnvPrefix = "GPS"

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Load loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional; "" searches ./config.yaml)
// 3. GPS_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfg := Default()

	if err := readConfig(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %w", ErrConfiguration, err)
	}

	// mapstructure decodes into the existing slice and would keep trailing defaults.
	if v.IsSet("cascade.candidates") {
		cfg.Cascade.Candidates = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return cfg, nil
}

// Default returns a Config populated with default values only.
func Default() *Config {
	tasks := make(map[string]TaskConfig, len(DefaultTasks))
	for name, task := range DefaultTasks {
		tasks[name] = task
	}

	return &Config{
		Logger: LoggerConfig{
			Level: DefaultLogLevel,
			JSON:  DefaultLogJSON,
		},
		Database: DatabaseConfig{
			Path:                DefaultDBPath,
			GenerationRetention: DefaultGenerationRetention,
			HistoryLimit:        DefaultHistoryLimit,
		},
		HTTP: HTTPConfig{
			Addr:         DefaultHTTPAddr,
			ReadTimeout:  DefaultHTTPReadTimeout,
			WriteTimeout: DefaultHTTPWriteTimeout,
		},
		Cascade: CascadeConfig{
			MaxAttempts:    DefaultMaxAttempts,
			Backoff:        DefaultBackoff,
			RequestTimeout: DefaultRequestTimeout,
			Primary: ProviderConfig{
				Backend:     DefaultPrimaryBackend,
				BaseURL:     DefaultPrimaryBaseURL,
				Referer:     DefaultPrimaryReferer,
				Title:       DefaultPrimaryTitle,
				Temperature: DefaultTemperature,
				Timeout:     DefaultProviderTimeout,
			},
			Secondary: ProviderConfig{
				Temperature: DefaultTemperature,
				Timeout:     DefaultProviderTimeout,
			},
			Candidates: append([]CandidateConfig(nil), DefaultCandidates...),
		},
		Scheduler: SchedulerConfig{Tasks: tasks},
		Messages:  DefaultMessages,
	}
}

func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Missing file is fine, defaults and env still apply.
			return nil
		}
		return err
	}

	return nil
}

// setDefaults registers every leaf key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.generation_retention", DefaultGenerationRetention)
	v.SetDefault("database.history_limit", DefaultHistoryLimit)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("http.api_keys", []string{})
	v.SetDefault("http.read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("http.write_timeout", DefaultHTTPWriteTimeout)

	v.SetDefault("cascade.max_attempts", DefaultMaxAttempts)
	v.SetDefault("cascade.backoff", DefaultBackoff)
	v.SetDefault("cascade.request_timeout", DefaultRequestTimeout)

	v.SetDefault("cascade.primary.backend", DefaultPrimaryBackend)
	v.SetDefault("cascade.primary.api_key", "")
	v.SetDefault("cascade.primary.base_url", DefaultPrimaryBaseURL)
	v.SetDefault("cascade.primary.referer", DefaultPrimaryReferer)
	v.SetDefault("cascade.primary.title", DefaultPrimaryTitle)
	v.SetDefault("cascade.primary.temperature", DefaultTemperature)
	v.SetDefault("cascade.primary.timeout", DefaultProviderTimeout)

	v.SetDefault("cascade.secondary.backend", "")
	v.SetDefault("cascade.secondary.api_key", "")
	v.SetDefault("cascade.secondary.base_url", "")
	v.SetDefault("cascade.secondary.temperature", DefaultTemperature)
	v.SetDefault("cascade.secondary.timeout", DefaultProviderTimeout)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	v.SetDefault("messages.service_busy", DefaultMessages.ServiceBusy)
	v.SetDefault("messages.general_error", DefaultMessages.GeneralError)
	v.SetDefault("messages.no_draft", DefaultMessages.NoDraft)
	v.SetDefault("messages.draft_reset", DefaultMessages.DraftReset)
	v.SetDefault("messages.provide_subject", DefaultMessages.ProvideSubject)
	v.SetDefault("messages.context_usage", DefaultMessages.ContextUsage)
	v.SetDefault("messages.progress", DefaultMessages.Progress)
	v.SetDefault("messages.served_by", DefaultMessages.ServedBy)
}
