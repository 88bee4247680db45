package config

import (
	"log/slog"
)

// LogValue implements slog.LogValuer. Credentials are reported only as set/unset.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log_level", c.Logger.Level),
		slog.String("db_path", c.Database.Path),
		slog.Bool("telegram", c.Telegram.Enabled),
		slog.Bool("http", c.HTTP.Enabled),
		slog.String("http_addr", c.HTTP.Addr),
		slog.Int("http_api_keys", len(c.HTTP.APIKeys)),
		slog.Int("max_attempts", c.Cascade.MaxAttempts),
		slog.Duration("backoff", c.Cascade.Backoff),
		slog.String("primary_backend", c.Cascade.Primary.Backend),
		slog.Bool("primary_key_set", c.Cascade.Primary.APIKey != ""),
		slog.String("secondary_backend", c.Cascade.Secondary.Backend),
		slog.Bool("secondary_key_set", c.Cascade.Secondary.APIKey != ""),
		slog.Int("candidates", len(c.Cascade.Candidates)),
	)
}
