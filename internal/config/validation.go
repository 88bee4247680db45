package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/rhythmlogic/gps/internal/cascade"
)

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if !c.Cascade.Primary.Configured() {
		return errors.New("cascade.primary.backend is required")
	}

	seen := make(map[string]struct{}, len(c.Cascade.Candidates))
	primaries := 0
	for _, cand := range c.Cascade.Candidates {
		key := cand.Provider + "/" + cand.ID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate cascade candidate %q for %s provider", cand.ID, cand.Provider)
		}
		seen[key] = struct{}{}
		if cand.Provider == "primary" {
			primaries++
		}
	}
	if primaries == 0 && !c.Cascade.Secondary.Configured() {
		return errors.New("cascade needs at least one primary candidate or a secondary backend")
	}

	if c.Telegram.Enabled && len(c.Telegram.AllowedUserIDs) > 0 && !slices.Contains(c.Telegram.AllowedUserIDs, c.Telegram.AdminUserID) {
		c.Telegram.AllowedUserIDs = append(c.Telegram.AllowedUserIDs, c.Telegram.AdminUserID)
	}

	if c.HTTP.Enabled && len(c.HTTP.APIKeys) == 0 {
		return errors.New("http.api_keys is required when http.enabled is set")
	}

	if !c.Telegram.Enabled && !c.HTTP.Enabled {
		return errors.New("at least one of telegram.enabled or http.enabled must be set")
	}

	return nil
}

// CascadeCandidates converts the configured entries into cascade candidates.
func (c *Config) CascadeCandidates() []cascade.Candidate {
	out := make([]cascade.Candidate, 0, len(c.Cascade.Candidates))
	for _, cand := range c.Cascade.Candidates {
		provider := cascade.Primary
		if cand.Provider == "secondary" {
			provider = cascade.Secondary
		}
		out = append(out, cascade.Candidate{
			ID:       cand.ID,
			Provider: provider,
			Priority: cand.Priority,
		})
	}
	return out
}

// RetryPolicy returns the per-candidate retry policy.
func (c *Config) RetryPolicy() cascade.Policy {
	return cascade.Policy{
		MaxAttempts: c.Cascade.MaxAttempts,
		Backoff:     c.Cascade.Backoff,
	}
}

// IsUserAllowed reports whether a Telegram user may use the bot. The admin is
// always allowed; an empty allow list admits everyone.
func (c *Config) IsUserAllowed(userID int64) bool {
	if userID == c.Telegram.AdminUserID {
		return true
	}
	if len(c.Telegram.AllowedUserIDs) == 0 {
		return true
	}
	return slices.Contains(c.Telegram.AllowedUserIDs, userID)
}
