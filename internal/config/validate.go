package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateChat(); err != nil {
		return err
	}
	if err := c.validateSheet(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateTracks(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateChat() error {
	if c.Chat.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("chat.token is required. Set %s env var or edit %s (create with 'intake config init')", defaultChatTokenEnv, defaultPath)
	}
	if c.Chat.AcceptEmoji == c.Chat.DenyEmoji {
		return errors.New("chat.accept_emoji and chat.deny_emoji must differ")
	}
	return nil
}

func (c *Config) validateSheet() error {
	if c.Sheet.Source == "" {
		return fmt.Errorf("sheet.source is required. Set %s env var or point it at a CSV export", defaultSheetSourceEnv)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want %q or %q)", c.Store.Backend, BackendFile, BackendSQLite)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.MinimumWaitMS < 0 {
		return errors.New("retry.minimum_wait_ms must be non-negative")
	}
	if c.Retry.JitterMS < 0 {
		return errors.New("retry.jitter_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Duplicates.LookbackDays < 0 {
		return errors.New("duplicates.lookback_days must be non-negative")
	}
	if c.Reminders.Enabled {
		if c.Reminders.ThresholdHours <= 0 {
			return errors.New("reminders.threshold_hours must be positive")
		}
		if c.Reminders.RepeatHours <= 0 {
			return errors.New("reminders.repeat_hours must be positive")
		}
	}
	if (c.Reminders.Enabled || c.Digest.Enabled) && c.Reminders.SweepInterval <= 0 {
		return errors.New("reminders.sweep_interval must be positive")
	}
	if c.Digest.HourUTC < 0 || c.Digest.HourUTC > 23 {
		return errors.New("digest.hour_utc must be between 0 and 23")
	}
	if c.Digest.Enabled && c.Digest.ChannelID == "" && c.Chat.LogChannelID == "" {
		return errors.New("digest.channel_id (or chat.log_channel_id) must be set when digest.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive when ntfy_topic is set")
	}
	return nil
}

func (c *Config) validateTracks() error {
	keys := make(map[string]struct{}, len(c.Tracks))
	names := make(map[string]string)
	for i, track := range c.Tracks {
		if track.Key == "" {
			return fmt.Errorf("tracks[%d].key must be set", i)
		}
		if _, ok := keys[track.Key]; ok {
			return fmt.Errorf("tracks[%d].key %q is duplicated", i, track.Key)
		}
		keys[track.Key] = struct{}{}
		if track.VoteNumerator < 1 {
			return fmt.Errorf("tracks[%d].vote_numerator must be at least 1", i)
		}
		if track.VoteMinimum < 0 {
			return fmt.Errorf("tracks[%d].vote_minimum must be non-negative", i)
		}
		for _, name := range append([]string{track.Key, track.Label}, track.Aliases...) {
			folded := strings.ToLower(strings.TrimSpace(name))
			if folded == "" {
				continue
			}
			if owner, ok := names[folded]; ok && owner != track.Key {
				return fmt.Errorf("tracks[%d]: name %q already used by track %q", i, name, owner)
			}
			names[folded] = track.Key
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
