package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Store selects the persistence backend for the state document.
type Store struct {
	Backend string `toml:"backend"` // "file" or "sqlite"
}

// Sheet locates the form response export.
type Sheet struct {
	Source         string `toml:"source"` // local CSV path or published CSV URL
	RequestTimeout int    `toml:"request_timeout"`
}

// Chat contains chat platform credentials and shared channel ids.
type Chat struct {
	BaseURL           string `toml:"base_url"`
	Token             string `toml:"token"`
	GuildID           string `toml:"guild_id"`
	LogChannelID      string `toml:"log_channel_id"`
	AnnounceChannelID string `toml:"announce_channel_id"`
	AcceptEmoji       string `toml:"accept_emoji"`
	DenyEmoji         string `toml:"deny_emoji"`
	RequestTimeout    int    `toml:"request_timeout"`
}

// Workflow contains daemon timing.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HistoryScanLimit   int `toml:"history_scan_limit"`
}

// Retry tunes the rate-limit backoff applied to every chat call.
type Retry struct {
	MaxAttempts   int `toml:"max_attempts"`
	MinimumWaitMS int `toml:"minimum_wait_ms"`
	JitterMS      int `toml:"jitter_ms"`
}

// Duplicates tunes cross-application duplicate detection.
type Duplicates struct {
	LookbackDays int `toml:"lookback_days"`
}

// Reminders contains the pending-application reminder schedule.
type Reminders struct {
	Enabled              bool `toml:"enabled"`
	ThresholdHours       int  `toml:"threshold_hours"`
	RepeatHours          int  `toml:"repeat_hours"`
	SweepInterval        int  `toml:"sweep_interval"`
	ReviewersPerReminder int  `toml:"reviewers_per_reminder"`
}

// Digest contains the once-daily summary schedule.
type Digest struct {
	Enabled   bool   `toml:"enabled"`
	HourUTC   int    `toml:"hour_utc"`
	ChannelID string `toml:"channel_id"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	QueueBlocked       bool   `toml:"queue_blocked"`
	Decisions          bool   `toml:"decisions"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Templates holds the outbound message templates. Placeholders: {applicant},
// {track}, {reason}, {actor}, {link}.
type Templates struct {
	DenyDM             string `toml:"deny_dm"`
	AcceptAnnouncement string `toml:"accept_announcement"`
	ReopenNotice       string `toml:"reopen_notice"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics toggles the Prometheus endpoint on the API server.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Track describes one application category and where its posts go.
type Track struct {
	Key             string   `toml:"key"`
	Label           string   `toml:"label"`
	Aliases         []string `toml:"aliases"`
	ChannelID       string   `toml:"channel_id"`
	ApprovedRoleIDs []string `toml:"approved_role_ids"`
	ReviewerIDs     []string `toml:"reviewer_ids"`
	VoteNumerator   int      `toml:"vote_numerator"`
	VoteDenominator int      `toml:"vote_denominator"`
	VoteMinimum     int      `toml:"vote_minimum"`
}

// Config encapsulates all configuration values for intake.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories, API bind address and token
//   - Store: state document backend (file or sqlite)
//   - Sheet: form response export location
//   - Chat: bot credentials, guild, shared channels, vote emoji
//   - Workflow: poll interval and history scan depth
//   - Retry: rate-limit backoff bounds
//   - Duplicates: duplicate detection lookback
//   - Reminders, Digest: the sweep schedule
//   - Notifications: ntfy operator alerts
//   - Templates: outbound message wording
//   - Tracks: per-track destinations, roles, reviewers, vote rules
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Sheet         Sheet         `toml:"sheet"`
	Chat          Chat          `toml:"chat"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	Duplicates    Duplicates    `toml:"duplicates"`
	Reminders     Reminders     `toml:"reminders"`
	Digest        Digest        `toml:"digest"`
	Notifications Notifications `toml:"notifications"`
	Templates     Templates     `toml:"templates"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Tracks        []Track       `toml:"tracks"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("intake.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StatePath returns the location of the persisted state document for the
// configured backend.
func (c *Config) StatePath() string {
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(c.Paths.StateDir, "state.db")
	}
	return filepath.Join(c.Paths.StateDir, "state.json")
}

// LockPath returns the single-writer lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "intake.lock")
}

// PollInterval returns the ingest+drain cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// ErrorRetryInterval returns the delay before the next poll after a blocked drain.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// SweepInterval returns the reminder and digest sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Reminders.SweepInterval) * time.Second
}

// Track returns the configured track with the given canonical key.
func (c *Config) Track(key string) (Track, bool) {
	for _, track := range c.Tracks {
		if track.Key == key {
			return track, true
		}
	}
	return Track{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
