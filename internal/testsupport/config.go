package testsupport

import (
	"path/filepath"
	"testing"

	"intake/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry waits are zeroed so rate-limit paths do not slow tests down.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Chat.Token = "test-token"
	cfgVal.Chat.GuildID = "guild-1"
	cfgVal.Chat.LogChannelID = "log-channel"
	cfgVal.Chat.AnnounceChannelID = "announce-channel"
	cfgVal.Sheet.Source = filepath.Join(base, "responses.csv")
	cfgVal.Retry.MinimumWaitMS = 0
	cfgVal.Retry.JitterMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTrack appends a track with a 2/3 (min 1) vote rule.
func WithTrack(key, label, channelID string, aliases ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracks = append(b.cfg.Tracks, config.Track{
			Key:             key,
			Label:           label,
			Aliases:         aliases,
			ChannelID:       channelID,
			VoteNumerator:   2,
			VoteDenominator: 3,
			VoteMinimum:     1,
		})
	}
}

// WithBackend selects the store backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(cfg *config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
