package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeSheet()
	c.normalizeChat()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeTracks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv(defaultAPITokenEnv); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
}

func (c *Config) normalizeSheet() {
	c.Sheet.Source = strings.TrimSpace(c.Sheet.Source)
	if c.Sheet.Source == "" {
		if value, ok := os.LookupEnv(defaultSheetSourceEnv); ok {
			c.Sheet.Source = strings.TrimSpace(value)
		}
	}
	if c.Sheet.Source != "" && !isURL(c.Sheet.Source) {
		if expanded, err := expandPath(c.Sheet.Source); err == nil {
			c.Sheet.Source = expanded
		}
	}
	if c.Sheet.RequestTimeout <= 0 {
		c.Sheet.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeChat() {
	c.Chat.Token = strings.TrimSpace(c.Chat.Token)
	if c.Chat.Token == "" {
		if value, ok := os.LookupEnv(defaultChatTokenEnv); ok {
			c.Chat.Token = strings.TrimSpace(value)
		}
	}
	c.Chat.BaseURL = strings.TrimRight(strings.TrimSpace(c.Chat.BaseURL), "/")
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = defaultChatBaseURL
	}
	c.Chat.GuildID = strings.TrimSpace(c.Chat.GuildID)
	c.Chat.LogChannelID = strings.TrimSpace(c.Chat.LogChannelID)
	c.Chat.AnnounceChannelID = strings.TrimSpace(c.Chat.AnnounceChannelID)
	if strings.TrimSpace(c.Chat.AcceptEmoji) == "" {
		c.Chat.AcceptEmoji = defaultAcceptEmoji
	}
	if strings.TrimSpace(c.Chat.DenyEmoji) == "" {
		c.Chat.DenyEmoji = defaultDenyEmoji
	}
	if c.Chat.RequestTimeout <= 0 {
		c.Chat.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.HistoryScanLimit <= 0 {
		c.Workflow.HistoryScanLimit = defaultHistoryScanLimit
	}
	if c.Workflow.HistoryScanLimit > 100 {
		c.Workflow.HistoryScanLimit = 100
	}
	if c.Reminders.ReviewersPerReminder <= 0 {
		c.Reminders.ReviewersPerReminder = defaultReviewersPerReminder
	}
	c.Digest.ChannelID = strings.TrimSpace(c.Digest.ChannelID)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv(defaultNtfyTopicEnvName); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeTracks() {
	for i := range c.Tracks {
		track := &c.Tracks[i]
		track.Key = strings.ToLower(strings.TrimSpace(track.Key))
		track.Label = strings.TrimSpace(track.Label)
		if track.Label == "" {
			track.Label = track.Key
		}
		track.ChannelID = strings.TrimSpace(track.ChannelID)
		track.Aliases = compactStrings(track.Aliases)
		track.ApprovedRoleIDs = compactStrings(track.ApprovedRoleIDs)
		track.ReviewerIDs = compactStrings(track.ReviewerIDs)
		if track.VoteNumerator == 0 && track.VoteDenominator == 0 {
			track.VoteNumerator = defaultVoteNumerator
			track.VoteDenominator = defaultVoteDenominator
		}
		if track.VoteDenominator < track.VoteNumerator {
			track.VoteDenominator = track.VoteNumerator
		}
		if track.VoteMinimum == 0 {
			track.VoteMinimum = defaultVoteMinimum
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func compactStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func isURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
