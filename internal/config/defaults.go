package config

const (
	defaultConfigPath           = "~/.config/intake/config.toml"
	defaultStateDir             = "~/.local/share/intake"
	defaultLogDir               = "~/.local/share/intake/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultChatBaseURL          = "https://discord.com/api/v10"
	defaultAcceptEmoji          = "✅"
	defaultDenyEmoji            = "❌"
	defaultRequestTimeout       = 15
	defaultPollInterval         = 60
	defaultErrorRetryInterval   = 300
	defaultHistoryScanLimit     = 50
	defaultRetryMaxAttempts     = 6
	defaultRetryMinimumWaitMS   = 300
	defaultRetryJitterMS        = 250
	defaultLookbackDays         = 30
	defaultReminderThreshold    = 24
	defaultReminderRepeat       = 12
	defaultSweepInterval        = 900
	defaultReviewersPerReminder = 2
	defaultDigestHourUTC        = 14
	defaultNotifyTimeout        = 10
	defaultNotifyDedupWindow    = 600
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultVoteNumerator        = 2
	defaultVoteDenominator      = 3
	defaultVoteMinimum          = 1

	defaultDenyTemplate     = "Hi {applicant}, thank you for applying for {track}. We are not moving forward with your application at this time.{reason}"
	defaultAcceptTemplate   = "Please welcome {applicant} to the {track} team!"
	defaultReopenTemplate   = "This {track} application was reopened by {actor}.{reason}"
	defaultChatTokenEnv     = "INTAKE_CHAT_TOKEN"
	defaultAPITokenEnv      = "INTAKE_API_TOKEN"
	defaultSheetSourceEnv   = "INTAKE_SHEET_SOURCE"
	defaultNtfyTopicEnvName = "INTAKE_NTFY_TOPIC"
)

const (
	// BackendFile stores the document as JSON with write-temp-then-rename.
	BackendFile = "file"
	// BackendSQLite stores the document as a single row in a SQLite database.
	BackendSQLite = "sqlite"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Store: Store{Backend: BackendFile},
		Sheet: Sheet{RequestTimeout: defaultRequestTimeout},
		Chat: Chat{
			BaseURL:        defaultChatBaseURL,
			AcceptEmoji:    defaultAcceptEmoji,
			DenyEmoji:      defaultDenyEmoji,
			RequestTimeout: defaultRequestTimeout,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HistoryScanLimit:   defaultHistoryScanLimit,
		},
		Retry: Retry{
			MaxAttempts:   defaultRetryMaxAttempts,
			MinimumWaitMS: defaultRetryMinimumWaitMS,
			JitterMS:      defaultRetryJitterMS,
		},
		Duplicates: Duplicates{LookbackDays: defaultLookbackDays},
		Reminders: Reminders{
			Enabled:              true,
			ThresholdHours:       defaultReminderThreshold,
			RepeatHours:          defaultReminderRepeat,
			SweepInterval:        defaultSweepInterval,
			ReviewersPerReminder: defaultReviewersPerReminder,
		},
		Digest: Digest{HourUTC: defaultDigestHourUTC},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			QueueBlocked:       true,
			Decisions:          false,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Templates: Templates{
			DenyDM:             defaultDenyTemplate,
			AcceptAnnouncement: defaultAcceptTemplate,
			ReopenNotice:       defaultReopenTemplate,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{Enabled: true},
	}
}
