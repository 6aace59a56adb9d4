package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/daemon"
	"intake/internal/decision"
	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/metrics"
	"intake/internal/notifications"
	"intake/internal/pipeline"
	"intake/internal/preflight"
	"intake/internal/reminders"
	"intake/internal/retry"
	"intake/internal/sheet"
	"intake/internal/state"
	"intake/internal/workflow"
)

// historyCapacity bounds the in-memory log events served on /api/logs.
const historyCapacity = 2000

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the intake daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "intake.log")
	base, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	history := logging.NewHistory(historyCapacity)
	logger := logging.TeeLogger(base, history.Handler(slog.LevelInfo))

	pidPath := filepath.Join(cfg.Paths.StateDir, "intaked.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := state.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	if err := store.Update(signalCtx, func(doc *state.Document) error {
		doc.SyncTracks(cfg.Tracks)
		return nil
	}); err != nil {
		_ = store.Close()
		return fmt.Errorf("sync tracks: %w", err)
	}

	client := chat.NewConfiguredClient(cfg.Chat)
	reader := sheet.NewConfiguredReader(cfg.Sheet)
	logPreflight(signalCtx, logger, cfg, reader, client)

	m := metrics.New()
	notifier := notifications.NewService(cfg)
	policy := retry.FromConfig(cfg.Retry,
		retry.WithLogger(logger),
		retry.WithObserver(func(label string) { m.RateLimited(label) }),
	)

	posting := pipeline.New(cfg, store, client, reader, logger,
		pipeline.WithNotifier(notifier),
		pipeline.WithMetrics(m),
		pipeline.WithRetryPolicy(policy),
	)
	machine := decision.New(cfg, store, client, logger,
		decision.WithNotifier(notifier),
		decision.WithMetrics(m),
		decision.WithRetryPolicy(policy),
	)
	sweeper := reminders.New(cfg, store, client, logger,
		reminders.WithMetrics(m),
		reminders.WithRetryPolicy(policy),
	)
	dispatcher := events.New(posting, machine, sweeper, logger,
		events.WithVoteEmoji(cfg.Chat.AcceptEmoji, cfg.Chat.DenyEmoji),
	)
	scheduler := workflow.NewManager(cfg, dispatcher, logger)

	d, err := daemon.New(cfg, store, dispatcher, scheduler, logger,
		daemon.WithHistory(history),
		daemon.WithMetrics(m),
		daemon.WithBusy(posting.Busy),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api_bind address"),
			logging.String(logging.FieldImpact, "no responses are posted until the daemon starts"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("intake daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logPreflight records every failing check once at startup. Failures are not
// fatal: a misrouted track blocks only its own jobs.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, reader sheet.Reader, identity preflight.Identity) {
	results := preflight.RunAll(ctx, cfg, reader, identity)
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "related operations fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart, or replay the queue once resolved"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
