package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"intake/internal/config"
	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/metrics"
	"intake/internal/preflight"
	"intake/internal/state"
	"intake/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *state.Store
	dispatcher *events.Dispatcher
	workflow   *workflow.Manager
	history    *logging.History
	metrics    *metrics.Metrics
	busy       func() bool
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHistory serves captured log events on /api/logs.
func WithHistory(history *logging.History) Option {
	return func(d *Daemon) { d.history = history }
}

// WithMetrics mounts the Prometheus handler when metrics are enabled.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithBusy reports whether a drain pass is running.
func WithBusy(busy func() bool) Option {
	return func(d *Daemon) { d.busy = busy }
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	PID        int
	StatePath  string
	LockPath   string
	Revision   int64
	UpdatedAt  time.Time
	QueueDepth int
	Blocked    *state.PostJob
	Busy       bool
	Pending    int
	Counters   state.Counters
	Workflow   workflow.StatusSummary
	Checks     []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *state.Store, dispatcher *events.Dispatcher, wf *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || dispatcher == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, dispatcher, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "intaked.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		dispatcher: dispatcher,
		workflow:   wf,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d.routes(), logger)
	return d, nil
}

// Start acquires the daemon lock and launches the dispatcher, the scheduler,
// and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another intake daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.dispatcher.Start(d.ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abort()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abort()
		return err
	}

	d.running.Store(true)
	d.logger.Info("intake daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("state", d.store.Path()),
	)
	return nil
}

func (d *Daemon) abort() {
	d.dispatcher.Stop()
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock. The
// scheduler stops before the dispatcher so no lane submits into a closed queue.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.workflow.Stop()
	d.dispatcher.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldImpact, "the next start may report another instance running"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("intake daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit routes an event through the dispatcher.
func (d *Daemon) Submit(ctx context.Context, ev events.Event) (events.Result, error) {
	return d.dispatcher.Submit(ctx, ev)
}

// Snapshot returns a copy of the current state document.
func (d *Daemon) Snapshot() *state.Document {
	return d.store.Snapshot()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	doc := d.store.Snapshot()
	jobs := doc.SortedJobs()
	status := Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		StatePath:  d.store.Path(),
		LockPath:   d.lockPath,
		Revision:   doc.Revision,
		UpdatedAt:  doc.UpdatedAt,
		QueueDepth: len(jobs),
		Pending:    len(doc.ApplicationsByStatus(state.StatusPending)),
		Counters:   doc.Counters,
		Workflow:   d.workflow.Status(),
		Checks:     preflight.LocalChecks(d.cfg),
	}
	if len(jobs) > 0 && jobs[0].Blocked() {
		head := jobs[0]
		status.Blocked = &head
	}
	if d.busy != nil {
		status.Busy = d.busy()
	}
	return status
}
