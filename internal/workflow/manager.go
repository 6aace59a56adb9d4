package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"intake/internal/config"
	"intake/internal/events"
	"intake/internal/logging"
)

// Submitter accepts scheduled events; the event dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, ev events.Event) (events.Result, error)
}

// Manager runs the scheduler lanes.
type Manager struct {
	cfg        *config.Config
	submitter  Submitter
	logger     *slog.Logger
	retryDelay time.Duration
	now        func() time.Time

	lanes     map[laneKind]*laneState
	laneOrder []laneKind

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLaneInterval overrides a lane interval ("poll" or "sweep").
func WithLaneInterval(name string, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if lane := m.lanes[laneKind(name)]; lane != nil {
			lane.interval = interval
		}
	}
}

// WithErrorRetryDelay overrides the wait after a failed tick.
func WithErrorRetryDelay(delay time.Duration) ManagerOption {
	return func(m *Manager) { m.retryDelay = delay }
}

// NewManager constructs a scheduler. The sweep lane is only registered when
// reminders or the digest are enabled.
func NewManager(cfg *config.Config, submitter Submitter, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		submitter:  submitter,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		retryDelay: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		now:        time.Now,
		lanes:      make(map[laneKind]*laneState),
	}
	m.addLane(lanePoll, events.KindPoll, time.Duration(cfg.Workflow.PollInterval)*time.Second)
	if cfg.Reminders.Enabled || cfg.Digest.Enabled {
		m.addLane(laneSweep, events.KindSweep, time.Duration(cfg.Reminders.SweepInterval)*time.Second)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Manager) addLane(kind laneKind, event events.Kind, interval time.Duration) {
	m.lanes[kind] = &laneState{kind: kind, event: event, interval: interval}
	m.laneOrder = append(m.laneOrder, kind)
}
