package workflow

import (
	"log/slog"
	"time"

	"intake/internal/events"
)

type laneKind string

const (
	lanePoll  laneKind = "poll"
	laneSweep laneKind = "sweep"
)

type laneState struct {
	kind     laneKind
	event    events.Kind
	interval time.Duration
	logger   *slog.Logger

	runs     int
	failures int
	lastRun  time.Time
	lastErr  string
}

// LaneStatus describes one scheduler lane.
type LaneStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRunAt *time.Time    `json:"lastRunAt,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}
