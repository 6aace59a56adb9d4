package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/services"
)

// Start begins background scheduling. Every lane ticks once immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.submitter == nil {
		m.mu.Unlock()
		return errors.New("workflow submitter not configured")
	}
	lanes := make([]*laneState, 0, len(m.laneOrder))
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		if lane == nil || lane.interval <= 0 {
			continue
		}
		lane.logger = m.logger.With(logging.String("lane", string(lane.kind)))
		lanes = append(lanes, lane)
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow lanes not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, lane := range lanes {
		go m.runLane(runCtx, lane)
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := m.submitter.Submit(ctx, events.Event{Kind: lane.event})
		if err == nil {
			err = laneFailure(result)
		}
		m.recordRun(lane, err)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, events.ErrStopped) {
				return
			}
			m.handleLaneError(ctx, lane, err)
			continue
		}
		m.wait(ctx, lane.interval)
	}
}

// laneFailure turns a blocked queue into a lane error so Status shows it.
func laneFailure(result events.Result) error {
	if result.Poll != nil && result.Poll.Drain.FailedJobID != "" {
		return fmt.Errorf("queue blocked at %s: %s", result.Poll.Drain.FailedJobID, result.Poll.Drain.FailedError)
	}
	return nil
}

func (m *Manager) handleLaneError(ctx context.Context, lane *laneState, err error) {
	m.setLastError(err)
	category := services.Classify(err)
	logging.WarnWithContext(lane.logger, "scheduled run failed; backing off", "lane_failed",
		logging.Error(err),
		logging.String("error_kind", string(category)),
		logging.String(logging.FieldErrorHint, category.Hint()),
		logging.Duration("retry_in", m.retryDelay),
	)
	delay := m.retryDelay
	if delay <= 0 {
		delay = lane.interval
	}
	m.wait(ctx, delay)
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
