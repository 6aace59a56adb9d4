package workflow

// StatusSummary represents lightweight scheduler diagnostics.
type StatusSummary struct {
	Running   bool         `json:"running"`
	LastError string       `json:"lastError,omitempty"`
	Lanes     []LaneStatus `json:"lanes"`
}

// Status returns the latest scheduler information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		status := LaneStatus{
			Name:      string(lane.kind),
			Interval:  lane.interval,
			Runs:      lane.runs,
			Failures:  lane.failures,
			LastError: lane.lastErr,
		}
		if !lane.lastRun.IsZero() {
			at := lane.lastRun
			status.LastRunAt = &at
		}
		summary.Lanes = append(summary.Lanes, status)
	}
	return summary
}

func (m *Manager) recordRun(lane *laneState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane.runs++
	lane.lastRun = m.now().UTC()
	if err != nil {
		lane.failures++
		lane.lastErr = err.Error()
		return
	}
	lane.lastErr = ""
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
