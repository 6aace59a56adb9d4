package dedup

import (
	"intake/internal/state"
)

// Seen tracks which rows have already been turned into jobs or applications.
type Seen struct {
	keys map[string]struct{}
	rows map[int]struct{}
}

// NewSeen indexes every queued job, recorded application and cleared row in doc.
func NewSeen(doc *state.Document) *Seen {
	s := &Seen{
		keys: make(map[string]struct{}),
		rows: make(map[int]struct{}),
	}
	for _, job := range doc.PostJobs {
		s.Add(job.RowIndex, job.ResponseKey)
	}
	for _, app := range doc.Applications {
		s.Add(app.RowIndex, app.ResponseKey)
	}
	for _, cleared := range doc.ClearedRows {
		s.Add(cleared.RowIndex, cleared.ResponseKey)
	}
	return s
}

// Add records a row. Keyed rows are tracked by key only.
func (s *Seen) Add(rowIndex int, responseKey string) {
	if responseKey != "" {
		s.keys[responseKey] = struct{}{}
		return
	}
	if rowIndex > 0 {
		s.rows[rowIndex] = struct{}{}
	}
}

// Contains reports whether the row was already processed. The response key is
// checked when present; otherwise the row index is.
func (s *Seen) Contains(rowIndex int, responseKey string) bool {
	if responseKey != "" {
		_, ok := s.keys[responseKey]
		return ok
	}
	_, ok := s.rows[rowIndex]
	return ok
}
