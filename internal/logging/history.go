package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one captured log record as served by the control API.
type Event struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	ApplicationID string            `json:"application_id,omitempty"`
	Track         string            `json:"track,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// History keeps the most recent events in a bounded ring.
type History struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	nextSeq  uint64
}

// NewHistory constructs a history buffer holding up to capacity events.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 500
	}
	return &History{capacity: capacity}
}

// Append records an event, assigning its sequence number.
func (h *History) Append(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.events) == h.capacity {
		copy(h.events, h.events[1:])
		h.events = h.events[:h.capacity-1]
	}
	h.events = append(h.events, evt)
}

// Since returns up to limit events with a sequence greater than since, oldest first.
func (h *History) Since(since uint64, limit int) []Event {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, 0, len(h.events))
	for _, evt := range h.events {
		if evt.Sequence > since {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Handler returns a slog handler that records into the history at or above level.
func (h *History) Handler(level slog.Level) slog.Handler {
	return &historyHandler{history: h, level: level}
}

type historyHandler struct {
	history *History
	level   slog.Level
	attrs   []field
	groups  []string
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *historyHandler) Handle(_ context.Context, record slog.Record) error {
	evt := Event{
		Timestamp: record.Time.UTC(),
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	fields := append([]field(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendAttr(fields, h.groups, attr)
		return true
	})
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			evt.Component = f.value.String()
		case FieldJobID:
			evt.JobID = f.value.String()
		case FieldApplicationID:
			evt.ApplicationID = f.value.String()
		case FieldTrack:
			evt.Track = f.value.String()
		case FieldCorrelationID:
			evt.CorrelationID = f.value.String()
		default:
			if evt.Fields == nil {
				evt.Fields = make(map[string]string)
			}
			evt.Fields[f.key] = formatValue(f.value)
		}
	}
	h.history.Append(evt)
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]field(nil), h.attrs...)
	for _, attr := range attrs {
		clone.attrs = appendAttr(clone.attrs, h.groups, attr)
	}
	return &clone
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
