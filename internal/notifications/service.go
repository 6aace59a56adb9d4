package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"intake/internal/config"
)

const userAgent = "intake/1.0"

// Event names an operator alert.
type Event string

const (
	EventQueueBlocked Event = "queue_blocked"
	EventDecision     Event = "decision"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event details. Keys are event specific.
type Payload map[string]any

// Service publishes operator alerts.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		settings:    cfg.Notifications,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		now:         time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	settings    config.Notifications
	dedupWindow time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastBlocked string
	lastSentAt  time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil {
		return nil
	}
	switch event {
	case EventQueueBlocked:
		if !n.settings.QueueBlocked {
			return nil
		}
		if !n.admitBlocked(data) {
			return nil
		}
		return n.send(ctx, formatQueueBlocked(data))
	case EventDecision:
		if !n.settings.Decisions {
			return nil
		}
		return n.send(ctx, formatDecision(data))
	case EventError:
		if !n.settings.Errors {
			return nil
		}
		return n.send(ctx, formatError(data))
	case EventTest:
		return n.send(ctx, payload{
			title:    "Intake - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"intake", "test"},
			priority: "low",
		})
	default:
		return nil
	}
}

// admitBlocked reports whether a queue_blocked alert should go out. The same
// job and error is sent once per dedup window; a zero window sends it once
// until the job or error changes.
func (n *ntfyService) admitBlocked(data Payload) bool {
	key := stringValue(data, "jobId") + "\x00" + stringValue(data, "error")
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if key == n.lastBlocked {
		if n.dedupWindow <= 0 || now.Sub(n.lastSentAt) < n.dedupWindow {
			return false
		}
	}
	n.lastBlocked = key
	n.lastSentAt = now
	return true
}

func formatQueueBlocked(data Payload) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "⛔ Queue blocked at %s", fallback(stringValue(data, "jobId"), "unknown job"))
	if row := stringValue(data, "rowIndex"); row != "" {
		fmt.Fprintf(&b, " (row %s)", row)
	}
	if remaining := stringValue(data, "remaining"); remaining != "" {
		fmt.Fprintf(&b, "\n%s job(s) waiting", remaining)
	}
	if errText := stringValue(data, "error"); errText != "" {
		fmt.Fprintf(&b, "\nError: %s", errText)
	}
	if hint := stringValue(data, "hint"); hint != "" {
		fmt.Fprintf(&b, "\nNext: %s", hint)
	}
	return payload{
		title:    "Intake - Queue Blocked",
		message:  b.String(),
		tags:     []string{"intake", "queue", "blocked"},
		priority: "high",
	}
}

func formatDecision(data Payload) payload {
	decision := fallback(stringValue(data, "decision"), "decided")
	icon := "✅"
	if decision == "denied" {
		icon = "❌"
	}
	message := fmt.Sprintf("%s %s: %s (%s)", icon,
		fallback(stringValue(data, "track"), "application"),
		fallback(stringValue(data, "applicant"), "unknown applicant"),
		decision)
	if source := stringValue(data, "source"); source != "" {
		message += "\nVia: " + source
	}
	return payload{
		title:   "Intake - Decision",
		message: message,
		tags:    []string{"intake", "decision", decision},
	}
}

func formatError(data Payload) payload {
	var b strings.Builder
	b.WriteString("❌ Error")
	if label := stringValue(data, "context"); label != "" {
		b.WriteString(" with ")
		b.WriteString(label)
	}
	b.WriteString(": ")
	b.WriteString(fallback(stringValue(data, "error"), "unknown"))
	return payload{
		title:    "Intake - Error",
		message:  b.String(),
		tags:     []string{"intake", "error", "alert"},
		priority: "high",
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
