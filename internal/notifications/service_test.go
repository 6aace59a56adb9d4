package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"intake/internal/config"
	"intake/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventQueueBlocked, notifications.Payload{"jobId": "job-000001"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "queue blocked",
			event: notifications.EventQueueBlocked,
			payload: notifications.Payload{
				"jobId":     "job-000001",
				"rowIndex":  2,
				"remaining": 2,
				"error":     "track artist has no destination",
				"hint":      "fix the track",
			},
			expectTitle:    "Intake - Queue Blocked",
			expectMessage:  "⛔ Queue blocked at job-000001 (row 2)\n2 job(s) waiting\nError: track artist has no destination\nNext: fix the track",
			expectTags:     "intake,queue,blocked",
			expectPriority: "high",
		},
		{
			name:  "decision",
			event: notifications.EventDecision,
			payload: notifications.Payload{
				"track":     "Tester",
				"applicant": "Alice",
				"decision":  "denied",
				"source":    "vote",
			},
			expectTitle:   "Intake - Decision",
			expectMessage: "❌ Tester: Alice (denied)\nVia: vote",
			expectTags:    "intake,decision,denied",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "poll",
				"error":   errors.New("sheet unavailable"),
			},
			expectTitle:    "Intake - Error",
			expectMessage:  "❌ Error with poll: sheet unavailable",
			expectTags:     "intake,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Intake - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "intake,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Decisions = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestQueueBlockedAlertsAreDeduplicated(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	blocked := notifications.Payload{"jobId": "job-000001", "error": "missing destination"}
	for range 3 {
		if err := svc.Publish(ctx, notifications.EventQueueBlocked, blocked); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 alert for repeated block, got %d", got)
	}

	changed := notifications.Payload{"jobId": "job-000001", "error": "http 403"}
	if err := svc.Publish(ctx, notifications.EventQueueBlocked, changed); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a new alert when the error changes, got %d", got)
	}
}

func TestDisabledEventsAreSuppressed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.QueueBlocked = false
	cfg.Notifications.Decisions = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventQueueBlocked, notifications.EventDecision, notifications.EventError, "unknown"} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}
