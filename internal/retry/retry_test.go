package retry_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"intake/internal/config"
	"intake/internal/retry"
)

type statusError struct{ code int }

func (e statusError) Error() string   { return http.StatusText(e.code) }
func (e statusError) StatusCode() int { return e.code }

func recordingPolicy(sleeps *[]time.Duration, opts ...retry.Option) retry.Policy {
	base := []retry.Option{retry.WithSleeper(func(d time.Duration) { *sleeps = append(*sleeps, d) })}
	return retry.New(append(base, opts...)...)
}

func TestDoRetriesRateLimitThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	policy := recordingPolicy(&sleeps)

	calls := 0
	got, err := retry.Do(context.Background(), policy, "send message", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &retry.RateLimitError{Wait: 2 * time.Second}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", got, calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected two sleeps, got %v", sleeps)
	}
	want := 2*time.Second + 250*time.Millisecond
	for _, d := range sleeps {
		if d != want {
			t.Fatalf("expected sleep %s, got %s", want, d)
		}
	}
}

func TestDoAppliesMinimumWait(t *testing.T) {
	var sleeps []time.Duration
	policy := recordingPolicy(&sleeps, retry.WithJitter(0))

	calls := 0
	_, err := retry.Do(context.Background(), policy, "react", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, statusError{code: http.StatusTooManyRequests}
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 300*time.Millisecond {
		t.Fatalf("expected minimum wait of 300ms, got %v", sleeps)
	}
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	var sleeps []time.Duration
	policy := recordingPolicy(&sleeps)
	boom := errors.New("forbidden")

	calls := 0
	err := retry.Run(context.Background(), policy, "add role", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 || len(sleeps) != 0 {
		t.Fatalf("expected single call without sleep, got %d calls %v sleeps", calls, sleeps)
	}

	err = retry.Run(context.Background(), policy, "add role", func(context.Context) error {
		return statusError{code: http.StatusInternalServerError}
	})
	if err == nil || len(sleeps) != 0 {
		t.Fatalf("expected 500 to propagate without sleeping, got %v / %v", err, sleeps)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	var sleeps []time.Duration
	policy := recordingPolicy(&sleeps, retry.WithMaxAttempts(3))

	calls := 0
	var last *retry.RateLimitError
	err := retry.Run(context.Background(), policy, "thread", func(context.Context) error {
		calls++
		last = &retry.RateLimitError{Wait: time.Duration(calls) * time.Second}
		return last
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 || len(sleeps) != 2 {
		t.Fatalf("expected 3 calls and 2 sleeps, got %d / %v", calls, sleeps)
	}
	var got *retry.RateLimitError
	if !errors.As(err, &got) || got != last {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.New(retry.WithSleeper(func(time.Duration) { cancel() }))

	calls := 0
	err := retry.Run(ctx, policy, "send", func(context.Context) error {
		calls++
		return &retry.RateLimitError{Wait: time.Second}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call before cancel, got %d", calls)
	}
}

func TestObserverSeesEachRetry(t *testing.T) {
	var labels []string
	policy := retry.New(
		retry.WithSleeper(func(time.Duration) {}),
		retry.WithObserver(func(label string) { labels = append(labels, label) }),
	)
	calls := 0
	_ = retry.Run(context.Background(), policy, "fetch reactions", func(context.Context) error {
		calls++
		if calls < 3 {
			return &retry.RateLimitError{}
		}
		return nil
	})
	if len(labels) != 2 || labels[0] != "fetch reactions" {
		t.Fatalf("unexpected observer calls: %v", labels)
	}
}

func TestFromConfig(t *testing.T) {
	policy := retry.FromConfig(config.Retry{MaxAttempts: 2, MinimumWaitMS: 1000, JitterMS: 5})
	if policy.MaxAttempts() != 2 {
		t.Fatalf("unexpected attempts %d", policy.MaxAttempts())
	}
	if got := policy.Wait(0); got != time.Second+5*time.Millisecond {
		t.Fatalf("unexpected wait %s", got)
	}
	if got := policy.Wait(3 * time.Second); got != 3*time.Second+5*time.Millisecond {
		t.Fatalf("unexpected wait %s", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, false},
		{"2", 2 * time.Second, true},
		{"1.5", 1500 * time.Millisecond, true},
		{"-1", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		got, ok := retry.ParseRetryAfter(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseRetryAfter(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got, ok := retry.ParseRetryAfter(future); !ok || got <= 0 {
		t.Fatalf("expected positive delay for HTTP date, got %s %v", got, ok)
	}
}
