// Package retry wraps chat platform calls with rate-limit aware backoff.
//
// Only rate-limit signals are retried: an error that reports a retry-after
// duration, or one carrying HTTP status 429. Every other error returns
// immediately without sleeping. This is the only place pipeline code waits.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"intake/internal/config"
	"intake/internal/logging"
)

const (
	defaultMaxAttempts = 6
	defaultMinimumWait = 300 * time.Millisecond
	defaultJitter      = 250 * time.Millisecond
)

// RateLimited is implemented by errors that carry a server supplied wait.
// ok reports whether the error is a rate-limit signal at all.
type RateLimited interface {
	RetryAfter() (wait time.Duration, ok bool)
}

type statusCoder interface {
	StatusCode() int
}

// RateLimitError is a generic rate-limit signal for collaborators that do not
// have their own error type.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.Wait)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryAfter implements RateLimited.
func (e *RateLimitError) RetryAfter() (time.Duration, bool) { return e.Wait, true }

// Policy bounds the retry loop. Build one with New or FromConfig; the zero
// value allows the default attempt count with no wait floor or jitter.
type Policy struct {
	maxAttempts int
	minimumWait time.Duration
	jitter      time.Duration
	sleeper     func(time.Duration)
	observer    func(label string)
	logger      *slog.Logger
}

// Option customizes a Policy.
type Option func(*Policy)

// WithMaxAttempts overrides the total number of attempts (defaults to 6).
func WithMaxAttempts(attempts int) Option {
	return func(p *Policy) { p.maxAttempts = attempts }
}

// WithMinimumWait overrides the floor applied to every rate-limit wait.
func WithMinimumWait(wait time.Duration) Option {
	return func(p *Policy) { p.minimumWait = wait }
}

// WithJitter overrides the constant added to every wait.
func WithJitter(jitter time.Duration) Option {
	return func(p *Policy) { p.jitter = jitter }
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(p *Policy) { p.sleeper = sleeper }
}

// WithObserver registers a callback invoked before every retry sleep.
func WithObserver(observer func(label string)) Option {
	return func(p *Policy) { p.observer = observer }
}

// WithLogger attaches a logger for retry notices.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// New builds a policy from defaults plus options.
func New(opts ...Option) Policy {
	p := Policy{
		maxAttempts: defaultMaxAttempts,
		minimumWait: defaultMinimumWait,
		jitter:      defaultJitter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// FromConfig builds a policy from the [retry] config section.
func FromConfig(cfg config.Retry, opts ...Option) Policy {
	base := []Option{
		WithMaxAttempts(cfg.MaxAttempts),
		WithMinimumWait(time.Duration(cfg.MinimumWaitMS) * time.Millisecond),
		WithJitter(time.Duration(cfg.JitterMS) * time.Millisecond),
	}
	return New(append(base, opts...)...)
}

// MaxAttempts reports the effective attempt bound.
func (p Policy) MaxAttempts() int {
	if p.maxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.maxAttempts
}

// Wait returns the sleep applied for a rate-limit signal carrying retryAfter:
// max(minimum wait, retryAfter) plus the jitter constant.
func (p Policy) Wait(retryAfter time.Duration) time.Duration {
	wait := p.minimumWait
	if retryAfter > wait {
		wait = retryAfter
	}
	return wait + p.jitter
}

// Do runs op until it succeeds, returns a non rate-limit error, or the attempt
// bound is reached. The label names the operation in logs and metrics.
func Do[T any](ctx context.Context, p Policy, label string, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		retryAfter, limited := RetryAfter(err)
		if !limited {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		wait := p.Wait(retryAfter)
		if p.observer != nil {
			p.observer(label)
		}
		if p.logger != nil {
			p.logger.Debug("rate limited; backing off",
				logging.String("label", label),
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait))
		}
		if err := p.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%s: rate limited after %d attempts: %w", label, attempts, lastErr)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, label string, op func(context.Context) error) error {
	_, err := Do(ctx, p, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RetryAfter reports whether err is a rate-limit signal and the wait it carries.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var limited RateLimited
	if errors.As(err, &limited) {
		if wait, ok := limited.RetryAfter(); ok {
			if wait < 0 {
				wait = 0
			}
			return wait, true
		}
	}
	var coder statusCoder
	if errors.As(err, &coder) && coder.StatusCode() == http.StatusTooManyRequests {
		return 0, true
	}
	return 0, false
}

// ParseRetryAfter parses a Retry-After value given in (possibly fractional)
// seconds or as an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, true
		}
		return delay, true
	}
	return 0, false
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
