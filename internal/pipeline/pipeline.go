package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/logging"
	"intake/internal/metrics"
	"intake/internal/notifications"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/sheet"
	"intake/internal/state"
)

// Pipeline owns ingestion and the post queue drain.
type Pipeline struct {
	cfg      *config.Config
	store    *state.Store
	chat     chat.Client
	sheet    sheet.Reader
	policy   retry.Policy
	custom   bool
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	busy atomic.Bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNotifier sets the operator alert service.
func WithNotifier(n notifications.Service) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithMetrics records pipeline activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRetryPolicy overrides the policy built from config.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy
		p.custom = true
	}
}

// New builds a pipeline.
func New(cfg *config.Config, store *state.Store, client chat.Client, reader sheet.Reader, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		chat:     client,
		sheet:    reader,
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if !p.custom {
		p.policy = retry.FromConfig(cfg.Retry,
			retry.WithLogger(p.logger),
			retry.WithObserver(p.metrics.RateLimited))
	}
	return p
}

// Busy reports whether a drain pass is running.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// PollResult summarizes one ingest plus drain cycle.
type PollResult struct {
	CorrelationID string       `json:"correlationId"`
	Ingest        IngestResult `json:"ingest"`
	Drain         DrainResult  `json:"drain"`
}

// PollOnce ingests new rows and drains the queue. A failed sheet read is
// returned but does not stop the drain, so already queued jobs keep moving.
func (p *Pipeline) PollOnce(ctx context.Context) (PollResult, error) {
	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	logger := logging.WithContext(ctx, p.logger)

	result := PollResult{CorrelationID: correlationID}
	ingest, ingestErr := p.Ingest(ctx)
	result.Ingest = ingest
	if ingestErr != nil {
		if errors.Is(ingestErr, context.Canceled) {
			return result, ingestErr
		}
		category := services.Classify(ingestErr)
		logging.WarnWithContext(logger, "sheet ingest failed; draining existing queue only", "ingest_failed",
			logging.Error(ingestErr),
			logging.String("error_kind", string(category)),
			logging.String(logging.FieldErrorHint, category.Hint()),
			logging.String(logging.FieldImpact, "new form responses are not queued until the next successful poll"),
		)
		if err := p.notifier.Publish(ctx, notifications.EventError, notifications.Payload{"context": "sheet ingest", "error": ingestErr}); err != nil {
			logging.WarnWithContext(logger, "ingest failure notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator was not alerted about the sheet failure"),
			)
		}
	}

	result.Drain = p.ProcessQueuedPostJobs(ctx)
	logger.Info("poll complete",
		logging.String(logging.FieldEventType, "poll_complete"),
		logging.Int("rows", ingest.Rows),
		logging.Int("enqueued", len(ingest.Enqueued)),
		logging.Int("posted", result.Drain.Posted),
		logging.Int("remaining", result.Drain.Remaining),
		logging.Bool("busy", result.Drain.Busy),
	)
	return result, ingestErr
}
