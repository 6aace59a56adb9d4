// Package metrics exposes intake's Prometheus collectors.
//
// Collectors live on a private registry so tests and multiple daemons in one
// process never collide on global registration. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and every collector.
type Metrics struct {
	registry *prometheus.Registry

	JobsEnqueued      prometheus.Counter
	Posts             *prometheus.CounterVec
	QueueBlocked      prometheus.Counter
	QueueDepth        prometheus.Gauge
	Decisions         *prometheus.CounterVec
	RateLimitRetries  *prometheus.CounterVec
	RemindersSent     prometheus.Counter
	SideEffectFailure *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{Name: "intake_jobs_enqueued_total", Help: "Spreadsheet rows queued for posting"}),
		Posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_posts_total",
			Help: "Application posts by track and outcome (created or reused)",
		}, []string{"track", "outcome"}),
		QueueBlocked: prometheus.NewCounter(prometheus.CounterOpts{Name: "intake_queue_blocked_total", Help: "Drain passes halted by a failing head job"}),
		QueueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "intake_queue_depth", Help: "Jobs waiting in the post queue"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_decisions_total",
			Help: "Application decisions by outcome and source",
		}, []string{"decision", "source"}),
		RateLimitRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_rate_limit_retries_total",
			Help: "Chat calls retried after a rate-limit response",
		}, []string{"label"}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{Name: "intake_reminders_sent_total", Help: "Pending application reminders sent"}),
		SideEffectFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_side_effect_failures_total",
			Help: "Best-effort side effects that failed, by kind",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsEnqueued,
		m.Posts,
		m.QueueBlocked,
		m.QueueDepth,
		m.Decisions,
		m.RateLimitRetries,
		m.RemindersSent,
		m.SideEffectFailure,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobEnqueued() {
	if m != nil {
		m.JobsEnqueued.Inc()
	}
}

// Posted counts a post; reused is true when an existing message was adopted.
func (m *Metrics) Posted(track string, reused bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if reused {
		outcome = "reused"
	}
	m.Posts.WithLabelValues(track, outcome).Inc()
}

func (m *Metrics) Blocked() {
	if m != nil {
		m.QueueBlocked.Inc()
	}
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m != nil {
		m.QueueDepth.Set(float64(depth))
	}
}

func (m *Metrics) Decided(decision, source string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision, source).Inc()
	}
}

// RateLimited is shaped to plug into retry.WithObserver.
func (m *Metrics) RateLimited(label string) {
	if m != nil {
		m.RateLimitRetries.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) Reminded() {
	if m != nil {
		m.RemindersSent.Inc()
	}
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m != nil {
		m.SideEffectFailure.WithLabelValues(kind).Inc()
	}
}
