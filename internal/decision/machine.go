package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/logging"
	"intake/internal/metrics"
	"intake/internal/notifications"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// Machine runs decision transitions against the store.
type Machine struct {
	cfg      *config.Config
	store    *state.Store
	chat     chat.Client
	policy   retry.Policy
	custom   bool
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Machine.
type Option func(*Machine)

// WithNotifier sets the operator alert service.
func WithNotifier(n notifications.Service) Option {
	return func(m *Machine) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics records decisions on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetryPolicy overrides the policy built from config.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(m *Machine) {
		m.policy = policy
		m.custom = true
	}
}

// New builds a Machine.
func New(cfg *config.Config, store *state.Store, client chat.Client, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		cfg:      cfg,
		store:    store,
		chat:     client,
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "decision"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if !m.custom {
		m.policy = retry.FromConfig(cfg.Retry,
			retry.WithLogger(m.logger),
			retry.WithObserver(m.metrics.RateLimited))
	}
	return m
}

// Options carries the optional finalize inputs.
type Options struct {
	Reason      string
	VoteContext *state.VoteContext
}

// Outcome is the result of a transition. Failure is set when a domain rule
// refused the transition; nothing was changed in that case.
type Outcome struct {
	ApplicationID string                   `json:"applicationId"`
	Status        state.Status             `json:"status,omitempty"`
	Failure       *Failure                 `json:"failure,omitempty"`
	SideEffects   []state.SideEffectResult `json:"sideEffects,omitempty"`
}

// OK reports whether the transition was applied.
func (o Outcome) OK() bool { return o.Failure == nil }

func failed(appID string, f Failure) Outcome {
	f.ApplicationID = appID
	return Outcome{ApplicationID: appID, Status: f.Status, Failure: &f}
}

// Finalize commits decision on a pending application and then runs the
// decision side effects. The returned error is reserved for persistence
// failures; domain refusals are reported on Outcome.Failure.
func (m *Machine) Finalize(ctx context.Context, appID string, decision state.Status, source state.DecisionSource, actorID string, opts Options) (Outcome, error) {
	if !decision.Decided() {
		return failed(appID, Failure{Code: InvalidDecision, Detail: fmt.Sprintf("decision %q must be accepted or denied", decision)}), nil
	}
	if !source.Valid() {
		return failed(appID, Failure{Code: InvalidDecision, Detail: fmt.Sprintf("unknown decision source %q", source)}), nil
	}
	ctx = services.WithApplicationID(ctx, appID)
	logger := logging.WithContext(ctx, m.logger)
	now := m.now()

	var (
		refusal *Failure
		app     state.Application
		track   state.TrackSettings
		label   string
	)
	err := m.store.Update(ctx, func(doc *state.Document) error {
		stored := doc.Application(appID)
		if stored == nil {
			refusal = &Failure{Code: UnknownApplication}
			return state.ErrNoChange
		}
		if stored.Status != state.StatusPending {
			refusal = &Failure{Code: AlreadyDecided, Status: stored.Status}
			return state.ErrNoChange
		}
		at := now.UTC()
		stored.Status = decision
		stored.DecidedAt = &at
		stored.DecidedBy = actorID
		stored.DecisionSource = source
		stored.DecisionReason = strings.TrimSpace(opts.Reason)
		stored.VoteContext = opts.VoteContext
		if decision == state.StatusAccepted {
			doc.Counters.DecisionsAccepted++
		} else {
			doc.Counters.DecisionsDenied++
		}
		registry := tracks.FromDocument(doc)
		track, _ = registry.Get(stored.TrackKey)
		label = registry.Label(stored.TrackKey)
		app = *stored
		return nil
	})
	if err != nil {
		return Outcome{ApplicationID: appID}, err
	}
	if refusal != nil {
		logger.Info("decision refused",
			logging.String(logging.FieldEventType, "decision_refused"),
			logging.String("code", string(refusal.Code)),
			logging.String("status", string(refusal.Status)),
		)
		return failed(appID, *refusal), nil
	}

	m.metrics.Decided(string(decision), string(source))
	logger.Info("application decided",
		logging.String(logging.FieldEventType, "application_decided"),
		logging.String(logging.FieldTrack, app.TrackKey),
		logging.String("decision", string(decision)),
		logging.String("source", string(source)),
		logging.String("actor", actorID),
	)

	data := templateData{
		applicant: applicantRef(app.ApplicantUserID, app.ApplicantName),
		track:     label,
		reason:    app.DecisionReason,
		actor:     actorRef(actorID),
		link:      messageLink(m.cfg.Chat.GuildID, app.ChannelID, app.ID),
	}
	var results []state.SideEffectResult
	if decision == state.StatusAccepted {
		results = append(results, m.grantRoles(ctx, app, track))
		results = append(results, m.announce(ctx, data))
	} else {
		results = append(results, m.directMessage(ctx, app, data))
	}
	results = append(results, m.decisionSummary(ctx, app, data))
	results = append(results, m.closureLog(ctx, app, data))
	m.recordEffects(ctx, appID, results)

	if err := m.notifier.Publish(ctx, notifications.EventDecision, notifications.Payload{
		"applicant": app.ApplicantName,
		"track":     label,
		"decision":  string(decision),
		"source":    string(source),
	}); err != nil {
		logging.WarnWithContext(logger, "decision notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "decision is recorded but the operator alert was not sent"),
		)
	}
	return Outcome{ApplicationID: appID, Status: decision, SideEffects: results}, nil
}

// Reopen returns a decided application to pending. The prior decision is kept
// on LastDecision; its side effects are left in place.
func (m *Machine) Reopen(ctx context.Context, appID, actorID, reason string) (Outcome, error) {
	ctx = services.WithApplicationID(ctx, appID)
	logger := logging.WithContext(ctx, m.logger)
	now := m.now()
	reason = strings.TrimSpace(reason)

	var (
		refusal *Failure
		app     state.Application
		label   string
		prior   state.Status
	)
	err := m.store.Update(ctx, func(doc *state.Document) error {
		stored := doc.Application(appID)
		if stored == nil {
			refusal = &Failure{Code: UnknownApplication}
			return state.ErrNoChange
		}
		if stored.Status == state.StatusPending {
			refusal = &Failure{Code: AlreadyPending, Status: stored.Status}
			return state.ErrNoChange
		}
		prior = stored.Status
		stored.LastDecision = &state.DecisionSnapshot{
			Status:         stored.Status,
			DecidedAt:      stored.DecidedAt,
			DecidedBy:      stored.DecidedBy,
			DecisionSource: stored.DecisionSource,
			DecisionReason: stored.DecisionReason,
			VoteContext:    stored.VoteContext,
			ReopenedAt:     now.UTC(),
			ReopenedBy:     actorID,
			ReopenReason:   reason,
		}
		stored.ClearDecision()
		stored.Closed = false
		doc.Counters.Reopens++
		label = tracks.FromDocument(doc).Label(stored.TrackKey)
		app = *stored
		return nil
	})
	if err != nil {
		return Outcome{ApplicationID: appID}, err
	}
	if refusal != nil {
		return failed(appID, *refusal), nil
	}

	logger.Info("application reopened",
		logging.String(logging.FieldEventType, "application_reopened"),
		logging.String(logging.FieldTrack, app.TrackKey),
		logging.String("previous_status", string(prior)),
		logging.String("actor", actorID),
	)

	notice := renderTemplate(m.cfg.Templates.ReopenNotice, templateData{
		applicant: applicantRef(app.ApplicantUserID, app.ApplicantName),
		track:     label,
		reason:    reason,
		actor:     actorRef(actorID),
		link:      messageLink(m.cfg.Chat.GuildID, app.ChannelID, app.ID),
	})
	result := m.send(ctx, state.EffectReopenNotice, discussion(app), notice)
	m.recordEffects(ctx, appID, []state.SideEffectResult{result})
	return Outcome{ApplicationID: appID, Status: state.StatusPending, SideEffects: []state.SideEffectResult{result}}, nil
}

func (m *Machine) recordEffects(ctx context.Context, appID string, results []state.SideEffectResult) {
	err := m.store.Update(ctx, func(doc *state.Document) error {
		stored := doc.Application(appID)
		if stored == nil {
			return state.ErrNoChange
		}
		for _, result := range results {
			stored.RecordEffect(result)
		}
		return nil
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "failed to record side effects", "side_effect_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the decision stands but side effect outcomes are missing from state"),
		)
	}
}

// discussion is where per-application notes go: the thread when one exists.
func discussion(app state.Application) string {
	if app.ThreadID != "" {
		return app.ThreadID
	}
	return app.ChannelID
}
