package reminders

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
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// Sweeper runs reminder and digest sweeps.
type Sweeper struct {
	cfg     *config.Config
	store   *state.Store
	chat    chat.Client
	policy  retry.Policy
	custom  bool
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithMetrics records reminder activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetryPolicy overrides the policy built from config.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Sweeper) {
		s.policy = policy
		s.custom = true
	}
}

// New builds a Sweeper.
func New(cfg *config.Config, store *state.Store, client chat.Client, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		cfg:    cfg,
		store:  store,
		chat:   client,
		logger: logging.NewComponentLogger(logger, "reminders"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if !s.custom {
		s.policy = retry.FromConfig(cfg.Retry,
			retry.WithLogger(s.logger),
			retry.WithObserver(s.metrics.RateLimited))
	}
	return s
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Reminded []string `json:"reminded"`
	Failed   int      `json:"failed"`
	Digest   *Digest  `json:"digest,omitempty"`
}

// Sweep sends due reminders and, when due, the daily digest.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	reminded, failed, err := s.SendReminders(ctx)
	result.Reminded = reminded
	result.Failed = failed
	if err != nil {
		return result, err
	}
	digest, err := s.SendDigest(ctx)
	result.Digest = digest
	return result, err
}

// DueForReminder reports whether app should be reminded at now: pending,
// older than thresholdHours, and not reminded within repeatHours.
func DueForReminder(app *state.Application, now time.Time, thresholdHours, repeatHours int) bool {
	if app == nil || app.Status != state.StatusPending || app.Closed {
		return false
	}
	if now.Sub(app.CreatedAt) < time.Duration(thresholdHours)*time.Hour {
		return false
	}
	if app.LastReminderAt != nil && now.Sub(*app.LastReminderAt) < time.Duration(repeatHours)*time.Hour {
		return false
	}
	return true
}

// SendReminders reminds reviewers about every due application. A failed send
// is logged and counted; it leaves the application due for the next sweep.
func (s *Sweeper) SendReminders(ctx context.Context) ([]string, int, error) {
	if !s.cfg.Reminders.Enabled {
		return nil, 0, nil
	}
	now := s.now()
	doc := s.store.Snapshot()
	registry := tracks.FromDocument(doc)

	var due []*state.Application
	for _, app := range doc.ApplicationsByStatus(state.StatusPending) {
		if DueForReminder(app, now, s.cfg.Reminders.ThresholdHours, s.cfg.Reminders.RepeatHours) {
			due = append(due, app)
		}
	}

	// Rotation cursors advance across the whole sweep so two reminders on
	// one track in the same pass mention different reviewers.
	rotation := make(map[string]*state.TrackSettings)
	var reminded []string
	failed := 0
	for _, app := range due {
		appCtx := services.WithTrack(services.WithApplicationID(ctx, app.ID), app.TrackKey)
		settings, ok := rotation[app.TrackKey]
		if !ok {
			if current := doc.Track(app.TrackKey); current != nil {
				copied := *current
				settings = &copied
			} else {
				settings = &state.TrackSettings{Key: app.TrackKey}
			}
			rotation[app.TrackKey] = settings
		}
		before := settings.ReviewerRotationIndex
		reviewers := settings.NextReviewers(s.cfg.Reminders.ReviewersPerReminder)
		content := reminderMessage(app, registry.Label(app.TrackKey), reviewers, now)

		sent, err := retry.Do(appCtx, s.policy, state.EffectReminder, func(ctx context.Context) (chat.Message, error) {
			return s.chat.SendMessage(ctx, discussion(app), content)
		})
		if err != nil {
			settings.ReviewerRotationIndex = before
			failed++
			category := services.Classify(err)
			s.metrics.SideEffectFailed(state.EffectReminder)
			logging.WarnWithContext(logging.WithContext(appCtx, s.logger), "reminder failed", "reminder_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, category.Hint()),
				logging.String(logging.FieldImpact, "the application stays due and is retried next sweep"),
			)
			continue
		}

		cursor := settings.ReviewerRotationIndex
		err = s.store.Update(ctx, func(doc *state.Document) error {
			stored := doc.Application(app.ID)
			if stored == nil || stored.Status != state.StatusPending {
				return state.ErrNoChange
			}
			at := now.UTC()
			stored.ReminderCount++
			stored.LastReminderAt = &at
			stored.RecordEffect(state.Succeeded(state.EffectReminder, sent.ID, now))
			if track := doc.Track(app.TrackKey); track != nil {
				track.ReviewerRotationIndex = cursor
			}
			doc.Counters.RemindersSent++
			return nil
		})
		if err != nil {
			return reminded, failed, err
		}
		s.metrics.Reminded()
		reminded = append(reminded, app.ID)
		logging.WithContext(appCtx, s.logger).Info("reminder sent",
			logging.String(logging.FieldEventType, "reminder_sent"),
			logging.String("reviewers", strings.Join(reviewers, ",")),
			logging.Int("reminder_count", app.ReminderCount+1),
		)
	}
	return reminded, failed, nil
}

func reminderMessage(app *state.Application, label string, reviewers []string, now time.Time) string {
	age := now.Sub(app.CreatedAt).Truncate(time.Hour)
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ This %s application from %s has been pending for %s.", label, nameOrUnknown(app.ApplicantName), formatAge(age))
	if len(reviewers) > 0 {
		mentions := make([]string, 0, len(reviewers))
		for _, id := range reviewers {
			mentions = append(mentions, chat.Mention(id))
		}
		fmt.Fprintf(&b, " %s please take a look.", strings.Join(mentions, " "))
	}
	return b.String()
}

func formatAge(age time.Duration) string {
	hours := int(age.Hours())
	if hours < 48 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}

func nameOrUnknown(name string) string {
	if strings.TrimSpace(name) == "" {
		return "an unknown applicant"
	}
	return name
}

func discussion(app *state.Application) string {
	if app.ThreadID != "" {
		return app.ThreadID
	}
	return app.ChannelID
}
