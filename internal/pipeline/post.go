package pipeline

import (
	"context"
	"errors"
	"strings"

	"intake/internal/chat"
	"intake/internal/dedup"
	"intake/internal/logging"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// resolveApplicant looks the applicant up by id, then by name. A failed
// lookup only costs the mention, so errors are logged and swallowed.
func (p *Pipeline) resolveApplicant(ctx context.Context, sub dedup.Submission) string {
	logger := logging.WithContext(ctx, p.logger)
	for _, query := range []string{sub.IdentityID, sub.IdentityName} {
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		type lookup struct {
			user chat.User
			ok   bool
		}
		found, err := retry.Do(ctx, p.policy, "resolve_user", func(ctx context.Context) (lookup, error) {
			user, ok, err := p.chat.ResolveUser(ctx, query)
			return lookup{user: user, ok: ok}, err
		})
		if err != nil {
			logging.WarnWithContext(logger, "applicant lookup failed", "applicant_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the bot has the server members intent"),
				logging.String(logging.FieldImpact, "post is created without an applicant mention"),
			)
			return ""
		}
		if found.ok {
			return found.user.ID
		}
	}
	return ""
}

// postTrack creates or reuses the post for one track. The marker in the
// footer makes the step idempotent: a post left behind by an interrupted
// pass is found in channel history and adopted instead of duplicated.
func (p *Pipeline) postTrack(ctx context.Context, job state.PostJob, tgt target, sub dedup.Submission, fingerprint, applicantID string) error {
	logger := logging.WithContext(ctx, p.logger)
	channelID := tgt.settings.ChannelID
	content := postContent{
		trackLabel:  tgt.label,
		submission:  sub,
		applicantID: applicantID,
		jobID:       job.ID,
		rowIndex:    job.RowIndex,
		marker:      dedup.PostMarker(job.ResponseKey, fingerprint, job.RowIndex, tgt.settings.Key),
		acceptEmoji: p.cfg.Chat.AcceptEmoji,
		denyEmoji:   p.cfg.Chat.DenyEmoji,
	}

	existing, err := p.findMarked(ctx, channelID, content.marker)
	if err != nil {
		return err
	}
	reused := existing != nil
	var messageID string
	if reused {
		messageID = existing.ID
		if want := content.render(messageID); existing.Content != want {
			if _, err := p.edit(ctx, channelID, messageID, want); err != nil {
				return err
			}
		}
	} else {
		sent, err := retry.Do(ctx, p.policy, "send_message", func(ctx context.Context) (chat.Message, error) {
			return p.chat.SendMessage(ctx, channelID, content.render(placeholderAppID))
		})
		if err != nil {
			return services.Wrap(services.ErrExternal, "pipeline", "send post", "failed to create application post", err)
		}
		messageID = sent.ID
		if _, err := p.edit(ctx, channelID, messageID, content.render(messageID)); err != nil {
			return err
		}
	}

	for _, emoji := range []string{p.cfg.Chat.AcceptEmoji, p.cfg.Chat.DenyEmoji} {
		if err := retry.Run(ctx, p.policy, "add_reaction", func(ctx context.Context) error {
			return p.chat.AddReaction(ctx, channelID, messageID, emoji)
		}); err != nil {
			return services.Wrap(services.ErrExternal, "pipeline", "add reaction", "failed to add vote reaction "+emoji, err)
		}
	}

	threadID, err := p.ensureThread(ctx, channelID, messageID, threadName(tgt.label, sub))
	if err != nil {
		return err
	}

	now := p.now()
	responseKey := job.ResponseKey
	candidate := dedup.Candidate{
		ApplicationID: messageID,
		JobID:         job.ID,
		UserID:        applicantID,
		Name:          sub.DisplayName(),
		ResponseKey:   responseKey,
		Fingerprint:   fingerprint,
	}
	window := dedup.Window{LookbackDays: p.cfg.Duplicates.LookbackDays, Now: now}

	var (
		app      state.Application
		existed  bool
		signals  []state.DuplicateSignal
		assigned []string
	)
	err = p.store.Update(ctx, func(doc *state.Document) error {
		current := doc.Job(job.ID)
		if current == nil {
			return services.Wrap(services.ErrNotFound, "pipeline", "record post", "job was cleared while posting", nil)
		}
		if stored := doc.Application(messageID); stored != nil {
			existed = true
			app = *stored
		} else {
			apps := make([]*state.Application, 0, len(doc.Applications))
			for _, a := range doc.Applications {
				apps = append(apps, a)
			}
			signals = dedup.FindDuplicateApplications(apps, candidate, window)
			created := &state.Application{
				ID:                         messageID,
				ChannelID:                  channelID,
				ThreadID:                   threadID,
				Status:                     state.StatusPending,
				TrackKey:                   tgt.settings.Key,
				JobID:                      job.ID,
				RowIndex:                   job.RowIndex,
				ResponseKey:                responseKey,
				SubmittedFieldsFingerprint: fingerprint,
				ApplicantName:              sub.DisplayName(),
				ApplicantUserID:            applicantID,
				CreatedAt:                  now.UTC(),
				DuplicateSignals:           signals,
			}
			if settings := doc.Track(tgt.settings.Key); settings != nil {
				assigned = settings.NextReviewers(p.cfg.Reminders.ReviewersPerReminder)
			}
			doc.Applications[messageID] = created
			app = *created
		}
		current.RecordAttempt(now)
		current.MarkPosted(tgt.jobTrack, messageID)
		if reused {
			doc.Counters.PostsReused++
		} else {
			doc.Counters.PostsCreated++
		}
		if current.Done() {
			doc.RemoveJob(job.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.metrics.Posted(tgt.settings.Key, reused)
	logger.Info("application posted",
		logging.String(logging.FieldEventType, "application_posted"),
		logging.String(logging.FieldApplicationID, messageID),
		logging.String("channel_id", channelID),
		logging.Bool("reused", reused),
		logging.Int("duplicate_signals", len(signals)),
	)

	if !existed {
		p.postSideEffects(ctx, app, assigned, signals)
	}
	return nil
}

func (p *Pipeline) edit(ctx context.Context, channelID, messageID, content string) (chat.Message, error) {
	msg, err := retry.Do(ctx, p.policy, "edit_message", func(ctx context.Context) (chat.Message, error) {
		return p.chat.EditMessage(ctx, channelID, messageID, content)
	})
	if err != nil {
		return chat.Message{}, services.Wrap(services.ErrExternal, "pipeline", "edit post", "failed to finalize application post", err)
	}
	return msg, nil
}

func (p *Pipeline) findMarked(ctx context.Context, channelID, marker string) (*chat.Message, error) {
	limit := p.cfg.Workflow.HistoryScanLimit
	if limit <= 0 {
		return nil, nil
	}
	messages, err := retry.Do(ctx, p.policy, "recent_messages", func(ctx context.Context) ([]chat.Message, error) {
		return p.chat.RecentMessages(ctx, channelID, limit)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "pipeline", "scan history", "failed to read channel history", err)
	}
	for i := range messages {
		if strings.Contains(messages[i].Content, marker) {
			return &messages[i], nil
		}
	}
	return nil, nil
}

// ensureThread reuses an active thread on the message before creating one.
func (p *Pipeline) ensureThread(ctx context.Context, channelID, messageID, name string) (string, error) {
	threads, err := retry.Do(ctx, p.policy, "active_threads", func(ctx context.Context) ([]chat.Thread, error) {
		return p.chat.ActiveThreads(ctx)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "pipeline", "list threads", "failed to list active threads", err)
	}
	for _, thread := range threads {
		if thread.ID == messageID {
			return thread.ID, nil
		}
	}
	thread, err := retry.Do(ctx, p.policy, "start_thread", func(ctx context.Context) (chat.Thread, error) {
		return p.chat.StartThread(ctx, channelID, messageID, name)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "pipeline", "start thread", "failed to open discussion thread", err)
	}
	return thread.ID, nil
}

// postSideEffects runs the best-effort reviewer and duplicate notes. Their
// outcome is recorded on the application and never fails the job.
func (p *Pipeline) postSideEffects(ctx context.Context, app state.Application, reviewers []string, signals []state.DuplicateSignal) {
	destination := app.ThreadID
	if destination == "" {
		destination = app.ChannelID
	}
	var results []state.SideEffectResult

	if len(reviewers) == 0 {
		results = append(results, state.Skipped(state.EffectReviewerAssignment, "no reviewers configured", p.now()))
	} else {
		results = append(results, p.sideEffect(ctx, state.EffectReviewerAssignment, destination, reviewerMessage(reviewers), strings.Join(reviewers, ",")))
	}

	if len(signals) > 0 {
		doc := p.store.Snapshot()
		label := tracks.FromDocument(doc).Label
		results = append(results, p.sideEffect(ctx, state.EffectDuplicateWarning, destination, duplicateMessage(signals, label), ""))
	}

	err := p.store.Update(ctx, func(doc *state.Document) error {
		stored := doc.Application(app.ID)
		if stored == nil {
			return state.ErrNoChange
		}
		for _, result := range results {
			stored.RecordEffect(result)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record side effects", "side_effect_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldApplicationID, app.ID),
		)
	}
}

func (p *Pipeline) sideEffect(ctx context.Context, kind, channelID, content, detail string) state.SideEffectResult {
	_, err := retry.Do(ctx, p.policy, kind, func(ctx context.Context) (chat.Message, error) {
		return p.chat.SendMessage(ctx, channelID, content)
	})
	if err != nil {
		category := services.Classify(err)
		p.metrics.SideEffectFailed(kind)
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "side effect failed", "side_effect_failed",
			logging.Error(err),
			logging.String("side_effect", kind),
			logging.String(logging.FieldErrorHint, category.Hint()),
		)
		return state.Failed(kind, string(category), err, p.now())
	}
	return state.Succeeded(kind, detail, p.now())
}
