package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"intake/internal/dedup"
	"intake/internal/logging"
	"intake/internal/notifications"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// DrainResult summarizes one drain pass. Posted counts jobs that finished
// and left the queue; Failed is 1 when the pass stopped on a blocked job.
type DrainResult struct {
	QueuedBefore int    `json:"queuedBefore"`
	Posted       int    `json:"posted"`
	Failed       int    `json:"failed"`
	Remaining    int    `json:"remaining"`
	Busy         bool   `json:"busy"`
	FailedJobID  string `json:"failedJobId,omitempty"`
	FailedError  string `json:"failedError,omitempty"`
}

// ProcessQueuedPostJobs drains the queue in order, stopping at the first job
// that fails. If a pass is already running it returns immediately with Busy.
func (p *Pipeline) ProcessQueuedPostJobs(ctx context.Context) DrainResult {
	if !p.busy.CompareAndSwap(false, true) {
		return DrainResult{Busy: true, Remaining: p.queueDepth()}
	}
	defer p.busy.Store(false)

	jobs := p.store.Snapshot().SortedJobs()
	result := DrainResult{QueuedBefore: len(jobs)}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		jobCtx := services.WithJobID(ctx, job.ID)
		err := p.processJob(jobCtx, job.ID)
		if err == nil {
			result.Posted++
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		result.Failed = 1
		result.FailedJobID = job.ID
		result.FailedError = err.Error()
		p.block(jobCtx, job, err)
		break
	}

	result.Remaining = p.queueDepth()
	p.metrics.SetQueueDepth(result.Remaining)
	return result
}

func (p *Pipeline) queueDepth() int {
	depth := 0
	p.store.View(func(doc *state.Document) { depth = len(doc.PostJobs) })
	return depth
}

// block records the failure on the head job and alerts the operator.
func (p *Pipeline) block(ctx context.Context, job state.PostJob, cause error) {
	logger := logging.WithContext(ctx, p.logger)
	category := services.Classify(cause)
	now := p.now()
	remaining := 0
	err := p.store.Update(ctx, func(doc *state.Document) error {
		current := doc.Job(job.ID)
		if current == nil {
			return state.ErrNoChange
		}
		current.RecordFailure(cause, now)
		remaining = len(doc.PostJobs)
		return nil
	})
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record job failure", "job_failure_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state directory permissions and free space"),
		)
	}

	p.metrics.Blocked()
	logging.WarnWithContext(logger, "post job failed; queue blocked behind it", "queue_blocked",
		logging.Error(cause),
		logging.Int("row_index", job.RowIndex),
		logging.String("error_kind", string(category)),
		logging.String(logging.FieldErrorHint, category.Hint()),
		logging.String(logging.FieldImpact, "jobs queued after this one wait until it posts or is cleared"),
	)
	if err := p.notifier.Publish(ctx, notifications.EventQueueBlocked, notifications.Payload{
		"jobId":     job.ID,
		"rowIndex":  job.RowIndex,
		"remaining": remaining,
		"error":     cause.Error(),
		"hint":      category.Hint(),
	}); err != nil {
		logging.WarnWithContext(logger, "queue blocked notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operator was not alerted about the blocked queue"),
		)
	}
}

// processJob posts every pending track of a job. Destinations are resolved
// for all pending tracks before anything is posted so a missing channel
// never leaves a job half posted by surprise.
func (p *Pipeline) processJob(ctx context.Context, jobID string) error {
	doc := p.store.Snapshot()
	job := doc.Job(jobID)
	if job == nil {
		return nil
	}
	pending := job.PendingTracks()
	if len(pending) == 0 {
		return p.removeJob(ctx, jobID)
	}

	registry := tracks.FromDocument(doc)
	targets := make([]target, 0, len(pending))
	var missing []string
	for _, key := range pending {
		settings, ok := registry.Get(key)
		if !ok || strings.TrimSpace(settings.ChannelID) == "" {
			missing = append(missing, key)
			continue
		}
		targets = append(targets, target{jobTrack: key, settings: settings, label: registry.Label(settings.Key)})
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "pipeline", "resolve destination",
			fmt.Sprintf("no destination channel configured for track %s", strings.Join(missing, ", ")), nil)
	}

	sub := dedup.Parse(job.Headers, job.Row)
	fingerprint := dedup.SubmittedFieldsFingerprint(sub.AnsweredFields())
	applicantID := p.resolveApplicant(ctx, sub)

	for _, tgt := range targets {
		trackCtx := services.WithTrack(ctx, tgt.settings.Key)
		if err := p.postTrack(trackCtx, *job, tgt, sub, fingerprint, applicantID); err != nil {
			return fmt.Errorf("post %s to track %s: %w", jobID, tgt.settings.Key, err)
		}
	}
	return nil
}

func (p *Pipeline) removeJob(ctx context.Context, jobID string) error {
	return p.store.Update(ctx, func(doc *state.Document) error {
		job := doc.Job(jobID)
		if job == nil || !job.Done() {
			return state.ErrNoChange
		}
		doc.RemoveJob(jobID)
		return nil
	})
}

type target struct {
	jobTrack string
	settings state.TrackSettings
	label    string
}

// ClearJob removes a job from the queue without posting it.
func (p *Pipeline) ClearJob(ctx context.Context, jobID string) (state.PostJob, error) {
	var removed state.PostJob
	now := p.now()
	err := p.store.Update(ctx, func(doc *state.Document) error {
		job := doc.Job(jobID)
		if job == nil {
			return services.Wrap(services.ErrNotFound, "pipeline", "clear job", fmt.Sprintf("job %s is not queued", jobID), nil)
		}
		removed = *job
		removed.TrackKeys = slices.Clone(job.TrackKeys)
		removed.PostedTrackKeys = slices.Clone(job.PostedTrackKeys)
		doc.RemoveJob(jobID)
		doc.ClearedRows = append(doc.ClearedRows, state.ClearedRow{
			JobID:       jobID,
			RowIndex:    job.RowIndex,
			ResponseKey: job.ResponseKey,
			ClearedAt:   now.UTC(),
		})
		doc.Counters.JobsCleared++
		return nil
	})
	if err != nil {
		return state.PostJob{}, err
	}
	p.metrics.SetQueueDepth(p.queueDepth())
	p.logger.Info("post job cleared by operator",
		logging.String(logging.FieldEventType, "job_cleared"),
		logging.String(logging.FieldJobID, jobID),
		logging.String("unposted_tracks", strings.Join(removed.PendingTracks(), ",")),
	)
	return removed, nil
}
