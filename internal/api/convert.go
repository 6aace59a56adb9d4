package api

import (
	"sort"
	"time"

	"intake/internal/dedup"
	"intake/internal/logging"
	"intake/internal/state"
	"intake/internal/workflow"
)

// FromJob converts a queued job into its API representation.
func FromJob(job state.PostJob) JobItem {
	item := JobItem{
		ID:            job.ID,
		RowIndex:      job.RowIndex,
		Applicant:     dedup.Parse(job.Headers, job.Row).DisplayName(),
		Tracks:        append([]string(nil), job.TrackKeys...),
		PostedTracks:  append([]string(nil), job.PostedTrackKeys...),
		PendingTracks: job.PendingTracks(),
		ResponseKey:   job.ResponseKey,
		CreatedAt:     formatTime(job.CreatedAt),
		Attempts:      job.Attempts,
		LastAttemptAt: formatTimePtr(job.LastAttemptAt),
		LastError:     job.LastError,
		LastErrorKind: job.LastErrorKind,
		Blocked:       job.Blocked(),
	}
	return item
}

// FromJobs converts jobs preserving order.
func FromJobs(jobs []state.PostJob) []JobItem {
	out := make([]JobItem, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromApplication converts an application into its API representation.
// Side effects are ordered by kind.
func FromApplication(app *state.Application) ApplicationItem {
	if app == nil {
		return ApplicationItem{}
	}
	item := ApplicationItem{
		ID:              app.ID,
		TrackKey:        app.TrackKey,
		Status:          string(app.Status),
		Closed:          app.Closed,
		ApplicantName:   app.ApplicantName,
		ApplicantUserID: app.ApplicantUserID,
		ChannelID:       app.ChannelID,
		ThreadID:        app.ThreadID,
		JobID:           app.JobID,
		RowIndex:        app.RowIndex,
		CreatedAt:       formatTime(app.CreatedAt),
		DecidedAt:       formatTimePtr(app.DecidedAt),
		DecidedBy:       app.DecidedBy,
		DecisionSource:  string(app.DecisionSource),
		DecisionReason:  app.DecisionReason,
		Vote:            app.VoteContext,
		ReminderCount:   app.ReminderCount,
		LastReminderAt:  formatTimePtr(app.LastReminderAt),
	}
	for _, signal := range app.DuplicateSignals {
		item.Duplicates = append(item.Duplicates, signal.ApplicationID)
	}
	if prior := app.LastDecision; prior != nil {
		item.LastDecision = &PriorDecision{
			Status:       string(prior.Status),
			DecidedBy:    prior.DecidedBy,
			Source:       string(prior.DecisionSource),
			Reason:       prior.DecisionReason,
			ReopenedAt:   formatTime(prior.ReopenedAt),
			ReopenedBy:   prior.ReopenedBy,
			ReopenReason: prior.ReopenReason,
		}
	}
	if len(app.SideEffects) > 0 {
		kinds := make([]string, 0, len(app.SideEffects))
		for kind := range app.SideEffects {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			effect := app.SideEffects[kind]
			item.SideEffects = append(item.SideEffects, SideEffect{
				Kind:      effect.Kind,
				OK:        effect.OK,
				Skipped:   effect.Skipped,
				ErrorKind: effect.ErrorKind,
				Error:     effect.Error,
				Detail:    effect.Detail,
				At:        formatTime(effect.At),
			})
		}
	}
	return item
}

// FromApplications converts applications ordered oldest first, then by id.
func FromApplications(apps []*state.Application) []ApplicationItem {
	sorted := append([]*state.Application(nil), apps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	out := make([]ApplicationItem, 0, len(sorted))
	for _, app := range sorted {
		out = append(out, FromApplication(app))
	}
	return out
}

// FromStatusSummary converts scheduler diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:   summary.Running,
		LastError: summary.LastError,
		Lanes:     make([]LaneStatus, 0, len(summary.Lanes)),
	}
	for _, lane := range summary.Lanes {
		status.Lanes = append(status.Lanes, LaneStatus{
			Name:            lane.Name,
			IntervalSeconds: int(lane.Interval / time.Second),
			Runs:            lane.Runs,
			Failures:        lane.Failures,
			LastRunAt:       formatTimePtr(lane.LastRunAt),
			LastError:       lane.LastError,
		})
	}
	return status
}

// FromLogEvents converts captured log history.
func FromLogEvents(events []logging.Event) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			JobID:         evt.JobID,
			ApplicationID: evt.ApplicationID,
			Track:         evt.Track,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
