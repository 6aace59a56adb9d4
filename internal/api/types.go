package api

import (
	"intake/internal/decision"
	"intake/internal/pipeline"
	"intake/internal/state"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a queued post job in a transport-friendly format.
type JobItem struct {
	ID            string   `json:"id"`
	RowIndex      int      `json:"rowIndex"`
	Applicant     string   `json:"applicant,omitempty"`
	Tracks        []string `json:"tracks"`
	PostedTracks  []string `json:"postedTracks,omitempty"`
	PendingTracks []string `json:"pendingTracks"`
	ResponseKey   string   `json:"responseKey,omitempty"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	Attempts      int      `json:"attempts"`
	LastAttemptAt string   `json:"lastAttemptAt,omitempty"`
	LastError     string   `json:"lastError,omitempty"`
	LastErrorKind string   `json:"lastErrorKind,omitempty"`
	Blocked       bool     `json:"blocked"`
}

// QueueResponse lists queued jobs in FIFO order.
type QueueResponse struct {
	Items []JobItem `json:"items"`
	Busy  bool      `json:"busy"`
}

// SideEffect is one recorded side effect outcome.
type SideEffect struct {
	Kind      string `json:"kind"`
	OK        bool   `json:"ok"`
	Skipped   bool   `json:"skipped,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`
	At        string `json:"at,omitempty"`
}

// ApplicationItem describes one application.
type ApplicationItem struct {
	ID              string             `json:"id"`
	TrackKey        string             `json:"trackKey"`
	Status          string             `json:"status"`
	Closed          bool               `json:"closed"`
	ApplicantName   string             `json:"applicantName,omitempty"`
	ApplicantUserID string             `json:"applicantUserId,omitempty"`
	ChannelID       string             `json:"channelId"`
	ThreadID        string             `json:"threadId,omitempty"`
	JobID           string             `json:"jobId"`
	RowIndex        int                `json:"rowIndex"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	DecidedAt       string             `json:"decidedAt,omitempty"`
	DecidedBy       string             `json:"decidedBy,omitempty"`
	DecisionSource  string             `json:"decisionSource,omitempty"`
	DecisionReason  string             `json:"decisionReason,omitempty"`
	Vote            *state.VoteContext `json:"vote,omitempty"`
	ReminderCount   int                `json:"reminderCount"`
	LastReminderAt  string             `json:"lastReminderAt,omitempty"`
	Duplicates      []string           `json:"duplicates,omitempty"`
	LastDecision    *PriorDecision     `json:"lastDecision,omitempty"`
	SideEffects     []SideEffect       `json:"sideEffects,omitempty"`
}

// PriorDecision is the decision preserved across a reopen.
type PriorDecision struct {
	Status       string `json:"status"`
	DecidedBy    string `json:"decidedBy,omitempty"`
	Source       string `json:"source,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ReopenedAt   string `json:"reopenedAt,omitempty"`
	ReopenedBy   string `json:"reopenedBy,omitempty"`
	ReopenReason string `json:"reopenReason,omitempty"`
}

// ApplicationsResponse wraps a collection of applications.
type ApplicationsResponse struct {
	Items []ApplicationItem `json:"items"`
}

// ApplicationResponse wraps a single application.
type ApplicationResponse struct {
	Item ApplicationItem `json:"item"`
}

// FinalizeRequest asks the daemon to decide a pending application.
type FinalizeRequest struct {
	Decision string `json:"decision"`
	Source   string `json:"source,omitempty"`
	ActorID  string `json:"actorId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ReopenRequest asks the daemon to return a decided application to pending.
type ReopenRequest struct {
	ActorID string `json:"actorId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ReactionRequest reports a vote reaction added or removed on a post.
type ReactionRequest struct {
	ApplicationID string `json:"applicationId"`
	Emoji         string `json:"emoji"`
	UserID        string `json:"userId,omitempty"`
}

// DecisionResponse carries a finalize or reopen outcome.
type DecisionResponse struct {
	Outcome decision.Outcome `json:"outcome"`
	Message string           `json:"message,omitempty"`
}

// VoteResponse carries a vote evaluation outcome. Ignored is set when the
// reaction did not concern a tracked application or vote emoji.
type VoteResponse struct {
	Outcome *decision.VoteOutcome `json:"outcome,omitempty"`
	Ignored bool                  `json:"ignored,omitempty"`
}

// PollResponse carries one ingest and drain cycle.
type PollResponse struct {
	Result pipeline.PollResult `json:"result"`
	Error  string              `json:"error,omitempty"`
}

// ReplayResponse carries one drain pass.
type ReplayResponse struct {
	Result pipeline.DrainResult `json:"result"`
}

// ClearResponse reports a job removed from the queue.
type ClearResponse struct {
	Item JobItem `json:"item"`
}

// LaneStatus summarizes one scheduler lane.
type LaneStatus struct {
	Name            string `json:"name"`
	IntervalSeconds int    `json:"intervalSeconds"`
	Runs            int    `json:"runs"`
	Failures        int    `json:"failures"`
	LastRunAt       string `json:"lastRunAt,omitempty"`
	LastError       string `json:"lastError,omitempty"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running   bool         `json:"running"`
	LastError string       `json:"lastError,omitempty"`
	Lanes     []LaneStatus `json:"lanes"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse aggregates daemon runtime information for API consumers.
type StatusResponse struct {
	Running    bool           `json:"running"`
	PID        int            `json:"pid"`
	StatePath  string         `json:"statePath"`
	LockPath   string         `json:"lockPath"`
	Revision   int64          `json:"revision"`
	UpdatedAt  string         `json:"updatedAt,omitempty"`
	QueueDepth int            `json:"queueDepth"`
	Blocked    *JobItem       `json:"blocked,omitempty"`
	Busy       bool           `json:"busy"`
	Pending    int            `json:"pending"`
	Counters   state.Counters `json:"counters"`
	Workflow   WorkflowStatus `json:"workflow"`
	Checks     []CheckResult  `json:"checks,omitempty"`
}

// LogEvent is one captured daemon log record.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	JobID         string            `json:"jobId,omitempty"`
	ApplicationID string            `json:"applicationId,omitempty"`
	Track         string            `json:"track,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogsResponse returns log events with a cursor for the next fetch.
type LogsResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
