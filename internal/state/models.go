package state

import (
	"time"
)

// Status is the application decision state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDenied   Status = "denied"
)

// Decided reports whether the status is a final decision.
func (s Status) Decided() bool {
	return s == StatusAccepted || s == StatusDenied
}

// ParseStatus accepts "pending", "accepted"/"accept", and "denied"/"deny".
func ParseStatus(value string) (Status, bool) {
	switch value {
	case "pending":
		return StatusPending, true
	case "accepted", "accept":
		return StatusAccepted, true
	case "denied", "deny":
		return StatusDenied, true
	default:
		return "", false
	}
}

// DecisionSource records what drove a decision.
type DecisionSource string

const (
	SourceVote         DecisionSource = "vote"
	SourceForceCommand DecisionSource = "force_command"
	SourceDebugCommand DecisionSource = "debug_command"
)

// Valid reports whether the source is one of the known sources.
func (s DecisionSource) Valid() bool {
	switch s {
	case SourceVote, SourceForceCommand, SourceDebugCommand:
		return true
	default:
		return false
	}
}

// Side effect kinds stored on Application.SideEffects.
const (
	EffectReviewerAssignment = "reviewer_assignment"
	EffectDuplicateWarning   = "duplicate_warning"
	EffectRoleGrant          = "role_grant"
	EffectAnnouncement       = "announcement"
	EffectDirectMessage      = "direct_message"
	EffectDecisionSummary    = "decision_summary"
	EffectClosureLog         = "closure_log"
	EffectReopenNotice       = "reopen_notice"
	EffectReminder           = "reminder"
)

// SideEffectResult is the recorded outcome of a best-effort side effect.
type SideEffectResult struct {
	Kind      string    `json:"kind"`
	OK        bool      `json:"ok"`
	Skipped   bool      `json:"skipped,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Succeeded records a side effect that completed.
func Succeeded(kind, detail string, at time.Time) SideEffectResult {
	return SideEffectResult{Kind: kind, OK: true, Detail: detail, At: at.UTC()}
}

// Failed records a side effect that returned an error.
func Failed(kind, errorKind string, err error, at time.Time) SideEffectResult {
	result := SideEffectResult{Kind: kind, ErrorKind: errorKind, At: at.UTC()}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Skipped records a side effect that had nothing to do (no role configured,
// no applicant identity, and so on). Skipped results count as OK.
func Skipped(kind, reason string, at time.Time) SideEffectResult {
	return SideEffectResult{Kind: kind, OK: true, Skipped: true, Detail: reason, At: at.UTC()}
}

// DuplicateSignal links a new application to an earlier probable duplicate.
type DuplicateSignal struct {
	ApplicationID string    `json:"applicationId"`
	TrackKey      string    `json:"trackKey"`
	Status        Status    `json:"status"`
	Reasons       []string  `json:"reasons"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DecisionSnapshot preserves a prior decision across a reopen.
type DecisionSnapshot struct {
	Status         Status         `json:"status"`
	DecidedAt      *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy      string         `json:"decidedBy,omitempty"`
	DecisionSource DecisionSource `json:"decisionSource,omitempty"`
	DecisionReason string         `json:"decisionReason,omitempty"`
	VoteContext    *VoteContext   `json:"voteContext,omitempty"`
	ReopenedAt     time.Time      `json:"reopenedAt"`
	ReopenedBy     string         `json:"reopenedBy,omitempty"`
	ReopenReason   string         `json:"reopenReason,omitempty"`
}

// Application is one posted submission and its decision lifecycle. The ID is
// the posted message id.
type Application struct {
	ID                         string            `json:"id"`
	ChannelID                  string            `json:"channelId"`
	ThreadID                   string            `json:"threadId,omitempty"`
	Status                     Status            `json:"status"`
	Closed                     bool              `json:"closed,omitempty"`
	TrackKey                   string            `json:"trackKey"`
	JobID                      string            `json:"jobId"`
	RowIndex                   int               `json:"rowIndex"`
	ResponseKey                string            `json:"responseKey,omitempty"`
	SubmittedFieldsFingerprint string            `json:"submittedFieldsFingerprint"`
	ApplicantName              string            `json:"applicantName,omitempty"`
	ApplicantUserID            string            `json:"applicantUserId,omitempty"`
	CreatedAt                  time.Time         `json:"createdAt"`
	DuplicateSignals           []DuplicateSignal `json:"duplicateSignals,omitempty"`

	DecidedAt      *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy      string         `json:"decidedBy,omitempty"`
	DecisionSource DecisionSource `json:"decisionSource,omitempty"`
	DecisionReason string         `json:"decisionReason,omitempty"`
	VoteContext    *VoteContext   `json:"voteContext,omitempty"`

	ReminderCount  int        `json:"reminderCount"`
	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`

	LastDecision *DecisionSnapshot           `json:"lastDecision,omitempty"`
	SideEffects  map[string]SideEffectResult `json:"sideEffects,omitempty"`
}

// RecordEffect stores a side effect result, replacing any earlier one of the same kind.
func (a *Application) RecordEffect(result SideEffectResult) {
	if a.SideEffects == nil {
		a.SideEffects = make(map[string]SideEffectResult)
	}
	a.SideEffects[result.Kind] = result
}

// Effect returns the recorded result for kind.
func (a *Application) Effect(kind string) (SideEffectResult, bool) {
	result, ok := a.SideEffects[kind]
	return result, ok
}

// ClearDecision resets every decision and reminder field to the pending state.
func (a *Application) ClearDecision() {
	a.Status = StatusPending
	a.DecidedAt = nil
	a.DecidedBy = ""
	a.DecisionSource = ""
	a.DecisionReason = ""
	a.VoteContext = nil
	a.ReminderCount = 0
	a.LastReminderAt = nil
}
