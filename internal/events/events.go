package events

import (
	"intake/internal/decision"
	"intake/internal/pipeline"
	"intake/internal/reminders"
	"intake/internal/state"
)

// Kind names an event.
type Kind string

const (
	KindReaction Kind = "reaction"
	KindEvaluate Kind = "evaluate"
	KindFinalize Kind = "finalize"
	KindReopen   Kind = "reopen"
	KindPoll     Kind = "poll"
	KindReplay   Kind = "replay"
	KindClearJob Kind = "clear_job"
	KindSweep    Kind = "sweep"
)

// Event is one trigger. Only the fields relevant to Kind are read.
type Event struct {
	Kind          Kind
	ApplicationID string
	Emoji         string
	UserID        string
	Decision      state.Status
	Source        state.DecisionSource
	ActorID       string
	Reason        string
	JobID         string
}

// Reaction builds a reaction change event for a posted application.
func Reaction(applicationID, emoji, userID string) Event {
	return Event{Kind: KindReaction, ApplicationID: applicationID, Emoji: emoji, UserID: userID}
}

// Finalize builds an operator decision event.
func Finalize(applicationID string, decision state.Status, source state.DecisionSource, actorID, reason string) Event {
	return Event{Kind: KindFinalize, ApplicationID: applicationID, Decision: decision, Source: source, ActorID: actorID, Reason: reason}
}

// Reopen builds a reopen event.
func Reopen(applicationID, actorID, reason string) Event {
	return Event{Kind: KindReopen, ApplicationID: applicationID, ActorID: actorID, Reason: reason}
}

// ClearJob builds a queue clear event.
func ClearJob(jobID string) Event {
	return Event{Kind: KindClearJob, JobID: jobID}
}

// Result carries the outcome of one event. Exactly one payload field is set
// for a successful event, matching its Kind.
type Result struct {
	Kind     Kind                   `json:"kind"`
	Poll     *pipeline.PollResult   `json:"poll,omitempty"`
	Drain    *pipeline.DrainResult  `json:"drain,omitempty"`
	Decision *decision.Outcome      `json:"decision,omitempty"`
	Vote     *decision.VoteOutcome  `json:"vote,omitempty"`
	Cleared  *state.PostJob         `json:"cleared,omitempty"`
	Sweep    *reminders.SweepResult `json:"sweep,omitempty"`
	Ignored  bool                   `json:"ignored,omitempty"`
}
