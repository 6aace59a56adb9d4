package decision

import (
	"fmt"

	"intake/internal/state"
)

// FailureCode names a domain rule that stopped a transition.
type FailureCode string

const (
	UnknownApplication FailureCode = "unknown_application"
	AlreadyDecided     FailureCode = "already_decided"
	AlreadyPending     FailureCode = "already_pending"
	InvalidDecision    FailureCode = "invalid_decision"
)

// Failure is a typed domain result returned instead of an error. Callers show
// Message to the operator.
type Failure struct {
	Code          FailureCode  `json:"code"`
	ApplicationID string       `json:"applicationId"`
	Status        state.Status `json:"status,omitempty"`
	Detail        string       `json:"detail,omitempty"`
}

// Message renders the failure for a human.
func (f *Failure) Message() string {
	if f == nil {
		return ""
	}
	switch f.Code {
	case UnknownApplication:
		return fmt.Sprintf("application %s is not tracked", f.ApplicationID)
	case AlreadyDecided:
		return fmt.Sprintf("application %s was already %s", f.ApplicationID, f.Status)
	case AlreadyPending:
		return fmt.Sprintf("application %s is already pending", f.ApplicationID)
	case InvalidDecision:
		return fmt.Sprintf("invalid decision for %s: %s", f.ApplicationID, f.Detail)
	default:
		return string(f.Code)
	}
}
