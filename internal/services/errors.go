package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternal      = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Category groups failures by the operator response they need.
type Category string

const (
	// CategoryConfiguration failures block until an operator fixes config.
	CategoryConfiguration Category = "configuration"
	// CategoryTransient failures clear on their own once the backend recovers.
	CategoryTransient Category = "transient"
	// CategoryExternal failures come from a collaborator rejecting a request.
	CategoryExternal Category = "external"
	// CategoryUnexpected covers everything without a marker.
	CategoryUnexpected Category = "unexpected"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the category recorded on blocked jobs and used as
// the error hint in operator alerts.
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return CategoryConfiguration
	case errors.Is(err, ErrTransient):
		return CategoryTransient
	case errors.Is(err, ErrExternal), errors.Is(err, ErrNotFound):
		return CategoryExternal
	default:
		return CategoryUnexpected
	}
}

// Hint returns a short next step for the category.
func (c Category) Hint() string {
	switch c {
	case CategoryConfiguration:
		return "fix the track or channel configuration, then replay the queue"
	case CategoryTransient:
		return "the backend was unavailable; the next poll retries automatically"
	case CategoryExternal:
		return "check bot permissions and the referenced channel or message"
	default:
		return "inspect the error and clear or replay the job"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
