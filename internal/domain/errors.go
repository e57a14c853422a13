package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Operation names a lifecycle operation for error reporting and metrics.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpAssign Operation = "assign"
	OpOffer  Operation = "offer"
	OpCancel Operation = "cancel"
	OpEnd    Operation = "end"
)

// InvalidTransitionError reports a guard violation. It matches
// ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	Op   Operation
	From JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s job in status %q", e.Op, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// FieldError names one payload field that failed its rules.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the full set of field errors for one payload.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return "validation failed: " + e[0].Error()
	}
	msg := fmt.Sprintf("validation failed: %d errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Fields returns the names of the failing fields in order.
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.Field)
	}
	return out
}
