package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventKindCreated           EventKind = "created"
	EventKindStatusChanged     EventKind = "status_changed"
	EventKindAssignmentOffered EventKind = "assignment_offered"
)

// EventKinds lists every notification kind.
var EventKinds = []EventKind{EventKindCreated, EventKindStatusChanged, EventKindAssignmentOffered}

// NotificationEvent describes who must be told about a committed transition.
// It is never persisted.
type NotificationEvent struct {
	ID   uuid.UUID
	Kind EventKind
	Job  Job

	// Set for EventKindStatusChanged.
	OldStatus JobStatus
	NewStatus JobStatus

	// Set for EventKindAssignmentOffered.
	Candidates []int64

	OccurredAt time.Time
}
