package domain

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobStatuses lists every known status in lifecycle order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAssigned,
	JobStatusCompleted,
	JobStatusCanceled,
}

// IsTerminal reports whether no lifecycle transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCanceled
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	for _, known := range JobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Job is a unit of translation work tracked through the status lifecycle.
type Job struct {
	ID          int64
	RequesterID int64

	TranslatorID *int64
	LanguageID   int64

	Status   JobStatus
	DueAt    time.Time
	Duration int // minutes

	CancelledBy *int64
	CompletedAt *time.Time

	// Version is bumped by the store on every successful save.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so pointer fields are not shared with the original.
func (j Job) Clone() Job {
	out := j
	if j.TranslatorID != nil {
		v := *j.TranslatorID
		out.TranslatorID = &v
	}
	if j.CancelledBy != nil {
		v := *j.CancelledBy
		out.CancelledBy = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		out.CompletedAt = &v
	}
	return out
}

// IsActive reports whether the job still awaits work (pending or assigned).
func (j Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusAssigned
}
