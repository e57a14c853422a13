// Package lifecycle is the job state machine. It enforces legal transitions,
// applies field changes to a job handle, and decides which notification a
// transition calls for. It never persists or sends anything itself.
//
//	pending --assign--> assigned --end--> completed
//	   |                   |
//	   +------cancel-------+--cancel--> canceled
//
// Update with a status field overwrites the status without consulting the
// table above. That path is kept for administrative correction and is the
// only way to leave a terminal state.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easybooking/internal/domain"
)

// NewJob holds validated creation fields.
type NewJob struct {
	RequesterID int64
	LanguageID  int64
	DueAt       time.Time
	Duration    int
}

// Changes holds the fields supplied to Update. Nil means "not supplied".
type Changes struct {
	Status       *domain.JobStatus
	TranslatorID *int64
	LanguageID   *int64
	DueAt        *time.Time
	Duration     *int
}

// HasStatus reports whether the update touches the status field.
func (c Changes) HasStatus() bool {
	return c.Status != nil
}

// Notice is the notification a transition asks for. It is bound to the job
// snapshot only after the store has committed the change.
type Notice struct {
	Kind       domain.EventKind
	OldStatus  domain.JobStatus
	NewStatus  domain.JobStatus
	Candidates []int64
}

// Bind turns the notice into an event about the committed job.
func (n Notice) Bind(job domain.Job, at time.Time) domain.NotificationEvent {
	return domain.NotificationEvent{
		ID:         uuid.New(),
		Kind:       n.Kind,
		Job:        job.Clone(),
		OldStatus:  n.OldStatus,
		NewStatus:  n.NewStatus,
		Candidates: append([]int64(nil), n.Candidates...),
		OccurredAt: at,
	}
}

type Lifecycle struct {
	now func() time.Time
}

func New() *Lifecycle {
	return &Lifecycle{now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Now returns the lifecycle's current time in UTC.
func (l *Lifecycle) Now() time.Time {
	return l.now().UTC()
}

// Create builds a pending job with no translator.
func (l *Lifecycle) Create(in NewJob) (domain.Job, Notice) {
	now := l.Now()
	job := domain.Job{
		RequesterID: in.RequesterID,
		LanguageID:  in.LanguageID,
		Status:      domain.JobStatusPending,
		DueAt:       in.DueAt.UTC(),
		Duration:    in.Duration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return job, Notice{Kind: domain.EventKindCreated, NewStatus: domain.JobStatusPending}
}

// Update merges changes into job. Without a status field the job must be
// non-terminal, a translator may only be changed on an assigned job, and no
// notice is produced. With a status field the status is
// overwritten unconditionally and a status_changed notice is returned.
func (l *Lifecycle) Update(job *domain.Job, ch Changes) (*Notice, error) {
	if !ch.HasStatus() && job.Status.IsTerminal() {
		return nil, &domain.InvalidTransitionError{Op: domain.OpUpdate, From: job.Status}
	}
	// Pending jobs gain a translator through Assign only.
	if !ch.HasStatus() && ch.TranslatorID != nil && job.Status != domain.JobStatusAssigned {
		return nil, &domain.InvalidTransitionError{Op: domain.OpUpdate, From: job.Status}
	}

	if ch.TranslatorID != nil {
		v := *ch.TranslatorID
		job.TranslatorID = &v
	}
	if ch.LanguageID != nil {
		job.LanguageID = *ch.LanguageID
	}
	if ch.DueAt != nil {
		job.DueAt = ch.DueAt.UTC()
	}
	if ch.Duration != nil {
		job.Duration = *ch.Duration
	}
	job.UpdatedAt = l.Now()

	if !ch.HasStatus() {
		return nil, nil
	}

	old := job.Status
	job.Status = *ch.Status
	return &Notice{
		Kind:      domain.EventKindStatusChanged,
		OldStatus: old,
		NewStatus: job.Status,
	}, nil
}

// Assign gives a pending job to a translator.
func (l *Lifecycle) Assign(job *domain.Job, translatorID int64) (*Notice, error) {
	if job.Status != domain.JobStatusPending {
		return nil, &domain.InvalidTransitionError{Op: domain.OpAssign, From: job.Status}
	}

	job.TranslatorID = &translatorID
	job.Status = domain.JobStatusAssigned
	job.UpdatedAt = l.Now()

	return &Notice{
		Kind:       domain.EventKindAssignmentOffered,
		OldStatus:  domain.JobStatusPending,
		NewStatus:  domain.JobStatusAssigned,
		Candidates: []int64{translatorID},
	}, nil
}

// Offer advertises a pending job to candidate translators without changing it.
func (l *Lifecycle) Offer(job domain.Job, candidates []int64) (*Notice, error) {
	if job.Status != domain.JobStatusPending {
		return nil, &domain.InvalidTransitionError{Op: domain.OpOffer, From: job.Status}
	}
	return &Notice{
		Kind:       domain.EventKindAssignmentOffered,
		OldStatus:  job.Status,
		NewStatus:  job.Status,
		Candidates: append([]int64(nil), candidates...),
	}, nil
}

// Cancel cancels any job that is not completed. The translator, if any, is kept.
func (l *Lifecycle) Cancel(job *domain.Job, cancelledBy int64) (*Notice, error) {
	if job.Status == domain.JobStatusCompleted {
		return nil, &domain.InvalidTransitionError{Op: domain.OpCancel, From: job.Status}
	}

	old := job.Status
	job.Status = domain.JobStatusCanceled
	job.CancelledBy = &cancelledBy
	job.UpdatedAt = l.Now()

	return &Notice{
		Kind:      domain.EventKindStatusChanged,
		OldStatus: old,
		NewStatus: domain.JobStatusCanceled,
	}, nil
}

// End completes an assigned job and stamps the completion time.
func (l *Lifecycle) End(job *domain.Job) (*Notice, error) {
	if job.Status != domain.JobStatusAssigned {
		return nil, &domain.InvalidTransitionError{Op: domain.OpEnd, From: job.Status}
	}

	now := l.Now()
	job.Status = domain.JobStatusCompleted
	job.CompletedAt = &now
	job.UpdatedAt = now

	return &Notice{
		Kind:      domain.EventKindStatusChanged,
		OldStatus: domain.JobStatusAssigned,
		NewStatus: domain.JobStatusCompleted,
	}, nil
}

// CheckInvariants reports whether the optional fields agree with the status.
// Only Update's status overwrite can produce a job that fails it.
func CheckInvariants(job domain.Job) bool {
	switch job.Status {
	case domain.JobStatusPending:
		return job.TranslatorID == nil && job.CompletedAt == nil && job.CancelledBy == nil
	case domain.JobStatusAssigned:
		return job.TranslatorID != nil && job.CompletedAt == nil && job.CancelledBy == nil
	case domain.JobStatusCompleted:
		return job.TranslatorID != nil && job.CompletedAt != nil && job.CancelledBy == nil
	case domain.JobStatusCanceled:
		return job.CompletedAt == nil && job.CancelledBy != nil
	default:
		return false
	}
}
