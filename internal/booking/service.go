// Package booking is the entry point for callers. Every write follows the
// same order: validate, apply the lifecycle transition, persist, and only
// then notify. A failed save never produces a notification.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/djlord-it/easybooking/internal/domain"
	"github.com/djlord-it/easybooking/internal/lifecycle"
	"github.com/djlord-it/easybooking/internal/validation"
)

// Store persists jobs. Save must reject a job whose Version no longer
// matches the stored one with domain.ErrConcurrentModification.
type Store interface {
	Fetch(ctx context.Context, id int64) (domain.Job, error)
	Create(ctx context.Context, job domain.Job) (domain.Job, error)
	Save(ctx context.Context, job domain.Job) (domain.Job, error)
	QueryByUser(ctx context.Context, userID int64) ([]domain.Job, error)
	QueryPending(ctx context.Context, languageIDs []int64) ([]domain.Job, error)
}

// Directory answers questions about users and languages.
type Directory interface {
	ResolveUser(ctx context.Context, id int64) (domain.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	LanguageExists(ctx context.Context, id int64) (bool, error)
}

// Notifier delivers an event about a committed change. It must not report
// failure back; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.NotificationEvent)
}

// MetricsSink defines the interface for recording booking metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	OperationCompleted(op string, duration time.Duration, err error)
	JobTransitioned(from, to string)
}

// FieldTranslatorIDs is the field reported when an offer names no candidates.
const FieldTranslatorIDs = "translator_ids"

// UserJobs is a requester's job list split by status.
type UserJobs struct {
	Active    []domain.Job `json:"active_jobs"`
	Completed []domain.Job `json:"completed_jobs"`
	Canceled  []domain.Job `json:"canceled_jobs"`
}

type Service struct {
	store     Store
	directory Directory
	notifier  Notifier
	validator *validation.Validator
	lifecycle *lifecycle.Lifecycle
	metrics   MetricsSink // optional, nil = disabled
	logger    zerolog.Logger
}

func New(store Store, directory Directory, notifier Notifier) *Service {
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		validator: validation.New(directory),
		lifecycle: lifecycle.New(),
		logger:    zerolog.Nop(),
	}
}

// WithClock overrides the time source for date validation and timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.validator.WithClock(now)
	s.lifecycle.WithClock(now)
	return s
}

// WithMetrics attaches a metrics sink to the service.
func (s *Service) WithMetrics(sink MetricsSink) *Service {
	s.metrics = sink
	return s
}

func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger.With().Str("component", "booking").Logger()
	return s
}

// CreateJob validates the payload and stores a new pending job. The
// requester is told once the job is stored.
func (s *Service) CreateJob(ctx context.Context, payload validation.Payload) (job domain.Job, err error) {
	defer s.observe(domain.OpCreate, time.Now(), &err)

	if err := s.validator.Validate(ctx, payload, validation.CreateJobRules()); err != nil {
		return domain.Job{}, err
	}

	requester, _ := payload.Int64(validation.FieldUserID)
	language, _ := payload.Int64(validation.FieldLanguageID)
	due, _ := payload.Time(validation.FieldDueDate)
	duration, _ := payload.Int64(validation.FieldDuration)

	draft, notice := s.lifecycle.Create(lifecycle.NewJob{
		RequesterID: requester,
		LanguageID:  language,
		DueAt:       due,
		Duration:    int(duration),
	})

	job, err = s.store.Create(ctx, draft)
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info().Int64("job_id", job.ID).Int64("requester_id", job.RequesterID).Msg("job created")
	s.notify(ctx, &notice, job)
	return job, nil
}

// UpdateJob merges the supplied fields into the job. A status field
// overwrites the status without consulting the transition guards.
func (s *Service) UpdateJob(ctx context.Context, id int64, payload validation.Payload) (job domain.Job, err error) {
	defer s.observe(domain.OpUpdate, time.Now(), &err)

	if err := s.validator.Validate(ctx, payload, validation.UpdateJobRules()); err != nil {
		return domain.Job{}, err
	}
	changes := changesFrom(payload)

	return s.transition(ctx, domain.OpUpdate, id, func(job *domain.Job) (*lifecycle.Notice, error) {
		return s.lifecycle.Update(job, changes)
	})
}

// AssignTranslator gives a pending job to a translator.
func (s *Service) AssignTranslator(ctx context.Context, id, translatorID int64) (job domain.Job, err error) {
	defer s.observe(domain.OpAssign, time.Now(), &err)

	ok, err := s.directory.UserExists(ctx, translatorID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("assign job %d: %w", id, err)
	}
	if !ok {
		return domain.Job{}, fmt.Errorf("assign job %d: translator %d: %w", id, translatorID, domain.ErrNotFound)
	}

	return s.transition(ctx, domain.OpAssign, id, func(job *domain.Job) (*lifecycle.Notice, error) {
		return s.lifecycle.Assign(job, translatorID)
	})
}

// OfferJob tells candidate translators about a pending job. Nothing is
// persisted.
func (s *Service) OfferJob(ctx context.Context, id int64, translatorIDs []int64) (err error) {
	defer s.observe(domain.OpOffer, time.Now(), &err)

	if len(translatorIDs) == 0 {
		return domain.ValidationErrors{{Field: FieldTranslatorIDs, Message: "is required"}}
	}

	job, err := s.store.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("offer job %d: %w", id, err)
	}
	notice, err := s.lifecycle.Offer(job, translatorIDs)
	if err != nil {
		return err
	}

	s.logger.Info().Int64("job_id", job.ID).Int("candidates", len(translatorIDs)).Msg("job offered")
	s.notify(ctx, notice, job)
	return nil
}

// CancelJob cancels any job that has not been completed.
func (s *Service) CancelJob(ctx context.Context, id, cancelledBy int64) (job domain.Job, err error) {
	defer s.observe(domain.OpCancel, time.Now(), &err)

	return s.transition(ctx, domain.OpCancel, id, func(job *domain.Job) (*lifecycle.Notice, error) {
		return s.lifecycle.Cancel(job, cancelledBy)
	})
}

// EndJob completes an assigned job.
func (s *Service) EndJob(ctx context.Context, id int64) (job domain.Job, err error) {
	defer s.observe(domain.OpEnd, time.Now(), &err)

	return s.transition(ctx, domain.OpEnd, id, func(job *domain.Job) (*lifecycle.Notice, error) {
		return s.lifecycle.End(job)
	})
}

// UserJobs lists the jobs a user requested, split into active (pending or
// assigned), completed and canceled.
func (s *Service) UserJobs(ctx context.Context, userID int64) (UserJobs, error) {
	jobs, err := s.store.QueryByUser(ctx, userID)
	if err != nil {
		return UserJobs{}, fmt.Errorf("query jobs for user %d: %w", userID, err)
	}

	out := UserJobs{
		Active:    []domain.Job{},
		Completed: []domain.Job{},
		Canceled:  []domain.Job{},
	}
	for _, j := range jobs {
		switch {
		case j.IsActive():
			out.Active = append(out.Active, j)
		case j.Status == domain.JobStatusCompleted:
			out.Completed = append(out.Completed, j)
		case j.Status == domain.JobStatusCanceled:
			out.Canceled = append(out.Canceled, j)
		}
	}
	return out, nil
}

// PotentialJobs lists pending jobs in any language the translator speaks.
func (s *Service) PotentialJobs(ctx context.Context, translatorID int64) ([]domain.Job, error) {
	translator, err := s.directory.ResolveUser(ctx, translatorID)
	if err != nil {
		return nil, fmt.Errorf("potential jobs for translator %d: %w", translatorID, err)
	}

	jobs, err := s.store.QueryPending(ctx, translator.LanguageIDs)
	if err != nil {
		return nil, fmt.Errorf("potential jobs for translator %d: %w", translatorID, err)
	}
	return jobs, nil
}

// Job returns a single job.
func (s *Service) Job(ctx context.Context, id int64) (domain.Job, error) {
	job, err := s.store.Fetch(ctx, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// transition runs one fetch, mutate, save cycle. The save is conditional on
// the fetched version, so of two racing transitions on the same job only
// one is stored; the other gets domain.ErrConcurrentModification.
func (s *Service) transition(ctx context.Context, op domain.Operation, id int64, apply func(*domain.Job) (*lifecycle.Notice, error)) (domain.Job, error) {
	job, err := s.store.Fetch(ctx, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%s job %d: %w", op, id, err)
	}
	before := job.Status

	notice, err := apply(&job)
	if err != nil {
		s.logger.Debug().Err(err).Int64("job_id", id).Str("op", string(op)).Msg("transition rejected")
		return domain.Job{}, err
	}

	saved, err := s.store.Save(ctx, job)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%s job %d: %w", op, id, err)
	}

	if saved.Status != before {
		s.logger.Info().
			Int64("job_id", saved.ID).
			Str("op", string(op)).
			Str("from", string(before)).
			Str("to", string(saved.Status)).
			Msg("job transitioned")
		if s.metrics != nil {
			s.metrics.JobTransitioned(string(before), string(saved.Status))
		}
	}

	s.notify(ctx, notice, saved)
	return saved, nil
}

func (s *Service) notify(ctx context.Context, notice *lifecycle.Notice, job domain.Job) {
	if notice == nil || s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notice.Bind(job, s.lifecycle.Now()))
}

func (s *Service) observe(op domain.Operation, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationCompleted(string(op), time.Since(start), *err)
}

// changesFrom reads an already validated update payload.
func changesFrom(p validation.Payload) lifecycle.Changes {
	var ch lifecycle.Changes
	if v, ok := p.String(validation.FieldStatus); ok {
		status := domain.JobStatus(v)
		ch.Status = &status
	}
	if v, ok := p.Int64(validation.FieldTranslatorID); ok {
		ch.TranslatorID = &v
	}
	if v, ok := p.Int64(validation.FieldLanguageID); ok {
		ch.LanguageID = &v
	}
	if v, ok := p.Time(validation.FieldDueDate); ok {
		ch.DueAt = &v
	}
	if v, ok := p.Int64(validation.FieldDuration); ok {
		d := int(v)
		ch.Duration = &d
	}
	return ch
}
