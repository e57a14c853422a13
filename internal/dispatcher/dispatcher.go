package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/djlord-it/easybooking/internal/domain"
)

const defaultParallelism = 4

// Per-recipient outcomes reported to the metrics sink.
const (
	OutcomeSent          = "sent"
	OutcomeResolveFailed = "resolve_failed"
	OutcomeCircuitOpen   = "circuit_open"
	OutcomeSendFailed    = "send_failed"
)

// Template keys rendered by the mailer on the other side of the Sender.
const (
	TemplateJobCreated      = "emails.job-created"
	TemplateStatusChanged   = "emails.job-status-change"
	TemplateNewJobAvailable = "emails.new-job-available"
)

type Directory interface {
	ResolveUser(ctx context.Context, id int64) (domain.User, error)
}

// Sender hands one composed message to the mail transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Breaker short-circuits sends to recipients that keep failing.
type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

// StatsSink receives the report of every dispatched event. Implementations
// handle their own errors; stats never affect delivery.
type StatsSink interface {
	Record(ctx context.Context, event domain.NotificationEvent, report Report)
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	NotificationAttempted(kind string, outcome string, duration time.Duration)
	EventDispatched(kind string, sent, failed int)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

type Message struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Payload  map[string]any `json:"payload"`
}

// Failure records why one recipient was not reached.
type Failure struct {
	UserID  int64
	Outcome string
	Err     error
}

// Report summarises one dispatched event.
type Report struct {
	EventID  uuid.UUID
	Kind     domain.EventKind
	Sent     int
	Failed   int
	Failures []Failure
}

type Dispatcher struct {
	directory Directory
	sender    Sender
	breaker   Breaker     // optional, nil = disabled
	stats     StatsSink   // optional, nil = disabled
	metrics   MetricsSink // optional, nil = disabled
	logger    zerolog.Logger

	parallelism  int
	drainTimeout time.Duration
}

func New(directory Directory, sender Sender) *Dispatcher {
	return &Dispatcher{
		directory:    directory,
		sender:       sender,
		logger:       zerolog.Nop(),
		parallelism:  defaultParallelism,
		drainTimeout: DefaultDrainTimeout,
	}
}

// WithBreaker attaches a per-recipient circuit breaker keyed by email.
func (d *Dispatcher) WithBreaker(b Breaker) *Dispatcher {
	d.breaker = b
	return d
}

func (d *Dispatcher) WithStats(sink StatsSink) *Dispatcher {
	d.stats = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

func (d *Dispatcher) WithLogger(logger zerolog.Logger) *Dispatcher {
	d.logger = logger.With().Str("component", "dispatcher").Logger()
	return d
}

// WithParallelism bounds how many recipients of one event are sent to at once.
// Values below 1 are treated as 1.
func (d *Dispatcher) WithParallelism(n int) *Dispatcher {
	if n < 1 {
		n = 1
	}
	d.parallelism = n
	return d
}

// WithDrainTimeout sets the maximum time to drain buffered events on shutdown.
func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

// Notify dispatches the event and discards the report. Failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, event domain.NotificationEvent) {
	d.Dispatch(ctx, event)
}

// Run processes events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.NotificationEvent) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.Dispatch(ctx, event)
		}
	}
}

// DefaultDrainTimeout is the maximum time to wait for buffered events during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.NotificationEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			d.logger.Warn().Int("processed", count).Msg("drain timeout")
			return
		case event, ok := <-ch:
			if !ok {
				d.logger.Info().Int("processed", count).Msg("drain complete")
				return
			}
			d.Dispatch(drainCtx, event)
			count++
		default:
			if count > 0 {
				d.logger.Info().Int("processed", count).Msg("drain complete")
			}
			return
		}
	}
}

// Dispatch sends one message per recipient of the event. Recipients are
// processed independently and concurrently; a failure for one never stops
// the others and is never returned, only logged and counted in the report.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.NotificationEvent) Report {
	if d.metrics != nil {
		d.metrics.EventsInFlightIncr()
		defer d.metrics.EventsInFlightDecr()
	}

	recipients := Recipients(event)
	results := make([]Failure, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for i, userID := range recipients {
		i, userID := i, userID
		g.Go(func() error {
			results[i] = d.deliver(ctx, event, userID)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{EventID: event.ID, Kind: event.Kind}
	for _, r := range results {
		if r.Outcome == OutcomeSent {
			report.Sent++
			continue
		}
		report.Failed++
		report.Failures = append(report.Failures, r)
	}

	log := d.logger.Info()
	if report.Failed > 0 {
		log = d.logger.Warn()
	}
	log.Str("event_id", event.ID.String()).
		Str("kind", string(event.Kind)).
		Int64("job_id", event.Job.ID).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("event dispatched")

	if d.metrics != nil {
		d.metrics.EventDispatched(string(event.Kind), report.Sent, report.Failed)
	}
	if d.stats != nil {
		d.stats.Record(ctx, event, report)
	}
	return report
}

// deliver handles one recipient. The returned Failure has Outcome
// OutcomeSent on success.
func (d *Dispatcher) deliver(ctx context.Context, event domain.NotificationEvent, userID int64) (res Failure) {
	start := time.Now()
	res = Failure{UserID: userID}

	// breakerKey is set once Allow passes; a panicking send still records
	// a failure against it.
	var breakerKey string

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeSendFailed
			res.Err = fmt.Errorf("sender panic: %v", r)
			if breakerKey != "" {
				d.breaker.RecordFailure(breakerKey)
			}
		}
		if res.Err != nil {
			d.logger.Error().Err(res.Err).
				Str("event_id", event.ID.String()).
				Str("kind", string(event.Kind)).
				Int64("job_id", event.Job.ID).
				Int64("user_id", userID).
				Str("outcome", res.Outcome).
				Msg("notification failed")
		}
		if d.metrics != nil {
			d.metrics.NotificationAttempted(string(event.Kind), res.Outcome, time.Since(start))
		}
	}()

	user, err := d.directory.ResolveUser(ctx, userID)
	if err != nil {
		res.Outcome = OutcomeResolveFailed
		res.Err = fmt.Errorf("resolve user %d: %w", userID, err)
		return res
	}

	if d.breaker != nil {
		if err := d.breaker.Allow(user.Email); err != nil {
			res.Outcome = OutcomeCircuitOpen
			res.Err = fmt.Errorf("send to %s: %w", user.Email, err)
			return res
		}
		breakerKey = user.Email
	}

	msg := compose(event, user)
	if err := d.sender.Send(ctx, msg); err != nil {
		if d.breaker != nil {
			d.breaker.RecordFailure(user.Email)
		}
		res.Outcome = OutcomeSendFailed
		res.Err = fmt.Errorf("send to %s: %w", user.Email, err)
		return res
	}
	if d.breaker != nil {
		d.breaker.RecordSuccess(user.Email)
	}

	d.logger.Debug().
		Str("event_id", event.ID.String()).
		Int64("job_id", event.Job.ID).
		Int64("user_id", userID).
		Str("subject", msg.Subject).
		Msg("notification sent")

	res.Outcome = OutcomeSent
	return res
}

// Recipients resolves who must hear about the event, without duplicates.
//
//	created            -> requester
//	status_changed     -> requester, plus translator when one is set
//	assignment_offered -> the candidate translators
func Recipients(event domain.NotificationEvent) []int64 {
	var ids []int64
	switch event.Kind {
	case domain.EventKindCreated:
		ids = []int64{event.Job.RequesterID}
	case domain.EventKindStatusChanged:
		ids = []int64{event.Job.RequesterID}
		if event.Job.TranslatorID != nil {
			ids = append(ids, *event.Job.TranslatorID)
		}
	case domain.EventKindAssignmentOffered:
		ids = event.Candidates
	}

	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func compose(event domain.NotificationEvent, user domain.User) Message {
	payload := map[string]any{
		"job_id": event.Job.ID,
		"job":    jobPayload(event.Job),
		"user": map[string]any{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	}

	msg := Message{
		ID:      uuid.NewString(),
		Email:   user.Email,
		Name:    user.Name,
		Payload: payload,
	}

	switch event.Kind {
	case domain.EventKindCreated:
		msg.Subject = fmt.Sprintf("New Job Created: #%d", event.Job.ID)
		msg.Template = TemplateJobCreated
	case domain.EventKindStatusChanged:
		msg.Subject = fmt.Sprintf("Job Status Changed: #%d", event.Job.ID)
		msg.Template = TemplateStatusChanged
		payload["old_status"] = string(event.OldStatus)
		payload["new_status"] = string(event.NewStatus)
	case domain.EventKindAssignmentOffered:
		msg.Subject = fmt.Sprintf("New Translation Job Available: #%d", event.Job.ID)
		msg.Template = TemplateNewJobAvailable
		payload["translator"] = payload["user"]
	}
	return msg
}

func jobPayload(job domain.Job) map[string]any {
	p := map[string]any{
		"id":          job.ID,
		"user_id":     job.RequesterID,
		"language_id": job.LanguageID,
		"status":      string(job.Status),
		"due_at":      job.DueAt.UTC().Format(time.RFC3339),
		"duration":    job.Duration,
	}
	if job.TranslatorID != nil {
		p["translator_id"] = *job.TranslatorID
	}
	if job.CompletedAt != nil {
		p["completed_at"] = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	if job.CancelledBy != nil {
		p["cancelled_by"] = *job.CancelledBy
	}
	return p
}
