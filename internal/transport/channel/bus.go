// Package channel is an in-process event bus that decouples committing a job
// change from sending its notifications.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/djlord-it/easybooking/internal/domain"
)

// DefaultEmitTimeout bounds how long Emit waits for buffer space.
const DefaultEmitTimeout = 100 * time.Millisecond

var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink receives buffer occupancy updates.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		if d > 0 {
			b.emitTimeout = d
		}
	}
}

func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *EventBus) {
		b.logger = logger.With().Str("component", "eventbus").Logger()
	}
}

type EventBus struct {
	ch          chan domain.NotificationEvent
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
	logger      zerolog.Logger
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.NotificationEvent, buffer),
		emitTimeout: DefaultEmitTimeout,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(cap(b.ch))
	}
	return b
}

// Emit enqueues the event, waiting at most the emit timeout for space.
func (b *EventBus) Emit(ctx context.Context, event domain.NotificationEvent) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.reportSize()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

// Notify emits the event and logs, rather than returns, any failure. The
// job change it describes is already committed.
func (b *EventBus) Notify(ctx context.Context, event domain.NotificationEvent) {
	if err := b.Emit(ctx, event); err != nil {
		b.logger.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("kind", string(event.Kind)).
			Int64("job_id", event.Job.ID).
			Msg("notification dropped")
	}
}

func (b *EventBus) Channel() <-chan domain.NotificationEvent {
	return b.ch
}

func (b *EventBus) reportSize() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if c := cap(b.ch); c > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(c))
	}
}
