// Package analytics keeps windowed notification counters in Redis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/djlord-it/easybooking/internal/dispatcher"
	"github.com/djlord-it/easybooking/internal/domain"
)

const (
	DefaultWindow    = time.Hour
	DefaultRetention = 7 * 24 * time.Hour
)

// RedisSink counts sent and failed notifications per event kind and time
// bucket. It implements dispatcher.StatsSink; write errors are logged only.
type RedisSink struct {
	client    redis.Cmdable
	window    time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

func NewRedisSink(client redis.Cmdable, window, retention time.Duration) *RedisSink {
	if window <= 0 {
		window = DefaultWindow
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisSink{
		client:    client,
		window:    window,
		retention: retention,
		logger:    zerolog.Nop(),
	}
}

func (s *RedisSink) WithLogger(logger zerolog.Logger) *RedisSink {
	s.logger = logger.With().Str("component", "analytics").Logger()
	return s
}

func (s *RedisSink) Record(ctx context.Context, event domain.NotificationEvent, report dispatcher.Report) {
	if err := s.write(ctx, event, report); err != nil {
		s.logger.Warn().Err(err).
			Str("event_id", event.ID.String()).
			Str("kind", string(event.Kind)).
			Msg("stats write failed")
	}
}

func (s *RedisSink) write(ctx context.Context, event domain.NotificationEvent, report dispatcher.Report) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	sentKey := buildKey(event.Kind, "sent", at, s.window)
	failedKey := buildKey(event.Kind, "failed", at, s.window)

	pipe := s.client.Pipeline()
	pipe.IncrBy(ctx, sentKey, int64(report.Sent))
	pipe.IncrBy(ctx, failedKey, int64(report.Failed))
	pipe.Expire(ctx, sentKey, s.retention)
	pipe.Expire(ctx, failedKey, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Counts returns the sent and failed totals for the bucket containing at.
func (s *RedisSink) Counts(ctx context.Context, kind domain.EventKind, at time.Time) (sent, failed int64, err error) {
	sent, err = s.get(ctx, buildKey(kind, "sent", at, s.window))
	if err != nil {
		return 0, 0, err
	}
	failed, err = s.get(ctx, buildKey(kind, "failed", at, s.window))
	if err != nil {
		return 0, 0, err
	}
	return sent, failed, nil
}

func (s *RedisSink) get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

func buildKey(kind domain.EventKind, outcome string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("eb:n:%s:%s:%s", kind, outcome, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	case 24 * time.Hour:
		return t.Format("20060102")
	default:
		return t.Format("200601021504")
	}
}
