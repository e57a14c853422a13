package metrics

import (
	"errors"
	"time"

	"github.com/djlord-it/easybooking/internal/domain"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Booking metrics
	OperationCompleted(op string, duration time.Duration, err error)
	JobTransitioned(from, to string)

	// Dispatcher metrics
	NotificationAttempted(kind string, outcome string, duration time.Duration)
	EventDispatched(kind string, sent, failed int)
	EventsInFlightIncr()
	EventsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

// Outcome labels for OperationCompleted, derived from its error by ClassifyError.
const (
	OutcomeOK                 = "ok"
	OutcomeValidationFailed   = "validation_failed"
	OutcomeNotFound           = "not_found"
	OutcomeInvalidTransition  = "invalid_transition"
	OutcomeConcurrentModified = "concurrent_modification"
	OutcomeError              = "error"
)

// ClassifyError maps a booking operation error to an outcome label.
func ClassifyError(err error) string {
	var verrs domain.ValidationErrors
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &verrs):
		return OutcomeValidationFailed
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return OutcomeInvalidTransition
	case errors.Is(err, domain.ErrConcurrentModification):
		return OutcomeConcurrentModified
	default:
		return OutcomeError
	}
}
