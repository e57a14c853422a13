package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger zerolog.Logger

	// Booking metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transitionsTotal  *prometheus.CounterVec

	// Dispatcher metrics
	notificationsTotal   *prometheus.CounterVec
	notificationDuration prometheus.Histogram
	eventsDispatched     *prometheus.CounterVec
	recipientsPerEvent   prometheus.Histogram
	eventsInFlight       prometheus.Gauge

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink;
// the affected collectors simply are not exported.
func NewPrometheusSink(reg prometheus.Registerer, logger zerolog.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger.With().Str("component", "metrics").Logger()}
	s.initBookingMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initEventBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initBookingMetrics(reg prometheus.Registerer) {
	s.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easybooking_operations_total",
		Help: "Total number of booking operations by operation and outcome.",
	}, []string{"op", "outcome"})

	s.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "easybooking_operation_duration_seconds",
		Help:    "Duration of booking operations in seconds, including persistence.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})

	s.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easybooking_job_transitions_total",
		Help: "Total number of committed job status changes.",
	}, []string{"from", "to"})

	s.register(reg, s.operationsTotal, "easybooking_operations_total")
	s.register(reg, s.operationDuration, "easybooking_operation_duration_seconds")
	s.register(reg, s.transitionsTotal, "easybooking_job_transitions_total")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easybooking_dispatcher_notifications_total",
		Help: "Total number of per-recipient notification attempts.",
	}, []string{"kind", "outcome"})

	s.notificationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easybooking_dispatcher_notification_duration_seconds",
		Help:    "Latency of one recipient's resolve and send in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	s.eventsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easybooking_dispatcher_events_total",
		Help: "Total number of dispatched events by kind and whether any recipient failed.",
	}, []string{"kind", "partial"})

	s.recipientsPerEvent = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easybooking_dispatcher_recipients_per_event",
		Help:    "Number of recipients addressed per event.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easybooking_dispatcher_events_in_flight",
		Help: "Number of events currently being processed.",
	})

	s.register(reg, s.notificationsTotal, "easybooking_dispatcher_notifications_total")
	s.register(reg, s.notificationDuration, "easybooking_dispatcher_notification_duration_seconds")
	s.register(reg, s.eventsDispatched, "easybooking_dispatcher_events_total")
	s.register(reg, s.recipientsPerEvent, "easybooking_dispatcher_recipients_per_event")
	s.register(reg, s.eventsInFlight, "easybooking_dispatcher_events_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easybooking_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easybooking_eventbus_buffer_capacity",
		Help: "Capacity of the event bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easybooking_eventbus_buffer_saturation",
		Help: "Ratio of buffered events to capacity.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easybooking_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "easybooking_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "easybooking_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "easybooking_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "easybooking_eventbus_emit_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn().Err(err).Str("metric", name).Msg("failed to register collector")
	}
}

// Booking metrics implementation

func (s *PrometheusSink) OperationCompleted(op string, duration time.Duration, err error) {
	s.operationsTotal.WithLabelValues(op, ClassifyError(err)).Inc()
	s.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (s *PrometheusSink) JobTransitioned(from, to string) {
	s.transitionsTotal.WithLabelValues(from, to).Inc()
}

// Dispatcher metrics implementation

func (s *PrometheusSink) NotificationAttempted(kind string, outcome string, duration time.Duration) {
	s.notificationsTotal.WithLabelValues(kind, outcome).Inc()
	s.notificationDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) EventDispatched(kind string, sent, failed int) {
	partial := "false"
	if failed > 0 {
		partial = "true"
	}
	s.eventsDispatched.WithLabelValues(kind, partial).Inc()
	s.recipientsPerEvent.Observe(float64(sent + failed))
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}
