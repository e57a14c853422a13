package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) OperationCompleted(op string, d time.Duration, err error)           {}
func (n *NoopSink) JobTransitioned(from, to string)                                    {}
func (n *NoopSink) NotificationAttempted(kind string, outcome string, d time.Duration) {}
func (n *NoopSink) EventDispatched(kind string, sent, failed int)                      {}
func (n *NoopSink) EventsInFlightIncr()                                                {}
func (n *NoopSink) EventsInFlightDecr()                                                {}
func (n *NoopSink) BufferSizeUpdate(size int)                                          {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                     {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                          {}
func (n *NoopSink) EmitError()                                                         {}
