package bridge

import "time"

// MetricsRecorder receives bridge counters and gauges. The observability
// package provides the Prometheus implementation.
type MetricsRecorder interface {
	ObserveRequest(kind, result string, d time.Duration)
	ConnectionOpened()
	ConnectionClosed()
	SetMailboxPending(n int)
	CommandCoalesced()
	CommandApplied(kind, outcome string)
	ObserveTick(d time.Duration)
	SetOutboxPending(n int)
	OutboxDropped(n int)
	SnapshotPushed()
	SetSubscriptions(n int)
	AcceptLoopRestarted()
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, time.Duration) {}
func (noopMetrics) ConnectionOpened()                            {}
func (noopMetrics) ConnectionClosed()                            {}
func (noopMetrics) SetMailboxPending(int)                        {}
func (noopMetrics) CommandCoalesced()                            {}
func (noopMetrics) CommandApplied(string, string)                {}
func (noopMetrics) ObserveTick(time.Duration)                    {}
func (noopMetrics) SetOutboxPending(int)                         {}
func (noopMetrics) OutboxDropped(int)                            {}
func (noopMetrics) SnapshotPushed()                              {}
func (noopMetrics) SetSubscriptions(int)                         {}
func (noopMetrics) AcceptLoopRestarted()                         {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
