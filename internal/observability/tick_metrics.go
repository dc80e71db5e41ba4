package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// tickMetrics covers what the simulation goroutine reports: command
// application, tick cost and the snapshot outbox.
type tickMetrics struct {
	CommandsApplied *prometheus.CounterVec
	TickDuration    prometheus.Histogram

	OutboxPending      prometheus.Gauge
	OutboxDroppedTotal prometheus.Counter
	Snapshots          prometheus.Counter
}

func newTickMetrics(reg prometheus.Registerer) (tickMetrics, error) {
	applied, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pawnbridge_commands_applied_total",
		Help: "Drained commands, labeled by command kind and outcome (applied, noop, failed, not_found).",
	}, []string{"kind", "outcome"}), "pawnbridge_commands_applied_total")
	if err != nil {
		return tickMetrics{}, err
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pawnbridge_tick_duration_seconds",
		Help:    "Time spent in the per-tick hook, in seconds.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "pawnbridge_tick_duration_seconds")
	if err != nil {
		return tickMetrics{}, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pawnbridge_outbox_pending",
		Help: "Serialized snapshots waiting for a GET_STATE_UPDATES poll.",
	}), "pawnbridge_outbox_pending")
	if err != nil {
		return tickMetrics{}, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pawnbridge_outbox_dropped_total",
		Help: "Snapshots discarded because the outbox was full.",
	}), "pawnbridge_outbox_dropped_total")
	if err != nil {
		return tickMetrics{}, err
	}

	snapshots, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pawnbridge_snapshots_total",
		Help: "Snapshots pushed to the outbox.",
	}), "pawnbridge_snapshots_total")
	if err != nil {
		return tickMetrics{}, err
	}

	return tickMetrics{
		CommandsApplied:    applied,
		TickDuration:       tick,
		OutboxPending:      pending,
		OutboxDroppedTotal: dropped,
		Snapshots:          snapshots,
	}, nil
}

// CommandApplied counts one drained command by outcome.
func (m *tickMetrics) CommandApplied(kind, outcome string) {
	if m == nil || m.CommandsApplied == nil {
		return
	}
	m.CommandsApplied.WithLabelValues(kind, outcome).Inc()
}

// ObserveTick records the time spent in one tick hook.
func (m *tickMetrics) ObserveTick(d time.Duration) {
	if m == nil || m.TickDuration == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
}

func (m *tickMetrics) SetOutboxPending(n int) {
	if m == nil || m.OutboxPending == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// OutboxDropped counts snapshots discarded by the outbox bound.
func (m *tickMetrics) OutboxDropped(n int) {
	if m == nil || m.OutboxDroppedTotal == nil {
		return
	}
	m.OutboxDroppedTotal.Add(float64(n))
}

func (m *tickMetrics) SnapshotPushed() {
	if m == nil || m.Snapshots == nil {
		return
	}
	m.Snapshots.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
