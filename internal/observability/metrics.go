package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BridgeCollector bundles Prometheus metrics for the pawn bridge. It satisfies
// bridge.MetricsRecorder; the network-side recorders live here and the
// simulation-side ones in tick_metrics.go.
type BridgeCollector struct {
	gatherer prometheus.Gatherer

	Requests          *prometheus.CounterVec
	RequestDurations  *prometheus.HistogramVec
	ConnectionsActive prometheus.Gauge
	AcceptRestarts    prometheus.Counter

	MailboxPending    prometheus.Gauge
	CommandsCoalesced prometheus.Counter
	Subscriptions     prometheus.Gauge

	tickMetrics
}

// NewBridgeCollector registers bridge metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewBridgeCollector(reg prometheus.Registerer) (*BridgeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pawnbridge_requests_total",
		Help: "Total number of handled requests, labeled by request kind and result.",
	}, []string{"kind", "result"}), "pawnbridge_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pawnbridge_request_duration_seconds",
		Help:    "Time from accept to close for one request, in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"kind"}), "pawnbridge_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	conns, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pawnbridge_connections_active",
		Help: "Connections currently being served.",
	}), "pawnbridge_connections_active")
	if err != nil {
		return nil, err
	}

	restarts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pawnbridge_accept_restarts_total",
		Help: "Number of times the accept loop failed and was restarted.",
	}), "pawnbridge_accept_restarts_total")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pawnbridge_mailbox_pending",
		Help: "Pawns with a command waiting for the next tick.",
	}), "pawnbridge_mailbox_pending")
	if err != nil {
		return nil, err
	}

	coalesced, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pawnbridge_commands_coalesced_total",
		Help: "Pending commands replaced by a newer command for the same pawn.",
	}), "pawnbridge_commands_coalesced_total")
	if err != nil {
		return nil, err
	}

	subs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pawnbridge_subscriptions",
		Help: "Pawns currently subscribed for state snapshots.",
	}), "pawnbridge_subscriptions")
	if err != nil {
		return nil, err
	}

	tm, err := newTickMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &BridgeCollector{
		gatherer:          gatherer,
		Requests:          requests,
		RequestDurations:  durations,
		ConnectionsActive: conns,
		AcceptRestarts:    restarts,
		MailboxPending:    pending,
		CommandsCoalesced: coalesced,
		Subscriptions:     subs,
		tickMetrics:       tm,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *BridgeCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *BridgeCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRequest counts one finished request and its duration.
func (c *BridgeCollector) ObserveRequest(kind, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(kind, result).Inc()
	c.RequestDurations.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *BridgeCollector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.ConnectionsActive.Inc()
}

func (c *BridgeCollector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ConnectionsActive.Dec()
}

func (c *BridgeCollector) AcceptLoopRestarted() {
	if c == nil {
		return
	}
	c.AcceptRestarts.Inc()
}

func (c *BridgeCollector) SetMailboxPending(n int) {
	if c == nil {
		return
	}
	c.MailboxPending.Set(float64(n))
}

func (c *BridgeCollector) CommandCoalesced() {
	if c == nil {
		return
	}
	c.CommandsCoalesced.Inc()
}

func (c *BridgeCollector) SetSubscriptions(n int) {
	if c == nil {
		return
	}
	c.Subscriptions.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
