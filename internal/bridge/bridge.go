// Package bridge connects an external controller to a tick-driven simulation.
//
// Network goroutines accept one request per connection and only touch three
// shared structures: the command mailbox, the subscription set and the
// snapshot outbox (plus a roster the simulation republishes). The simulation
// goroutine drains the mailbox in OnGameTick and feeds the outbox from
// OnAgentObserve. Neither side ever blocks on the other's I/O.
package bridge

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/signalsfoundry/pawnbridge/internal/command"
	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// DefaultAddr is the reference listen address: port 5000 on all interfaces.
const DefaultAddr = ":5000"

// Config holds the bridge settings. The zero value listens on DefaultAddr
// with no deadlines and no bounds.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxConnections bounds concurrent handlers; 0 means unbounded.
	MaxConnections int
	// RateLimit is the per-host request rate in requests per second; 0
	// disables limiting.
	RateLimit float64
	RateBurst int
	// OutboxLimit bounds queued snapshots, dropping the oldest; 0 means
	// unbounded.
	OutboxLimit int
	// RosterInterval is the number of ticks between roster refreshes.
	RosterInterval int

	RestartBackoffInitial time.Duration
	RestartBackoffMax     time.Duration
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(b *Bridge) { b.metrics = metricsOrNoop(m) }
}

// WithJournal records every drained command to j.
func WithJournal(j Journal) Option {
	return func(b *Bridge) { b.journal = j }
}

// Bridge is one session's worth of bridge state. The host creates it once,
// calls Start, invokes OnGameTick and OnAgentObserve from its simulation
// goroutine, and calls Stop at the end of the session.
type Bridge struct {
	log     logging.Logger
	metrics MetricsRecorder
	journal Journal

	mailbox *Mailbox
	subs    *Subscriptions
	outbox  *Outbox
	roster  *Roster

	handler    *Handler
	ticks      *Synchronizer
	supervisor *Supervisor
}

// New wires a bridge to world. world is only ever used from OnGameTick and
// OnAgentObserve.
func New(world host.World, cfg Config, opts ...Option) (*Bridge, error) {
	if world == nil {
		return nil, fmt.Errorf("bridge: world is required")
	}
	b := &Bridge{
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}

	decoder, err := command.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultAddr
	}
	if cfg.RosterInterval <= 0 {
		cfg.RosterInterval = 1
	}

	b.mailbox = NewMailbox(b.metrics)
	b.subs = NewSubscriptions(b.metrics)
	b.outbox = NewOutbox(cfg.OutboxLimit, b.metrics)
	b.roster = &Roster{}

	b.handler = &Handler{
		mailbox:      b.mailbox,
		subs:         b.subs,
		outbox:       b.outbox,
		roster:       b.roster,
		decoder:      decoder,
		limiter:      newHostLimiter(cfg.RateLimit, cfg.RateBurst),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		log:          b.log,
		metrics:      b.metrics,
	}
	b.ticks = &Synchronizer{
		world:          world,
		mailbox:        b.mailbox,
		subs:           b.subs,
		outbox:         b.outbox,
		roster:         b.roster,
		rosterInterval: uint64(cfg.RosterInterval),
		log:            b.log.With(logging.String("component", "tick")),
		metrics:        b.metrics,
		journal:        b.journal,
	}
	b.supervisor = NewSupervisor(SupervisorConfig{
		Addr:           cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		RestartInitial: cfg.RestartBackoffInitial,
		RestartMax:     cfg.RestartBackoffMax,
	}, b.handler, b.log.With(logging.String("component", "server")), b.metrics)

	return b, nil
}

// Start binds the listener and begins accepting connections.
func (b *Bridge) Start(ctx context.Context) error { return b.supervisor.Start(ctx) }

// Stop closes the listener and waits for in-flight requests until ctx is done.
func (b *Bridge) Stop(ctx context.Context) error { return b.supervisor.Stop(ctx) }

// State reports the server lifecycle state.
func (b *Bridge) State() State { return b.supervisor.State() }

// Addr reports the bound listen address, or nil when not running.
func (b *Bridge) Addr() net.Addr { return b.supervisor.Addr() }

// OnGameTick is the once-per-tick hook.
func (b *Bridge) OnGameTick(ctx context.Context, tick uint64) { b.ticks.OnGameTick(ctx, tick) }

// OnAgentObserve is the per-agent observation hook.
func (b *Bridge) OnAgentObserve(ctx context.Context, agent host.Agent) {
	b.ticks.OnAgentObserve(ctx, agent)
}

// Mailbox exposes the pending command buffer.
func (b *Bridge) Mailbox() *Mailbox { return b.mailbox }

// Subscriptions exposes the subscribed pawn set.
func (b *Bridge) Subscriptions() *Subscriptions { return b.subs }

// Outbox exposes the queued snapshots.
func (b *Bridge) Outbox() *Outbox { return b.outbox }

// Roster exposes the last published pawn roster.
func (b *Bridge) Roster() *Roster { return b.roster }
