package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/pawnbridge/internal/command"
	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/journal"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// Apply outcomes, as reported to metrics and the journal.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
)

var errActorNotFound = errors.New("pawn not found")

// Journal receives one entry per drained command.
type Journal interface {
	Record(journal.Entry)
}

// Synchronizer is the simulation-side half of the bridge. Both of its hooks
// must be called from the simulation goroutine only, never concurrently.
type Synchronizer struct {
	world   host.World
	mailbox *Mailbox
	subs    *Subscriptions
	outbox  *Outbox
	roster  *Roster

	rosterInterval uint64

	log     logging.Logger
	metrics MetricsRecorder
	journal Journal
}

// OnGameTick drains the mailbox and applies each command to its pawn. A failing
// command is logged and never prevents the rest of the batch from running.
func (s *Synchronizer) OnGameTick(ctx context.Context, tick uint64) {
	start := time.Now()
	defer func() { s.metrics.ObserveTick(time.Since(start)) }()

	if s.rosterInterval > 0 && tick%s.rosterInterval == 0 {
		s.publishRoster(ctx)
	}

	batch := s.mailbox.Drain()
	if len(batch) == 0 {
		return
	}

	ctx, span := tracer().Start(ctx, "pawnbridge.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("tick", int64(tick)),
		attribute.Int("commands", len(batch)),
	)

	failed := 0
	for pawnID, cmd := range batch {
		outcome, err := s.apply(cmd)
		s.report(ctx, tick, pawnID, cmd, outcome, err)
		if outcome == OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		span.SetStatus(codes.Error, strconv.Itoa(failed)+" commands failed")
	}
}

func (s *Synchronizer) apply(cmd command.Command) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = OutcomeFailed, fmt.Errorf("panic applying command: %v", r)
		}
	}()

	actor, ok := s.world.AgentByID(cmd.Pawn())
	if !ok || actor == nil || !actor.Spawned() {
		return OutcomeNotFound, errActorNotFound
	}

	err = cmd.Apply(s.world, actor)
	switch {
	case err == nil:
		return OutcomeApplied, nil
	case command.IsNoop(err):
		return OutcomeNoop, err
	default:
		return OutcomeFailed, err
	}
}

func (s *Synchronizer) report(ctx context.Context, tick uint64, pawnID int, cmd command.Command, outcome string, err error) {
	kind := string(cmd.Kind())
	fields := []logging.Field{
		logging.Uint64("tick", tick),
		logging.Int("pawn_id", pawnID),
		logging.String("kind", kind),
	}
	switch outcome {
	case OutcomeNotFound:
		s.log.Warn(ctx, "pawn not found, command skipped", fields...)
	case OutcomeNoop:
		s.log.Warn(ctx, "command target not resolved, skipped", append(fields, logging.Err(err))...)
	case OutcomeFailed:
		s.log.Error(ctx, "command failed", append(fields, logging.Err(err))...)
	default:
		s.log.Debug(ctx, "command applied", fields...)
	}

	s.metrics.CommandApplied(kind, outcome)
	if s.journal != nil {
		entry := journal.Entry{Tick: tick, PawnID: pawnID, Kind: kind, Outcome: outcome}
		if err != nil {
			entry.Error = err.Error()
		}
		s.journal.Record(entry)
	}
}

func (s *Synchronizer) publishRoster(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "failed to collect pawn roster", logging.Any("panic", r))
		}
	}()
	s.roster.Publish(collectRoster(s.world))
}

// OnAgentObserve pushes a snapshot of agent if it is subscribed. An agent
// that is no longer valid is unsubscribed instead.
func (s *Synchronizer) OnAgentObserve(ctx context.Context, agent host.Agent) {
	if agent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "failed to observe pawn", logging.Any("panic", r))
		}
	}()

	id := agent.ID()
	if !s.subs.Contains(id) {
		return
	}
	if !host.Valid(agent) {
		if s.subs.Remove(id) {
			s.log.Info(ctx, "pawn no longer valid, subscription removed", logging.Int("pawn_id", id))
		}
		return
	}

	payload, err := json.Marshal(SnapshotOf(agent))
	if err != nil {
		s.log.Error(ctx, "failed to encode snapshot", logging.Int("pawn_id", id), logging.Err(err))
		return
	}
	s.outbox.Push(payload)
}

// ObserveDue reports whether agentID should be observed on tick. Agents are
// spread across the interval by a per-agent phase so that not every pawn is
// serialised on the same tick. interval <= 1 means every tick.
func ObserveDue(tick uint64, agentID, interval int) bool {
	if interval <= 1 {
		return true
	}
	h := fnv.New32a()
	var b [8]byte
	v := uint64(int64(agentID))
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	_, _ = h.Write(b[:])
	phase := uint64(h.Sum32())
	return (tick+phase)%uint64(interval) == 0
}
