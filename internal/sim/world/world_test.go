package world

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/pawnbridge/internal/bridge"
	"github.com/signalsfoundry/pawnbridge/internal/command"
	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

type recordingHooks struct {
	events []string
}

func (h *recordingHooks) OnGameTick(context.Context, uint64) {
	h.events = append(h.events, "tick")
}

func (h *recordingHooks) OnAgentObserve(_ context.Context, a host.Agent) {
	h.events = append(h.events, "observe:"+a.Name())
}

type recordingLogger struct {
	logging.Logger
	debug []string
	attrs []map[string]any
}

func (l *recordingLogger) Debug(_ context.Context, msg string, fields ...logging.Field) {
	l.debug = append(l.debug, msg)
	attrs := map[string]any{}
	for _, f := range fields {
		attrs[f.Key] = f.Value
	}
	l.attrs = append(l.attrs, attrs)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewRandomIsDeterministic(t *testing.T) {
	a := NewRandom(5, 42)
	b := NewRandom(5, 42)

	agentsA, agentsB := a.Agents(), b.Agents()
	if len(agentsA) != 5 || len(agentsB) != 5 {
		t.Fatalf("agents = %d/%d, want 5", len(agentsA), len(agentsB))
	}
	for i := range agentsA {
		pa, pb := agentsA[i], agentsB[i]
		if pa.ID() != pb.ID() || pa.Position() != pb.Position() || pa.Skills()["Melee"] != pb.Skills()["Melee"] {
			t.Fatalf("pawn %d differs between seeds: %+v vs %+v", i, pa, pb)
		}
		if pa.ID() != i+1 {
			t.Fatalf("Agents()[%d].ID() = %d, want %d", i, pa.ID(), i+1)
		}
	}
	if got := len(a.Items()); got != 5 {
		t.Fatalf("placed items = %d, want 5", got)
	}
}

func TestNewRandomNamesBeyondList(t *testing.T) {
	w := NewRandom(len(pawnNames)+1, 1)
	last := w.Agents()[len(pawnNames)]
	if last.Name() != "Ada 2" {
		t.Fatalf("Name() = %q, want %q", last.Name(), "Ada 2")
	}
}

func TestAgentsSkipsDespawnedPawns(t *testing.T) {
	w := New()
	w.AddPawn(NewPawn(3, "C", host.Cell{}, true))
	w.AddPawn(NewPawn(1, "A", host.Cell{}, true))
	w.AddPawn(NewPawn(2, "B", host.Cell{}, true))

	if !w.Despawn(2) {
		t.Fatalf("Despawn(2) = false")
	}
	agents := w.Agents()
	if len(agents) != 2 || agents[0].ID() != 1 || agents[1].ID() != 3 {
		t.Fatalf("Agents() = %v", agents)
	}
	if _, ok := w.AgentByID(2); !ok {
		t.Fatalf("despawned pawn should still resolve")
	}

	p, _ := w.Pawn(3)
	if !w.Destroy(3) {
		t.Fatalf("Destroy(3) = false")
	}
	if _, ok := w.AgentByID(3); ok {
		t.Fatalf("destroyed pawn still resolves")
	}
	if host.Valid(p) {
		t.Fatalf("destroyed pawn reported valid")
	}
	if w.Despawn(99) || w.Destroy(99) {
		t.Fatalf("unknown pawn reported removed")
	}
}

func TestThingByIDResolvesPawnsAndItems(t *testing.T) {
	w := New()
	w.AddPawn(NewPawn(1, "A", host.Cell{}, true))
	w.PlaceItem(NewItem(500, ItemOther, "crate"))

	if _, ok := w.ThingByID(1); !ok {
		t.Fatalf("ThingByID(1) missing pawn")
	}
	if th, ok := w.ThingByID(500); !ok || th.ID() != 500 {
		t.Fatalf("ThingByID(500) = %v, %v", th, ok)
	}
	if _, ok := w.ThingByID(501); ok {
		t.Fatalf("ThingByID(501) found a thing")
	}
}

func TestStepOrdersHooksAndObservations(t *testing.T) {
	w := New(WithObserveInterval(1))
	w.AddPawn(NewPawn(1, "A", host.Cell{}, true))
	w.AddPawn(NewPawn(2, "B", host.Cell{}, true))
	h := &recordingHooks{}
	w.RegisterHooks(h)

	w.Step(context.Background(), 1)

	want := []string{"tick", "observe:A", "observe:B"}
	if len(h.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events, want)
	}
	for i := range want {
		if h.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", h.events, want)
		}
	}
}

func TestStepObservesEachAgentOncePerInterval(t *testing.T) {
	const interval = 10
	w := New(WithObserveInterval(interval))
	for id := 1; id <= 4; id++ {
		w.AddPawn(NewPawn(id, pawnNames[id], host.Cell{}, true))
	}
	h := &recordingHooks{}
	w.RegisterHooks(h)

	for tick := uint64(1); tick <= interval; tick++ {
		w.Step(context.Background(), tick)
	}
	counts := map[string]int{}
	for _, e := range h.events {
		counts[e]++
	}
	if counts["tick"] != interval {
		t.Fatalf("tick hooks = %d, want %d", counts["tick"], interval)
	}
	for id := 1; id <= 4; id++ {
		if got := counts["observe:"+pawnNames[id]]; got != 1 {
			t.Fatalf("observations of %s = %d, want 1", pawnNames[id], got)
		}
	}
}

func TestStepDrivesBridgeCommands(t *testing.T) {
	w := New(WithObserveInterval(1))
	w.AddPawn(NewPawn(7, "Ada", host.Cell{X: 0, Z: 0}, true))
	b, err := bridge.New(w, bridge.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	w.RegisterHooks(b)

	b.Mailbox().Put(command.MoveTo{PawnID: 7, X: 2, Z: 1})
	b.Subscriptions().Add(7)

	ctx := context.Background()
	w.Step(ctx, 1)
	w.Step(ctx, 2)

	p, _ := w.Pawn(7)
	if p.Position() != (host.Cell{X: 2, Z: 1}) {
		t.Fatalf("Position() = %+v, want {2 1}", p.Position())
	}
	if p.Destination() != nil {
		t.Fatalf("Destination() = %+v, want nil after arrival", p.Destination())
	}
	if b.Mailbox().Len() != 0 {
		t.Fatalf("mailbox not drained")
	}

	updates := b.Outbox().PopAll()
	if len(updates) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(updates))
	}
	var snap bridge.Snapshot
	if err := json.Unmarshal(updates[1], &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.ID != 7 || snap.Position != (host.Cell{X: 2, Z: 1}) {
		t.Fatalf("snapshot = %+v", snap)
	}
	if roster := b.Roster().Pawns(); len(roster) != 1 || roster[0].Name != "Ada" {
		t.Fatalf("roster = %+v", roster)
	}
}

func TestStepReleasesSubscriptionsOfDepartedPawns(t *testing.T) {
	tests := []struct {
		name   string
		remove func(w *World, id int) bool
	}{
		{name: "destroy", remove: (*World).Destroy},
		{name: "despawn", remove: (*World).Despawn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(WithObserveInterval(DefaultObserveInterval))
			w.AddPawn(NewPawn(7, "Ada", host.Cell{}, true))
			b, err := bridge.New(w, bridge.Config{ListenAddr: "127.0.0.1:0"})
			if err != nil {
				t.Fatalf("bridge.New: %v", err)
			}
			w.RegisterHooks(b)
			b.Subscriptions().Add(7)

			if !tt.remove(w, 7) {
				t.Fatalf("%s(7) = false", tt.name)
			}
			w.Step(context.Background(), 1)

			if b.Subscriptions().Contains(7) {
				t.Fatalf("Contains(7) = true after %s, want false", tt.name)
			}
			if got := b.Outbox().Len(); got != 0 {
				t.Fatalf("outbox len = %d, want 0 for a departed pawn", got)
			}
		})
	}
}

func TestStepObservesDepartedPawnOnce(t *testing.T) {
	w := New(WithObserveInterval(DefaultObserveInterval))
	w.AddPawn(NewPawn(1, "A", host.Cell{}, true))
	h := &recordingHooks{}
	w.RegisterHooks(h)

	w.Destroy(1)
	w.Step(context.Background(), 1)
	w.Step(context.Background(), 2)

	want := []string{"tick", "observe:A", "tick"}
	if len(h.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events, want)
	}
	for i := range want {
		if h.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", h.events, want)
		}
	}
}

func TestMoveToLogsPlayerPawnsOnly(t *testing.T) {
	log := &recordingLogger{Logger: logging.Noop()}
	w := New(WithLogger(log))
	colonist := NewPawn(1, "Ada", host.Cell{}, true)
	visitor := NewPawn(2, "Bram", host.Cell{}, false)
	w.AddPawn(colonist)
	w.AddPawn(visitor)

	if err := colonist.MoveTo(host.Cell{X: 4, Z: 5}); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if err := visitor.MoveTo(host.Cell{X: 1, Z: 1}); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}

	if len(log.debug) != 1 || log.debug[0] != "pawn moving to cell" {
		t.Fatalf("debug lines = %v, want one move line", log.debug)
	}
	if got := log.attrs[0]; got["pawn_id"] != 1 || got["x"] != 4 || got["z"] != 5 {
		t.Fatalf("move attrs = %v", got)
	}
}

func TestMeleeKillsAfterRepeatedHits(t *testing.T) {
	w := New()
	a := NewPawn(1, "A", host.Cell{}, true)
	b := NewPawn(2, "B", host.Cell{}, false)
	w.AddPawn(a)
	w.AddPawn(b)

	for range 7 {
		if err := a.AttackMelee(b); err != nil {
			t.Fatalf("AttackMelee: %v", err)
		}
	}
	if !b.Dead() || b.Health() != 0 {
		t.Fatalf("target dead=%v health=%v, want dead at 0", b.Dead(), b.Health())
	}
	if err := b.MoveTo(host.Cell{X: 1}); !errors.Is(err, ErrIncapable) {
		t.Fatalf("dead MoveTo err = %v, want ErrIncapable", err)
	}
}

func TestMeleeDestroysPlacedItem(t *testing.T) {
	w := New()
	a := NewPawn(1, "A", host.Cell{}, true)
	w.AddPawn(a)
	crate := NewItem(500, ItemOther, "crate")
	w.PlaceItem(crate)

	if err := a.AttackMelee(crate); err != nil {
		t.Fatalf("AttackMelee: %v", err)
	}
	if _, ok := w.ThingByID(500); ok {
		t.Fatalf("crate still on the map")
	}
}

func TestArrestedPawnCannotAct(t *testing.T) {
	a := NewPawn(1, "A", host.Cell{}, true)
	b := NewPawn(2, "B", host.Cell{}, false)
	if err := b.MoveTo(host.Cell{X: 5}); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if err := a.Arrest(b); err != nil {
		t.Fatalf("Arrest: %v", err)
	}
	if !b.Arrested() || b.Destination() != nil {
		t.Fatalf("arrested=%v dest=%v", b.Arrested(), b.Destination())
	}
	if err := b.ChitChat(a); !errors.Is(err, ErrIncapable) {
		t.Fatalf("ChitChat err = %v, want ErrIncapable", err)
	}
}

func TestChitChatRaisesBothSocialNeeds(t *testing.T) {
	a := NewPawn(1, "A", host.Cell{}, true)
	b := NewPawn(2, "B", host.Cell{}, true)
	if err := a.ChitChat(b); err != nil {
		t.Fatalf("ChitChat: %v", err)
	}
	want := 0.5 + chatSocialGain
	if got := a.Needs()[NeedSocial]; !approx(got, want) {
		t.Fatalf("actor social = %v, want %v", got, want)
	}
	if got := b.Needs()[NeedSocial]; !approx(got, want) {
		t.Fatalf("target social = %v, want %v", got, want)
	}
}

func TestUseItemByKind(t *testing.T) {
	tests := []struct {
		name       string
		kind       ItemKind
		wantHealth float64
		wantFood   float64
	}{
		{name: "food", kind: ItemFood, wantHealth: 0.5, wantFood: 0.9},
		{name: "medicine", kind: ItemMedicine, wantHealth: 0.8, wantFood: 0.5},
		{name: "other", kind: ItemOther, wantHealth: 0.5, wantFood: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPawn(1, "A", host.Cell{}, true)
			p.health = 0.5
			p.needs[NeedFood] = 0.5
			item := NewItem(10, tt.kind, tt.name)
			p.Give(item)

			if err := p.UseItem(item); err != nil {
				t.Fatalf("UseItem: %v", err)
			}
			if !approx(p.Health(), tt.wantHealth) {
				t.Fatalf("Health() = %v, want %v", p.Health(), tt.wantHealth)
			}
			if !approx(p.Needs()[NeedFood], tt.wantFood) {
				t.Fatalf("food = %v, want %v", p.Needs()[NeedFood], tt.wantFood)
			}
			if _, ok := p.InventoryItem(10); ok {
				t.Fatalf("item still carried after use")
			}
			if used := p.Used(); len(used) != 1 || used[0] != item {
				t.Fatalf("Used() = %v", used)
			}
			if err := p.UseItem(item); err == nil {
				t.Fatalf("second UseItem succeeded")
			}
		})
	}
}

func TestAdvanceDecaysNeedsAndWalks(t *testing.T) {
	p := NewPawn(1, "A", host.Cell{X: 3, Z: 3}, true)
	if err := p.MoveTo(host.Cell{X: 1, Z: 4}); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	p.advance()
	if p.Position() != (host.Cell{X: 2, Z: 4}) {
		t.Fatalf("Position() = %+v after one step", p.Position())
	}
	p.advance()
	if p.Position() != (host.Cell{X: 1, Z: 4}) || p.Destination() != nil {
		t.Fatalf("Position() = %+v dest=%v", p.Position(), p.Destination())
	}
	if got := p.Needs()[NeedFood]; !approx(got, 1-2*needDecay) {
		t.Fatalf("food = %v, want %v", got, 1-2*needDecay)
	}
	if got := p.Needs()[NeedSocial]; got != 0.5 {
		t.Fatalf("social = %v, want unchanged", got)
	}
}
