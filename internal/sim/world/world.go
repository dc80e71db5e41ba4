// Package world is a small reference simulation that pawnbridge can be
// attached to. It implements host.World and drives the bridge hooks from its
// Step method. A World is owned by the simulation goroutine and is not safe
// for concurrent use.
package world

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/signalsfoundry/pawnbridge/internal/bridge"
	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// DefaultObserveInterval is the per-agent observation period in ticks.
const DefaultObserveInterval = 60

// MapSize bounds generated positions on both axes.
const MapSize = 50

var pawnNames = []string{
	"Ada", "Bram", "Cato", "Dara", "Emil", "Fenna", "Gus", "Hale",
	"Ines", "Jorn", "Kira", "Lio", "Mara", "Nils", "Orla", "Pim",
}

var skillNames = []string{"Shooting", "Melee", "Construction", "Cooking", "Medicine", "Social"}

// Hooks receives the simulation callbacks the bridge relies on.
type Hooks interface {
	OnGameTick(ctx context.Context, tick uint64)
	OnAgentObserve(ctx context.Context, agent host.Agent)
}

// World holds every pawn and placed item on the single map.
type World struct {
	pawns map[int]*Pawn
	items map[int]*Item

	// departed pawns are observed once more on the next Step so hooks can
	// release anything they hold for them.
	departed []*Pawn

	hooks           []Hooks
	observeInterval int
	log             logging.Logger
}

// Option configures a World.
type Option func(*World)

// WithObserveInterval sets how many ticks pass between observations of the
// same agent.
func WithObserveInterval(ticks int) Option {
	return func(w *World) {
		if ticks > 0 {
			w.observeInterval = ticks
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// New returns an empty world.
func New(opts ...Option) *World {
	w := &World{
		pawns:           make(map[int]*Pawn),
		items:           make(map[int]*Item),
		observeInterval: DefaultObserveInterval,
		log:             logging.Noop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewRandom generates a world with n pawns, each carrying one food and one
// medicine item, plus one placed item per pawn. The same seed always yields
// the same world.
func NewRandom(n int, seed int64, opts ...Option) *World {
	w := New(opts...)
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>32|1))

	nextItem := 1000
	newItem := func(kind ItemKind, name string) *Item {
		nextItem++
		return NewItem(nextItem, kind, name)
	}

	for i := range n {
		name := pawnNames[i%len(pawnNames)]
		if i >= len(pawnNames) {
			name = fmt.Sprintf("%s %d", name, i/len(pawnNames)+1)
		}
		p := NewPawn(i+1, name, randomCell(rng), i%4 != 3)
		for _, skill := range skillNames {
			p.SetSkill(skill, rng.IntN(21))
		}
		p.Give(newItem(ItemFood, "packaged meal"))
		p.Give(newItem(ItemMedicine, "herbal medicine"))
		w.AddPawn(p)
		w.PlaceItem(newItem(ItemOther, "wooden crate"))
	}
	return w
}

func randomCell(rng *rand.Rand) host.Cell {
	return host.Cell{X: rng.IntN(MapSize), Z: rng.IntN(MapSize)}
}

// AddPawn places p on the map, replacing any pawn with the same ID.
func (w *World) AddPawn(p *Pawn) {
	p.world = w
	w.pawns[p.ID()] = p
}

// PlaceItem puts item on the map where pawns can target it.
func (w *World) PlaceItem(item *Item) {
	w.items[item.ID()] = item
}

// Despawn takes a pawn off the map without destroying it.
func (w *World) Despawn(id int) bool {
	p, ok := w.pawns[id]
	if !ok {
		return false
	}
	p.spawned = false
	p.dest = nil
	w.departed = append(w.departed, p)
	return true
}

// Destroy removes a pawn permanently. Outstanding references see it as
// destroyed.
func (w *World) Destroy(id int) bool {
	p, ok := w.pawns[id]
	if !ok {
		return false
	}
	p.destroyed = true
	p.spawned = false
	p.dest = nil
	delete(w.pawns, id)
	w.departed = append(w.departed, p)
	return true
}

func (w *World) removeItem(id int) {
	delete(w.items, id)
}

// Items lists the placed items, ordered by ID.
func (w *World) Items() []*Item {
	out := make([]*Item, 0, len(w.items))
	for _, item := range w.items {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b *Item) int { return a.ID() - b.ID() })
	return out
}

// Pawn returns the concrete pawn with id.
func (w *World) Pawn(id int) (*Pawn, bool) {
	p, ok := w.pawns[id]
	return p, ok
}

// AgentByID implements host.World.
func (w *World) AgentByID(id int) (host.Agent, bool) {
	p, ok := w.pawns[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// ThingByID implements host.World. Pawns and placed items are both things.
func (w *World) ThingByID(id int) (host.Thing, bool) {
	if p, ok := w.pawns[id]; ok {
		return p, true
	}
	if item, ok := w.items[id]; ok {
		return item, true
	}
	return nil, false
}

// Agents implements host.World. Only spawned pawns are listed, ordered by ID.
func (w *World) Agents() []host.Agent {
	ids := make([]int, 0, len(w.pawns))
	for id, p := range w.pawns {
		if p.spawned {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]host.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.pawns[id])
	}
	return out
}

// RegisterHooks adds h to the callbacks run by Step.
func (w *World) RegisterHooks(h Hooks) {
	w.hooks = append(w.hooks, h)
}

// Step runs one tick: every hook's OnGameTick, then pawn behaviour, then the
// observation pass for agents whose observation is due. Pawns despawned or
// destroyed since the previous Step are observed once, regardless of cadence.
func (w *World) Step(ctx context.Context, tick uint64) {
	for _, h := range w.hooks {
		h.OnGameTick(ctx, tick)
	}

	agents := w.Agents()
	for _, a := range agents {
		a.(*Pawn).advance()
	}

	for _, a := range agents {
		if !bridge.ObserveDue(tick, a.ID(), w.observeInterval) {
			continue
		}
		for _, h := range w.hooks {
			h.OnAgentObserve(ctx, a)
		}
	}
	departed := w.departed
	w.departed = nil
	for _, p := range departed {
		for _, h := range w.hooks {
			h.OnAgentObserve(ctx, p)
		}
	}
	if tick%uint64(w.observeInterval) == 0 {
		w.log.Debug(ctx, "world step",
			logging.Uint64("tick", tick),
			logging.Int("agents", len(agents)),
			logging.Int("items", len(w.items)),
		)
	}
}
