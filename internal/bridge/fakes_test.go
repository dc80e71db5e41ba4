package bridge

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/journal"
)

type testItem struct{ id int }

func (i testItem) ID() int { return i.id }

type testPawn struct {
	id        int
	name      string
	pos       host.Cell
	health    float64
	needs     map[string]float64
	skills    map[string]int
	player    bool
	spawned   bool
	dead      bool
	destroyed bool
	inventory map[int]host.Thing

	mu    sync.Mutex
	moves []host.Cell
	calls []string
}

func newTestPawn(id int) *testPawn {
	return &testPawn{
		id:        id,
		name:      "pawn",
		health:    1,
		needs:     map[string]float64{"food": 0.5},
		skills:    map[string]int{"shooting": 4},
		player:    true,
		spawned:   true,
		inventory: map[int]host.Thing{},
	}
}

func (p *testPawn) ID() int                   { return p.id }
func (p *testPawn) Name() string              { return p.name }
func (p *testPawn) Position() host.Cell       { return p.pos }
func (p *testPawn) Health() float64           { return p.health }
func (p *testPawn) Needs() map[string]float64 { return p.needs }
func (p *testPawn) Skills() map[string]int    { return p.skills }
func (p *testPawn) PlayerFaction() bool       { return p.player }
func (p *testPawn) Spawned() bool             { return p.spawned }
func (p *testPawn) Dead() bool                { return p.dead }
func (p *testPawn) Destroyed() bool           { return p.destroyed }

func (p *testPawn) InventoryItem(id int) (host.Thing, bool) {
	item, ok := p.inventory[id]
	return item, ok
}

func (p *testPawn) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *testPawn) MoveTo(dest host.Cell) error {
	p.mu.Lock()
	p.moves = append(p.moves, dest)
	p.mu.Unlock()
	p.record("move")
	return nil
}

func (p *testPawn) AttackMelee(host.Thing) error { p.record("attack"); return nil }
func (p *testPawn) Arrest(host.Agent) error      { p.record("arrest"); return nil }
func (p *testPawn) ChitChat(host.Agent) error    { p.record("chat"); return nil }
func (p *testPawn) UseItem(host.Thing) error     { p.record("use"); return nil }

func (p *testPawn) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *testPawn) Moves() []host.Cell {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]host.Cell(nil), p.moves...)
}

type testWorld struct {
	agents map[int]host.Agent
	items  map[int]host.Thing
}

func newTestWorld(agents ...host.Agent) *testWorld {
	w := &testWorld{agents: map[int]host.Agent{}, items: map[int]host.Thing{}}
	for _, a := range agents {
		w.agents[a.ID()] = a
	}
	return w
}

func (w *testWorld) AgentByID(id int) (host.Agent, bool) {
	a, ok := w.agents[id]
	return a, ok
}

func (w *testWorld) ThingByID(id int) (host.Thing, bool) {
	if a, ok := w.agents[id]; ok {
		return a, true
	}
	t, ok := w.items[id]
	return t, ok
}

func (w *testWorld) Agents() []host.Agent {
	ids := make([]int, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]host.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.agents[id])
	}
	return out
}

type panicPawn struct{ *testPawn }

func (p panicPawn) MoveTo(host.Cell) error { panic("pathing exploded") }

type recordingJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *recordingJournal) Record(e journal.Entry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

func (j *recordingJournal) Entries() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Entry(nil), j.entries...)
}
