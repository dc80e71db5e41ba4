// Package host declares the capabilities pawnbridge consumes from the
// simulation it is attached to. Implementations are only ever called from the
// simulation goroutine.
package host

// Cell is a position on the simulation map. The vertical axis is implicit.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Thing is any object present in the world, pawns included.
type Thing interface {
	ID() int
}

// Agent is a controllable pawn.
type Agent interface {
	Thing

	Name() string
	Position() Cell
	// Health returns the summary health in [0,1].
	Health() float64
	Needs() map[string]float64
	Skills() map[string]int
	PlayerFaction() bool

	Spawned() bool
	Dead() bool
	Destroyed() bool

	// InventoryItem looks up an item carried by the agent.
	InventoryItem(id int) (Thing, bool)

	// Directives. Each one queues work inside the simulation; none of them
	// validates reachability or legality beyond what the simulation does.
	MoveTo(dest Cell) error
	AttackMelee(target Thing) error
	Arrest(target Agent) error
	ChitChat(target Agent) error
	UseItem(item Thing) error
}

// World resolves IDs to live simulation objects.
type World interface {
	// AgentByID resolves a pawn on the current map.
	AgentByID(id int) (Agent, bool)
	// ThingByID resolves any object on the current map.
	ThingByID(id int) (Thing, bool)
	// Agents lists every pawn on the current map.
	Agents() []Agent
}

// Valid reports whether a is still a live participant in the simulation.
func Valid(a Agent) bool {
	return a != nil && a.Spawned() && !a.Dead() && !a.Destroyed()
}
