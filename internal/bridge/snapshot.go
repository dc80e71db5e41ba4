package bridge

import (
	"encoding/json"
	"math"
	"sort"
	"sync/atomic"

	"github.com/signalsfoundry/pawnbridge/internal/host"
)

// Snapshot is one point-in-time observation of a subscribed pawn.
type Snapshot struct {
	ID       int                `json:"id"`
	Position host.Cell          `json:"position"`
	Health   float64            `json:"health"`
	Needs    map[string]float64 `json:"needs"`
	Skills   map[string]int     `json:"skills"`
}

// SnapshotOf captures a's current state. Missing needs or skills become empty
// maps so they serialise as {}.
func SnapshotOf(a host.Agent) Snapshot {
	needs := a.Needs()
	if needs == nil {
		needs = map[string]float64{}
	}
	skills := a.Skills()
	if skills == nil {
		skills = map[string]int{}
	}
	return Snapshot{
		ID:       a.ID(),
		Position: a.Position(),
		Health:   clampHealth(a.Health()),
		Needs:    needs,
		Skills:   skills,
	}
}

// PawnSummary is one GET_PAWNS entry.
type PawnSummary struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Position host.Cell `json:"position"`
	Health   float64   `json:"health"`
}

// clampHealth keeps health in [0,1]. An unknown (NaN) health reads as full.
func clampHealth(h float64) float64 {
	switch {
	case math.IsNaN(h):
		return 1
	case h < 0:
		return 0
	case h > 1:
		return 1
	}
	return h
}

// Roster is the latest list of player-faction, spawned pawns as seen by the
// simulation. The simulation publishes it; connection handlers only read the
// published copy and never touch the world.
type Roster struct {
	pawns atomic.Pointer[[]PawnSummary]
}

// Publish replaces the roster. pawns must not be modified afterwards.
func (r *Roster) Publish(pawns []PawnSummary) {
	r.pawns.Store(&pawns)
}

// Pawns returns the published roster, or an empty slice before the first
// publish.
func (r *Roster) Pawns() []PawnSummary {
	p := r.pawns.Load()
	if p == nil || *p == nil {
		return []PawnSummary{}
	}
	return *p
}

// JSON serialises the roster as a JSON array.
func (r *Roster) JSON() ([]byte, error) {
	return json.Marshal(r.Pawns())
}

// collectRoster lists the world's player-faction pawns that are spawned,
// ordered by ID.
func collectRoster(world host.World) []PawnSummary {
	agents := world.Agents()
	out := make([]PawnSummary, 0, len(agents))
	for _, a := range agents {
		if a == nil || !a.Spawned() || !a.PlayerFaction() {
			continue
		}
		out = append(out, PawnSummary{
			ID:       a.ID(),
			Name:     a.Name(),
			Position: a.Position(),
			Health:   clampHealth(a.Health()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
