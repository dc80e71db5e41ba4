package world

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/signalsfoundry/pawnbridge/internal/host"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// ItemKind decides what using an item does.
type ItemKind string

const (
	ItemFood     ItemKind = "food"
	ItemMedicine ItemKind = "medicine"
	ItemOther    ItemKind = "other"
)

// Needs tracked for every pawn.
const (
	NeedFood   = "food"
	NeedRest   = "rest"
	NeedSocial = "social"
)

const (
	meleeDamage    = 0.15
	chatSocialGain = 0.1
	foodGain       = 0.4
	medicineGain   = 0.3
	needDecay      = 0.0005
)

// ErrIncapable is returned by a directive issued to a pawn that cannot act.
var ErrIncapable = errors.New("pawn cannot act")

// Item is a carried or placed object.
type Item struct {
	id   int
	Kind ItemKind
	Name string
}

// NewItem constructs an item.
func NewItem(id int, kind ItemKind, name string) *Item {
	return &Item{id: id, Kind: kind, Name: name}
}

func (i *Item) ID() int { return i.id }

// Pawn is a simulated colonist or visitor. It implements host.Agent.
type Pawn struct {
	id     int
	name   string
	pos    host.Cell
	health float64
	needs  map[string]float64
	skills map[string]int
	player bool

	spawned   bool
	dead      bool
	destroyed bool
	arrested  bool

	inventory map[int]*Item
	dest      *host.Cell
	used      []*Item

	world *World
}

// NewPawn constructs a spawned, healthy pawn at pos with full needs.
func NewPawn(id int, name string, pos host.Cell, player bool) *Pawn {
	return &Pawn{
		id:        id,
		name:      name,
		pos:       pos,
		health:    1,
		needs:     map[string]float64{NeedFood: 1, NeedRest: 1, NeedSocial: 0.5},
		skills:    map[string]int{},
		player:    player,
		spawned:   true,
		inventory: map[int]*Item{},
	}
}

func (p *Pawn) ID() int             { return p.id }
func (p *Pawn) Name() string        { return p.name }
func (p *Pawn) Position() host.Cell { return p.pos }
func (p *Pawn) Health() float64     { return p.health }
func (p *Pawn) PlayerFaction() bool { return p.player }
func (p *Pawn) Spawned() bool       { return p.spawned }
func (p *Pawn) Dead() bool          { return p.dead }
func (p *Pawn) Destroyed() bool     { return p.destroyed }
func (p *Pawn) Arrested() bool      { return p.arrested }

// Destination returns the pending move target, or nil when idle.
func (p *Pawn) Destination() *host.Cell {
	if p.dest == nil {
		return nil
	}
	d := *p.dest
	return &d
}

// Needs returns a copy of the pawn's needs.
func (p *Pawn) Needs() map[string]float64 { return maps.Clone(p.needs) }

// Skills returns a copy of the pawn's skill levels.
func (p *Pawn) Skills() map[string]int { return maps.Clone(p.skills) }

// SetSkill sets one skill level.
func (p *Pawn) SetSkill(name string, level int) { p.skills[name] = level }

// Give puts item in the pawn's inventory.
func (p *Pawn) Give(item *Item) { p.inventory[item.ID()] = item }

// Used lists the items the pawn has used, oldest first.
func (p *Pawn) Used() []*Item { return append([]*Item(nil), p.used...) }

func (p *Pawn) InventoryItem(id int) (host.Thing, bool) {
	item, ok := p.inventory[id]
	if !ok {
		return nil, false
	}
	return item, true
}

func (p *Pawn) canAct() error {
	if !host.Valid(p) || p.arrested {
		return fmt.Errorf("pawn %d: %w", p.id, ErrIncapable)
	}
	return nil
}

// MoveTo sets a destination; the pawn walks one cell per tick.
func (p *Pawn) MoveTo(dest host.Cell) error {
	if err := p.canAct(); err != nil {
		return err
	}
	p.dest = &dest
	if p.player && p.world != nil {
		p.world.log.Debug(context.Background(), "pawn moving to cell",
			logging.Int("pawn_id", p.id),
			logging.String("pawn", p.name),
			logging.Int("x", dest.X),
			logging.Int("z", dest.Z),
		)
	}
	return nil
}

// AttackMelee damages a pawn or destroys a placed item.
func (p *Pawn) AttackMelee(target host.Thing) error {
	if err := p.canAct(); err != nil {
		return err
	}
	switch t := target.(type) {
	case *Pawn:
		if t.dead {
			return nil
		}
		t.health -= meleeDamage
		if t.health <= 0 {
			t.health = 0
			t.dead = true
			t.dest = nil
		}
	case *Item:
		if p.world != nil {
			p.world.removeItem(t.ID())
		}
	default:
		return fmt.Errorf("attack target %d: unsupported type %T", target.ID(), target)
	}
	return nil
}

// Arrest detains another pawn; it stops acting until released.
func (p *Pawn) Arrest(target host.Agent) error {
	if err := p.canAct(); err != nil {
		return err
	}
	t, ok := target.(*Pawn)
	if !ok {
		return fmt.Errorf("arrest target %d: unsupported type %T", target.ID(), target)
	}
	t.arrested = true
	t.dest = nil
	return nil
}

// ChitChat raises the social need of both pawns.
func (p *Pawn) ChitChat(target host.Agent) error {
	if err := p.canAct(); err != nil {
		return err
	}
	p.addNeed(NeedSocial, chatSocialGain)
	if t, ok := target.(*Pawn); ok && t != p {
		t.addNeed(NeedSocial, chatSocialGain)
	}
	return nil
}

// UseItem consumes item. Food restores the food need, medicine restores
// health; anything else is only recorded.
func (p *Pawn) UseItem(item host.Thing) error {
	if err := p.canAct(); err != nil {
		return err
	}
	it, ok := p.inventory[item.ID()]
	if !ok {
		return fmt.Errorf("item %d not carried by pawn %d", item.ID(), p.id)
	}
	delete(p.inventory, it.ID())
	switch it.Kind {
	case ItemFood:
		p.addNeed(NeedFood, foodGain)
	case ItemMedicine:
		p.health = min(1, p.health+medicineGain)
	}
	p.used = append(p.used, it)
	return nil
}

func (p *Pawn) addNeed(need string, delta float64) {
	p.needs[need] = max(0, min(1, p.needs[need]+delta))
}

// advance runs one tick of pawn behaviour.
func (p *Pawn) advance() {
	if !host.Valid(p) {
		return
	}
	for need := range p.needs {
		if need != NeedSocial {
			p.addNeed(need, -needDecay)
		}
	}
	if p.arrested || p.dest == nil {
		return
	}
	p.pos.X += sign(p.dest.X - p.pos.X)
	p.pos.Z += sign(p.dest.Z - p.pos.Z)
	if p.pos == *p.dest {
		p.dest = nil
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
