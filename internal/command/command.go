// Package command defines the closed set of pawn commands accepted over the
// wire and how each one is applied to a pawn during a simulation tick.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/pawnbridge/internal/host"
)

// Kind names a command variant. The string value is the wire CommandType.
type Kind string

const (
	KindMoveTo   Kind = "MoveTo"
	KindAttack   Kind = "Attack"
	KindInteract Kind = "Interact"
	KindUseItem  Kind = "UseItem"
)

// Kinds lists every command variant.
var Kinds = []Kind{KindMoveTo, KindAttack, KindInteract, KindUseItem}

// ParseKind maps a wire CommandType onto a Kind. Matching is exact and
// case-sensitive.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMoveTo, KindAttack, KindInteract, KindUseItem:
		return Kind(s), true
	}
	return "", false
}

// Recognised Interact values. Matching is case-insensitive.
const (
	InteractionChat   = "chat"
	InteractionArrest = "arrest"
)

var (
	// ErrTargetMissing indicates the command's target is not on the map.
	ErrTargetMissing = errors.New("target not found")
	// ErrItemMissing indicates the item is not in the actor's inventory.
	ErrItemMissing = errors.New("item not in inventory")
	// ErrUnsupportedInteraction indicates an Interact value with no directive.
	ErrUnsupportedInteraction = errors.New("unsupported interaction")
)

// IsNoop reports whether err means the command was accepted but had nothing
// to act on. Such commands are skipped, not failed.
func IsNoop(err error) bool {
	return errors.Is(err, ErrTargetMissing) ||
		errors.Is(err, ErrItemMissing) ||
		errors.Is(err, ErrUnsupportedInteraction)
}

// Command is one pending instruction for a single pawn. The set of
// implementations is closed: MoveTo, Attack, Interact and UseItem.
type Command interface {
	Kind() Kind
	// Pawn returns the acting pawn's ID, the mailbox key.
	Pawn() int
	// Apply issues the command's directive against actor. world is used to
	// resolve any other object the command refers to.
	Apply(world host.World, actor host.Agent) error

	sealed()
}

// MoveTo paths the pawn to a destination cell.
type MoveTo struct {
	PawnID int `json:"PawnID"`
	X      int `json:"X"`
	Z      int `json:"Z"`
}

func (MoveTo) Kind() Kind  { return KindMoveTo }
func (c MoveTo) Pawn() int { return c.PawnID }
func (MoveTo) sealed()     {}

func (c MoveTo) Apply(_ host.World, actor host.Agent) error {
	return actor.MoveTo(host.Cell{X: c.X, Z: c.Z})
}

// Attack orders a melee attack on any world object.
type Attack struct {
	PawnID   int `json:"PawnID"`
	TargetID int `json:"TargetID"`
}

func (Attack) Kind() Kind  { return KindAttack }
func (c Attack) Pawn() int { return c.PawnID }
func (Attack) sealed()     {}

func (c Attack) Apply(world host.World, actor host.Agent) error {
	target, ok := world.ThingByID(c.TargetID)
	if !ok {
		return fmt.Errorf("attack target %d: %w", c.TargetID, ErrTargetMissing)
	}
	return actor.AttackMelee(target)
}

// Interact performs a social interaction with another pawn.
type Interact struct {
	PawnID      int    `json:"PawnID"`
	TargetID    int    `json:"TargetID"`
	Interaction string `json:"Interaction"`
}

func (Interact) Kind() Kind  { return KindInteract }
func (c Interact) Pawn() int { return c.PawnID }
func (Interact) sealed()     {}

func (c Interact) Apply(world host.World, actor host.Agent) error {
	target, ok := world.AgentByID(c.TargetID)
	if !ok {
		return fmt.Errorf("interact target %d: %w", c.TargetID, ErrTargetMissing)
	}
	switch strings.ToLower(c.Interaction) {
	case InteractionArrest:
		return actor.Arrest(target)
	case InteractionChat:
		return actor.ChitChat(target)
	default:
		return fmt.Errorf("interaction %q: %w", c.Interaction, ErrUnsupportedInteraction)
	}
}

// UseItem uses an item from the pawn's own inventory. What "use" means for a
// given item type is decided by the host's Agent.UseItem.
type UseItem struct {
	PawnID int `json:"PawnID"`
	ItemID int `json:"ItemID"`
}

func (UseItem) Kind() Kind  { return KindUseItem }
func (c UseItem) Pawn() int { return c.PawnID }
func (UseItem) sealed()     {}

func (c UseItem) Apply(_ host.World, actor host.Agent) error {
	item, ok := actor.InventoryItem(c.ItemID)
	if !ok {
		return fmt.Errorf("item %d: %w", c.ItemID, ErrItemMissing)
	}
	return actor.UseItem(item)
}
