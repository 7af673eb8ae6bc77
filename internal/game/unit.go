package game

import (
	"fmt"

	"github.com/NP-Dat/tcr-arena/internal/models"
)

// Kind tags the closed set of positioned variants.
type Kind string

const (
	KindTroop    Kind = "troop"
	KindBuilding Kind = "building"
	KindTower    Kind = "tower"
)

// UnitState is the behavior state of a positioned unit.
type UnitState string

const (
	StateIdle      UnitState = "idle"
	StateMoving    UnitState = "moving"
	StateAttacking UnitState = "attacking"
)

// Point is a grid coordinate.
type Point struct {
	X int `msgpack:"x"`
	Y int `msgpack:"y"`
}

// Rect is an inclusive-exclusive block of cells: [X, X+W) × [Y, Y+H).
type Rect struct {
	X, Y, W, H int
}

// TargetRef points at the unit currently being pursued.
type TargetRef struct {
	ID    string `msgpack:"id"`
	Tower bool   `msgpack:"tower"`
}

// Unit is any positioned thing on the arena: troops and buildings spawned
// from cards, and towers built from templates. Per-variant behavior is
// resolved by switching on Kind.
type Unit struct {
	ID          string     `msgpack:"id"`
	OwnerID     string     `msgpack:"owner"`
	Kind        Kind       `msgpack:"kind"`
	X           int        `msgpack:"x"`
	Y           int        `msgpack:"y"`
	Health      int        `msgpack:"hp"`
	MaxHealth   int        `msgpack:"max_hp"`
	Damage      int        `msgpack:"dmg"`
	AttackRange int        `msgpack:"range"`
	VisionRange int        `msgpack:"vision"`
	Alive       bool       `msgpack:"alive"`
	State       UnitState  `msgpack:"state"`
	Target      *TargetRef `msgpack:"target,omitempty"`

	// card-spawned units
	CardID string `msgpack:"card,omitempty"`
	Level  int    `msgpack:"level,omitempty"`
	Air    bool   `msgpack:"air,omitempty"`
	Path   Path   `msgpack:"path"`

	// towers
	TowerKind models.TowerKind `msgpack:"tower_kind,omitempty"`
	Size      int              `msgpack:"size,omitempty"`
}

// NewEntity creates a troop or building from a card instance.
func NewEntity(id, ownerID string, card models.CardInstance, x, y int) *Unit {
	kind := KindTroop
	vision := card.Vision
	if card.Kind == models.CardBuilding {
		kind = KindBuilding
		vision = 0
	}
	return &Unit{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        kind,
		X:           x,
		Y:           y,
		Health:      card.HP,
		MaxHealth:   card.HP,
		Damage:      card.Damage,
		AttackRange: max(card.Range, 1),
		VisionRange: vision,
		Alive:       true,
		State:       StateIdle,
		CardID:      card.CardID,
		Level:       card.Level,
		Air:         card.Air && kind == KindTroop,
	}
}

// NewTower creates a tower from its template, anchored at the top-left of
// its footprint.
func NewTower(ownerID string, kind models.TowerKind, index int, spec models.TowerSpec, x, y int) *Unit {
	size := max(spec.Size, 1)
	return &Unit{
		ID:          fmt.Sprintf("%s_%s%d", ownerID, kind, index),
		OwnerID:     ownerID,
		Kind:        KindTower,
		X:           x,
		Y:           y,
		Health:      spec.HP,
		MaxHealth:   spec.HP,
		Damage:      spec.Damage,
		AttackRange: max(spec.Range, 1),
		Alive:       true,
		State:       StateIdle,
		TowerKind:   kind,
		Size:        size,
	}
}

// Vision is the distance at which the unit acquires enemies. Towers reuse
// their attack range; buildings never acquire by sight.
func (u *Unit) Vision() int {
	switch u.Kind {
	case KindTower:
		return u.AttackRange
	case KindBuilding:
		return 0
	default:
		return u.VisionRange
	}
}

// Footprint returns the cells the unit covers.
func (u *Unit) Footprint() Rect {
	size := 1
	if u.Kind == KindTower {
		size = max(u.Size, 1)
	}
	return Rect{X: u.X, Y: u.Y, W: size, H: size}
}

// IsAir reports whether the unit occupies the air elevation.
func (u *Unit) IsAir() bool {
	return u.Kind == KindTroop && u.Air
}

// IsLeader reports whether destroying u ends the game.
func (u *Unit) IsLeader() bool {
	return u.Kind == KindTower && u.TowerKind == models.TowerLeader
}

func (u *Unit) Position() Point {
	return Point{X: u.X, Y: u.Y}
}

func (u *Unit) targetRef() *TargetRef {
	return &TargetRef{ID: u.ID, Tower: u.Kind == KindTower}
}

// Path is a finite sequence of waypoints consumed one per tick. A recompute
// replaces the whole value.
type Path struct {
	Steps       []Point `msgpack:"steps"`
	Destination Point   `msgpack:"dest"`
}

// Empty reports whether no waypoints remain.
func (p *Path) Empty() bool {
	return len(p.Steps) == 0
}

// Len returns the number of remaining waypoints.
func (p *Path) Len() int {
	return len(p.Steps)
}

// Next peeks at the upcoming waypoint.
func (p *Path) Next() (Point, bool) {
	if p.Empty() {
		return Point{}, false
	}
	return p.Steps[0], true
}

// Advance dequeues the upcoming waypoint.
func (p *Path) Advance() (Point, bool) {
	next, ok := p.Next()
	if !ok {
		return Point{}, false
	}
	p.Steps = p.Steps[1:]
	return next, true
}
