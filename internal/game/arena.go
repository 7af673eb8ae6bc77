package game

import (
	"fmt"
	"slices"
	"sync"

	"github.com/NP-Dat/tcr-arena/internal/models"
)

// Terrain is the static ground type of a cell.
type Terrain uint8

const (
	TerrainGround Terrain = iota
	TerrainRiver
	TerrainBridge
)

// Reference arena size.
const (
	DefaultRows = 30
	DefaultCols = 18
)

// Cell is one grid square. Occupancy is tracked per elevation; the id
// fields are back-references into the owning Arena.
type Cell struct {
	Terrain  Terrain `msgpack:"t"`
	Ground   bool    `msgpack:"g,omitempty"`
	Air      bool    `msgpack:"a,omitempty"`
	TowerID  string  `msgpack:"tw,omitempty"`
	GroundID string  `msgpack:"gid,omitempty"`
	AirID    string  `msgpack:"aid,omitempty"`
}

// Arena is the battlefield of one session. It owns the cell grid, the six
// towers, and the per-player list of live card units.
//
// Units evaluated on parallel goroutines share one Arena: queries hold the
// read lock and every mutation holds the write lock. Exported methods lock
// for themselves; lowercase helpers expect the caller to hold the lock.
type Arena struct {
	Rows    int                `msgpack:"rows"`
	Cols    int                `msgpack:"cols"`
	Cells   []Cell             `msgpack:"cells"`
	Towers  []*Unit            `msgpack:"towers"`
	Units   map[string][]*Unit `msgpack:"units"`
	Players [2]string          `msgpack:"players"`

	mu    sync.RWMutex
	index map[string]*Unit
}

// NewArena lays out terrain for a rows×cols grid and places both players'
// towers. players[0] defends the bottom half, players[1] the top half.
func NewArena(rows, cols int, players [2]string, leader, guardian models.TowerSpec) (*Arena, error) {
	if rows < 8 || cols < 8 {
		return nil, fmt.Errorf("arena %dx%d is too small", rows, cols)
	}
	a := &Arena{
		Rows:    rows,
		Cols:    cols,
		Cells:   make([]Cell, rows*cols),
		Units:   map[string][]*Unit{players[0]: {}, players[1]: {}},
		Players: players,
		index:   make(map[string]*Unit),
	}

	top, bottom := a.RiverRows()
	for _, y := range []int{top, bottom} {
		for x := 0; x < cols; x++ {
			a.cell(x, y).Terrain = TerrainRiver
		}
		for _, x := range a.BridgeColumns() {
			a.cell(x, y).Terrain = TerrainBridge
		}
	}

	for i, owner := range players {
		for _, t := range towerLayout(rows, cols, i, owner, leader, guardian) {
			a.Towers = append(a.Towers, t)
			a.index[t.ID] = t
			a.occupyTower(t)
		}
	}
	return a, nil
}

func towerLayout(rows, cols, side int, owner string, leader, guardian models.TowerSpec) []*Unit {
	ls := max(leader.Size, 1)
	gs := max(guardian.Size, 1)
	lx := (cols - ls) / 2
	gLeft, gRight := 2, cols-2-gs

	ly, gy := 0, 3
	if side == 0 {
		ly, gy = rows-ls, rows-3-gs
	}
	return []*Unit{
		NewTower(owner, models.TowerLeader, 0, leader, lx, ly),
		NewTower(owner, models.TowerGuardian, 1, guardian, gLeft, gy),
		NewTower(owner, models.TowerGuardian, 2, guardian, gRight, gy),
	}
}

// RiverRows returns the two river rows.
func (a *Arena) RiverRows() (int, int) {
	return a.Rows/2 - 1, a.Rows / 2
}

// BridgeColumns returns the columns where the river can be crossed on foot.
func (a *Arena) BridgeColumns() []int {
	return []int{3, a.Cols - 4}
}

// InBounds reports whether (x, y) is on the grid.
func (a *Arena) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < a.Cols && y < a.Rows
}

// OnHalf reports whether (x, y) is on the given player's side of the river.
func (a *Arena) OnHalf(playerIndex, x, y int) bool {
	if !a.InBounds(x, y) {
		return false
	}
	top, bottom := a.RiverRows()
	if playerIndex == 0 {
		return y > bottom
	}
	return y < top
}

func (a *Arena) cell(x, y int) *Cell {
	return &a.Cells[y*a.Cols+x]
}

// Cell returns a copy of the cell at (x, y).
func (a *Arena) Cell(x, y int) (Cell, bool) {
	if !a.InBounds(x, y) {
		return Cell{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *a.cell(x, y), true
}

// reindex rebuilds the id lookup after decoding.
func (a *Arena) reindex() {
	a.index = make(map[string]*Unit, len(a.Towers)+8)
	for _, t := range a.Towers {
		a.index[t.ID] = t
	}
	if a.Units == nil {
		a.Units = make(map[string][]*Unit)
	}
	for _, list := range a.Units {
		for _, u := range list {
			a.index[u.ID] = u
		}
	}
}

func (a *Arena) occupyTower(t *Unit) {
	fp := t.Footprint()
	for y := fp.Y; y < fp.Y+fp.H; y++ {
		for x := fp.X; x < fp.X+fp.W; x++ {
			if !a.InBounds(x, y) {
				continue
			}
			c := a.cell(x, y)
			c.Ground = true
			c.TowerID = t.ID
		}
	}
}

func (a *Arena) vacateTower(t *Unit) {
	fp := t.Footprint()
	for y := fp.Y; y < fp.Y+fp.H; y++ {
		for x := fp.X; x < fp.X+fp.W; x++ {
			if !a.InBounds(x, y) {
				continue
			}
			c := a.cell(x, y)
			if c.TowerID == t.ID {
				c.Ground = false
				c.TowerID = ""
			}
		}
	}
}

func (a *Arena) occupied(x, y int, air bool) bool {
	c := a.cell(x, y)
	if air {
		return c.Air
	}
	return c.Ground
}

func (a *Arena) occupy(u *Unit) {
	c := a.cell(u.X, u.Y)
	if u.IsAir() {
		c.Air, c.AirID = true, u.ID
		return
	}
	c.Ground, c.GroundID = true, u.ID
}

func (a *Arena) vacate(u *Unit) {
	if !a.InBounds(u.X, u.Y) {
		return
	}
	c := a.cell(u.X, u.Y)
	if u.IsAir() {
		c.Air, c.AirID = false, ""
		return
	}
	c.Ground, c.GroundID = false, ""
}

// PlaceEntity registers a card unit and marks its cell at the unit's
// elevation. A duplicate id is an error; an already occupied elevation is a
// silent no-op reported as placed=false.
func (a *Arena) PlaceEntity(u *Unit) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.placeEntity(u)
}

func (a *Arena) placeEntity(u *Unit) (bool, error) {
	if _, exists := a.index[u.ID]; exists {
		return false, fmt.Errorf("%s: %w", u.ID, ErrDuplicateEntity)
	}
	if !a.InBounds(u.X, u.Y) {
		return false, fmt.Errorf("(%d,%d): %w", u.X, u.Y, ErrInvalidSpawn)
	}
	if a.occupied(u.X, u.Y, u.IsAir()) {
		return false, nil
	}
	a.occupy(u)
	a.index[u.ID] = u
	a.Units[u.OwnerID] = append(a.Units[u.OwnerID], u)
	return true, nil
}

// RemoveEntity clears the unit's occupancy flag at its own elevation only.
func (a *Arena) RemoveEntity(u *Unit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vacate(u)
}

// IsWalkable reports whether u may enter (x, y). River blocks ground units
// only; occupancy blocks only the unit's own elevation.
func (a *Arena) IsWalkable(x, y int, u *Unit) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isWalkable(x, y, u)
}

func (a *Arena) isWalkable(x, y int, u *Unit) bool {
	if !a.InBounds(x, y) {
		return false
	}
	c := a.cell(x, y)
	if u.IsAir() {
		return !c.Air
	}
	return c.Terrain != TerrainRiver && !c.Ground
}

// CanExecuteMovement is the bounds plus walkability check for a step.
func (a *Arena) CanExecuteMovement(u *Unit, x, y int) bool {
	return a.IsWalkable(x, y, u)
}

// KillPositioned removes target from the grid and from the live lists.
// Calling it again for the same unit is a no-op.
func (a *Arena) KillPositioned(target *Unit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.killPositioned(target)
}

func (a *Arena) killPositioned(target *Unit) {
	target.Alive = false
	if target.Health > 0 {
		target.Health = 0
	}
	target.State = StateIdle
	target.Target = nil
	target.Path = Path{}

	if target.Kind == KindTower {
		a.vacateTower(target)
		return
	}
	if c := a.cell(target.X, target.Y); (target.IsAir() && c.AirID == target.ID) || (!target.IsAir() && c.GroundID == target.ID) {
		a.vacate(target)
	}
	list := a.Units[target.OwnerID]
	if i := slices.Index(list, target); i >= 0 {
		a.Units[target.OwnerID] = slices.Delete(list, i, i+1)
	}
}

// moveUnit relocates u by one step if the destination is still free.
func (a *Arena) moveUnit(u *Unit, to Point) bool {
	if !a.isWalkable(to.X, to.Y, u) {
		return false
	}
	a.vacate(u)
	u.X, u.Y = to.X, to.Y
	a.occupy(u)
	return true
}

// Unit looks up any unit or tower by id, dead or alive.
func (a *Arena) Unit(id string) (*Unit, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.index[id]
	return u, ok
}

// LiveUnits returns every live card unit of both players.
func (a *Arena) LiveUnits() []*Unit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Unit
	for _, owner := range a.Players {
		for _, u := range a.Units[owner] {
			if u.Alive {
				out = append(out, u)
			}
		}
	}
	return out
}

// LiveTowers returns every standing tower.
func (a *Arena) LiveTowers() []*Unit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Unit
	for _, t := range a.Towers {
		if t.Alive {
			out = append(out, t)
		}
	}
	return out
}

// TowersLeft counts the standing towers of owner.
func (a *Arena) TowersLeft(owner string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, t := range a.Towers {
		if t.Alive && t.OwnerID == owner {
			n++
		}
	}
	return n
}

// GetEnemiesInVision returns the opposing live card units within the unit's
// vision, measured as Euclidean distance between footprints.
func (a *Arena) GetEnemiesInVision(u *Unit) []*Unit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enemiesInVision(u)
}

func (a *Arena) enemiesInVision(u *Unit) []*Unit {
	vision := u.Vision()
	if vision <= 0 {
		return nil
	}
	fp := u.Footprint()
	var out []*Unit
	for _, owner := range a.Players {
		if owner == u.OwnerID {
			continue
		}
		for _, e := range a.Units[owner] {
			if e.Alive && fp.EuclideanTo(e.Footprint()) <= float64(vision) {
				out = append(out, e)
			}
		}
	}
	return out
}

// GetNearestEnemyTower returns the closest standing tower not owned by u.
func (a *Arena) GetNearestEnemyTower(u *Unit) *Unit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nearestEnemyTower(u)
}

func (a *Arena) nearestEnemyTower(u *Unit) *Unit {
	fp := u.Footprint()
	var best *Unit
	bestDist := 0.0
	for _, t := range a.Towers {
		if !t.Alive || t.OwnerID == u.OwnerID {
			continue
		}
		d := fp.EuclideanTo(t.Footprint())
		if best == nil || d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

func nearest(from *Unit, candidates []*Unit) *Unit {
	fp := from.Footprint()
	var best *Unit
	bestDist := 0.0
	for _, c := range candidates {
		d := fp.EuclideanTo(c.Footprint())
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
