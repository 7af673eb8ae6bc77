package game

import "context"

type action int

const (
	actionIdle action = iota
	actionAttack
	actionMove
)

// Engine is the per-unit state machine run once per unit per tick.
type Engine struct {
	combat *Combat
}

// NewEngine creates a behavior engine that resolves its decisions through
// combat.
func NewEngine(combat *Combat) *Engine {
	return &Engine{combat: combat}
}

// Step evaluates u once. Decisions are made against a read-locked view of
// the arena; attacks and moves are then applied under the write lock, so a
// decision may act on a view that another unit changed in between.
func (e *Engine) Step(ctx context.Context, g *Game, u *Unit) error {
	a := g.Arena

	a.mu.RLock()
	act, target := a.decide(u)
	var path Path
	recompute := false
	if act == actionMove {
		if recompute = a.needsPath(u, target); recompute {
			path = a.findPath(u, target)
		}
	}
	a.mu.RUnlock()

	switch act {
	case actionAttack:
		return e.combat.HandleAttack(ctx, g, u, target)
	case actionMove:
		a.mu.Lock()
		if !u.Alive {
			a.mu.Unlock()
			return nil
		}
		u.Target = target.targetRef()
		if recompute {
			u.Path = path
		}
		u.State = StateMoving
		a.mu.Unlock()
		return e.combat.HandleMovement(ctx, g, u)
	default:
		a.mu.Lock()
		if u.Alive {
			u.State = StateIdle
			u.Target = nil
		}
		a.mu.Unlock()
		return nil
	}
}

// decide picks the next action for u. The caller holds the read lock.
func (a *Arena) decide(u *Unit) (action, *Unit) {
	if !u.Alive {
		return actionIdle, nil
	}

	if u.Target != nil {
		if t, ok := a.index[u.Target.ID]; ok && t.Alive && InRange(u, t) {
			return actionAttack, t
		}
	}

	switch u.Kind {
	case KindTower:
		if n := nearest(u, a.enemiesInVision(u)); n != nil && InRange(u, n) {
			return actionAttack, n
		}
		return actionIdle, nil
	case KindTroop:
		target := nearest(u, a.enemiesInVision(u))
		if target == nil {
			target = a.nearestEnemyTower(u)
		}
		if target == nil {
			return actionIdle, nil
		}
		if InRange(u, target) {
			return actionAttack, target
		}
		return actionMove, target
	default:
		return actionIdle, nil
	}
}

// needsPath reports whether u's stored path no longer leads to target.
func (a *Arena) needsPath(u, target *Unit) bool {
	if u.Target == nil || u.Target.ID != target.ID {
		return true
	}
	if u.Path.Destination != target.Position() {
		return true
	}
	next, ok := u.Path.Next()
	if !ok {
		return true
	}
	return !a.isWalkable(next.X, next.Y, u)
}
