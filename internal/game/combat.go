package game

import (
	"context"

	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// Finisher closes a session once a leader tower falls.
type Finisher interface {
	EndGame(ctx context.Context, g *Game, winnerID, loserID string) error
}

// Combat applies attacks and movement steps to a loaded game and reports
// the results to the players.
type Combat struct {
	sink     network.EventSink
	finisher Finisher
}

// NewCombat creates a resolver. finisher may be nil, in which case a
// destroyed leader only marks the game finished.
func NewCombat(sink network.EventSink, finisher Finisher) *Combat {
	return &Combat{sink: sink, finisher: finisher}
}

// HandleAttack applies one hit from attacker to target. Attacking a dead
// target is a no-op, so stale dispatches within a tick are harmless.
func (c *Combat) HandleAttack(ctx context.Context, g *Game, attacker, target *Unit) error {
	a := g.Arena

	a.mu.Lock()
	if !target.Alive || !attacker.Alive {
		a.mu.Unlock()
		return nil
	}
	attacker.State = StateAttacking
	attacker.Target = target.targetRef()

	target.Health = max(target.Health-attacker.Damage, 0)
	damaged := network.UnitDamagedPayload{
		AttackerID: attacker.ID,
		TargetID:   target.ID,
		Damage:     attacker.Damage,
		Health:     target.Health,
		MaxHealth:  target.MaxHealth,
	}
	killed := target.Health <= 0
	if killed {
		a.killPositioned(target)
		attacker.State = StateIdle
		attacker.Target = nil
	}
	a.mu.Unlock()

	g.Broadcast(c.sink, network.MessageTypeUnitDamaged, damaged)
	if !killed {
		return nil
	}

	logger.Game.Debug("%s destroyed %s in game %s", attacker.ID, target.ID, g.ID)
	g.Broadcast(c.sink, network.MessageTypeUnitKilled, network.UnitKilledPayload{
		AttackerID: attacker.ID,
		TargetID:   target.ID,
	})

	if !target.IsLeader() {
		return nil
	}
	logger.Game.Info("Leader tower %s fell in game %s, winner %s", target.ID, g.ID, attacker.OwnerID)
	if c.finisher == nil {
		g.Finish()
		return nil
	}
	return c.finisher.EndGame(ctx, g, attacker.OwnerID, target.OwnerID)
}

// HandleMovement advances u by exactly one waypoint. A waypoint that was
// taken since the path was computed is left in place for the next tick's
// recompute.
func (c *Combat) HandleMovement(ctx context.Context, g *Game, u *Unit) error {
	a := g.Arena

	a.mu.Lock()
	if !u.Alive {
		a.mu.Unlock()
		return nil
	}
	next, ok := u.Path.Next()
	if !ok || !a.moveUnit(u, next) {
		a.mu.Unlock()
		return nil
	}
	u.Path.Advance()
	u.State = StateMoving
	moved := network.TroopMovedPayload{
		UnitID: u.ID,
		UserID: u.OwnerID,
		X:      u.X,
		Y:      u.Y,
		State:  string(u.State),
	}
	a.mu.Unlock()

	g.Broadcast(c.sink, network.MessageTypeTroopMoved, moved)
	return nil
}
