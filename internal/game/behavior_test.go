package game

import (
	"context"
	"testing"

	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/internal/network"
)

func newTestEngine() (*Engine, *network.MemorySink) {
	sink := network.NewMemorySink()
	return NewEngine(NewCombat(sink, nil)), sink
}

func TestStepTroopMarchesOnNearestTower(t *testing.T) {
	g := newTestGame(t)
	e, sink := newTestEngine()
	u := newTroop("walker", "p0", 3, 18, false)
	mustPlace(t, g.Arena, u)

	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.State != StateMoving {
		t.Fatalf("state = %s, want moving", u.State)
	}
	if u.Target == nil || !u.Target.Tower || u.Target.ID != "p1_guardian1" {
		t.Fatalf("target = %+v, want p1_guardian1", u.Target)
	}
	if u.X == 3 && u.Y == 18 {
		t.Fatal("unit did not move")
	}
	if len(sink.OfType(network.MessageTypeTroopMoved)) == 0 {
		t.Fatal("no move event")
	}

	// The stored path is reused while the target stays put.
	dest := u.Path.Destination
	remaining := u.Path.Len()
	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.Path.Destination != dest || u.Path.Len() != remaining-1 {
		t.Fatalf("path recomputed: %d -> %d steps", remaining, u.Path.Len())
	}
}

func TestStepTroopChasesVisibleEnemy(t *testing.T) {
	g := newTestGame(t)
	e, _ := newTestEngine()
	u := newTroop("hunter", "p0", 9, 22, false)
	prey := newTroop("prey", "p1", 9, 19, false)
	mustPlace(t, g.Arena, u)
	mustPlace(t, g.Arena, prey)

	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.Target == nil || u.Target.ID != "prey" || u.Target.Tower {
		t.Fatalf("target = %+v, want prey", u.Target)
	}
	if u.Y != 21 {
		t.Fatalf("unit at (%d,%d), want one step closer", u.X, u.Y)
	}

	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.Y != 20 || prey.Health != 100 {
		t.Fatalf("unit at (%d,%d) with prey hp %d, want adjacent and unharmed", u.X, u.Y, prey.Health)
	}

	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.State != StateAttacking || prey.Health != 90 {
		t.Fatalf("state = %s, prey hp = %d", u.State, prey.Health)
	}
}

func TestStepRetargetsWhenTargetDies(t *testing.T) {
	g := newTestGame(t)
	e, _ := newTestEngine()
	u := newTroop("hunter", "p0", 9, 20, false)
	prey := newTroop("prey", "p1", 9, 19, false)
	mustPlace(t, g.Arena, u)
	mustPlace(t, g.Arena, prey)
	u.Target = prey.targetRef()

	g.Arena.KillPositioned(prey)
	if err := e.Step(context.Background(), g, u); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if u.Target == nil || u.Target.ID == "prey" || !u.Target.Tower {
		t.Fatalf("target = %+v, want a tower", u.Target)
	}
}

func TestStepTower(t *testing.T) {
	g := newTestGame(t)
	e, _ := newTestEngine()
	guardian, _ := g.Arena.Unit("p1_guardian1")

	if err := e.Step(context.Background(), g, guardian); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if guardian.State != StateIdle || guardian.Target != nil {
		t.Fatalf("tower with no enemies = %+v", guardian)
	}

	intruder := newTroop("intruder", "p0", 3, 8, false)
	mustPlace(t, g.Arena, intruder)
	if err := e.Step(context.Background(), g, guardian); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if intruder.Health != 100-testGuardian.Damage {
		t.Fatalf("intruder hp = %d", intruder.Health)
	}
	if guardian.State != StateAttacking || guardian.X != 2 || guardian.Y != 3 {
		t.Fatalf("guardian = %+v", guardian)
	}
}

func TestStepBuildingAndDeadAreInert(t *testing.T) {
	g := newTestGame(t)
	e, sink := newTestEngine()

	hut := NewEntity("hut", "p0", models.CardInstance{CardID: "hut", HP: 500, Damage: 40, Range: 3, Kind: models.CardBuilding}, 9, 20)
	enemy := newTroop("enemy", "p1", 9, 19, false)
	mustPlace(t, g.Arena, hut)
	mustPlace(t, g.Arena, enemy)

	if err := e.Step(context.Background(), g, hut); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if hut.State != StateIdle || enemy.Health != 100 {
		t.Fatalf("building acted: state %s, enemy hp %d", hut.State, enemy.Health)
	}

	g.Arena.KillPositioned(enemy)
	sink.Reset()
	if err := e.Step(context.Background(), g, enemy); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if enemy.X != 9 || enemy.Y != 19 || len(sink.Events()) != 0 {
		t.Fatal("dead unit acted")
	}
}
