package game

import (
	"context"
	"testing"

	"github.com/NP-Dat/tcr-arena/internal/network"
)

type recordingFinisher struct {
	calls   int
	winner  string
	loser   string
	towersW int
	towersL int
}

func (f *recordingFinisher) EndGame(_ context.Context, g *Game, winnerID, loserID string) error {
	if !g.Finish() {
		return nil
	}
	f.calls++
	f.winner, f.loser = winnerID, loserID
	f.towersW, f.towersL = g.Arena.TowersLeft(winnerID), g.Arena.TowersLeft(loserID)
	return nil
}

func eventsFor(sink *network.MemorySink, conn string, msgType network.MessageType) []network.SentEvent {
	var out []network.SentEvent
	for _, ev := range sink.OfType(msgType) {
		if ev.ConnectionID == conn {
			out = append(out, ev)
		}
	}
	return out
}

func TestHandleAttackDamages(t *testing.T) {
	g := newTestGame(t)
	sink := network.NewMemorySink()
	c := NewCombat(sink, nil)

	attacker := newTroop("a", "p0", 9, 20, false)
	target := newTroop("t", "p1", 9, 19, false)
	mustPlace(t, g.Arena, attacker)
	mustPlace(t, g.Arena, target)

	if err := c.HandleAttack(context.Background(), g, attacker, target); err != nil {
		t.Fatalf("HandleAttack: %v", err)
	}
	if target.Health != 90 || !target.Alive {
		t.Fatalf("target = %+v", target)
	}
	if attacker.State != StateAttacking || attacker.Target == nil || attacker.Target.ID != "t" {
		t.Fatalf("attacker = %+v", attacker)
	}

	got := eventsFor(sink, "c0", network.MessageTypeUnitDamaged)
	if len(got) != 1 {
		t.Fatalf("damaged events = %d, want 1", len(got))
	}
	p := got[0].Payload.(network.UnitDamagedPayload)
	if p.AttackerID != "a" || p.TargetID != "t" || p.Damage != 10 || p.Health != 90 || p.MaxHealth != 100 {
		t.Fatalf("payload = %+v", p)
	}
	if len(eventsFor(sink, "c1", network.MessageTypeUnitDamaged)) != 1 {
		t.Fatal("opponent did not receive the damage event")
	}
}

func TestHandleAttackKills(t *testing.T) {
	g := newTestGame(t)
	sink := network.NewMemorySink()
	c := NewCombat(sink, nil)

	attacker := newTroop("a", "p0", 9, 20, false)
	attacker.Damage = 50
	target := newTroop("t", "p1", 9, 19, false)
	target.Health = 10
	mustPlace(t, g.Arena, attacker)
	mustPlace(t, g.Arena, target)

	ctx := context.Background()
	if err := c.HandleAttack(ctx, g, attacker, target); err != nil {
		t.Fatalf("HandleAttack: %v", err)
	}
	if err := c.HandleAttack(ctx, g, attacker, target); err != nil {
		t.Fatalf("second HandleAttack: %v", err)
	}

	if target.Alive || target.Health != 0 {
		t.Fatalf("target = %+v", target)
	}
	if n := len(eventsFor(sink, "c0", network.MessageTypeUnitKilled)); n != 1 {
		t.Fatalf("killed events = %d, want 1", n)
	}
	if n := len(eventsFor(sink, "c0", network.MessageTypeUnitDamaged)); n != 1 {
		t.Fatalf("damaged events = %d, want 1", n)
	}
	if c, _ := g.Arena.Cell(9, 19); c.Ground || c.GroundID != "" {
		t.Fatalf("cell still occupied: %+v", c)
	}
	for _, u := range g.Arena.LiveUnits() {
		if u.ID == "t" {
			t.Fatal("dead unit still in the live list")
		}
	}
	if len(g.Arena.Units["p1"]) != 0 {
		t.Fatalf("p1 units = %d, want 0", len(g.Arena.Units["p1"]))
	}
	if attacker.State != StateIdle || attacker.Target != nil {
		t.Fatalf("attacker after kill = %+v", attacker)
	}
}

func TestHandleAttackLeaderEndsGame(t *testing.T) {
	g := newTestGame(t)
	sink := network.NewMemorySink()
	fin := &recordingFinisher{}
	c := NewCombat(sink, fin)

	attacker := newTroop("a", "p0", 9, 4, false)
	attacker.Damage = 5000
	mustPlace(t, g.Arena, attacker)
	guardian, _ := g.Arena.Unit("p1_guardian1")
	leader, _ := g.Arena.Unit("p1_leader0")

	ctx := context.Background()
	if err := c.HandleAttack(ctx, g, attacker, guardian); err != nil {
		t.Fatalf("attack guardian: %v", err)
	}
	if fin.calls != 0 || g.Finished() {
		t.Fatal("guardian kill ended the game")
	}

	if err := c.HandleAttack(ctx, g, attacker, leader); err != nil {
		t.Fatalf("attack leader: %v", err)
	}
	if fin.calls != 1 || fin.winner != "p0" || fin.loser != "p1" {
		t.Fatalf("finisher = %+v", fin)
	}
	if fin.towersW != 3 || fin.towersL != 1 {
		t.Fatalf("towers left = %d/%d, want 3/1", fin.towersW, fin.towersL)
	}
	if !g.Finished() {
		t.Fatal("game not finished")
	}
}

func TestHandleMovement(t *testing.T) {
	g := newTestGame(t)
	sink := network.NewMemorySink()
	c := NewCombat(sink, nil)
	ctx := context.Background()

	u := newTroop("m", "p0", 9, 20, false)
	mustPlace(t, g.Arena, u)

	// Empty path is a no-op.
	if err := c.HandleMovement(ctx, g, u); err != nil {
		t.Fatalf("HandleMovement: %v", err)
	}
	if len(sink.Events()) != 0 {
		t.Fatal("empty path emitted events")
	}

	u.Path = Path{Steps: []Point{{9, 19}, {9, 18}}, Destination: Point{9, 10}}
	if err := c.HandleMovement(ctx, g, u); err != nil {
		t.Fatalf("HandleMovement: %v", err)
	}
	if u.X != 9 || u.Y != 19 || u.State != StateMoving || u.Path.Len() != 1 {
		t.Fatalf("unit after step = %+v", u)
	}
	if c, _ := g.Arena.Cell(9, 20); c.Ground {
		t.Fatal("old cell still occupied")
	}
	if c, _ := g.Arena.Cell(9, 19); c.GroundID != "m" {
		t.Fatalf("new cell = %+v", c)
	}
	moved := eventsFor(sink, "c1", network.MessageTypeTroopMoved)
	if len(moved) != 1 {
		t.Fatalf("moved events = %d, want 1", len(moved))
	}
	if p := moved[0].Payload.(network.TroopMovedPayload); p.X != 9 || p.Y != 19 || p.State != "moving" {
		t.Fatalf("payload = %+v", p)
	}

	// A step into a cell taken since planning is skipped.
	mustPlace(t, g.Arena, newTroop("blocker", "p1", 9, 18, false))
	sink.Reset()
	if err := c.HandleMovement(ctx, g, u); err != nil {
		t.Fatalf("HandleMovement: %v", err)
	}
	if u.Y != 19 || u.Path.Len() != 1 || len(sink.Events()) != 0 {
		t.Fatalf("blocked step moved unit to (%d,%d), path %v", u.X, u.Y, u.Path.Steps)
	}
}

func TestBroadcastSkipsDisconnected(t *testing.T) {
	g := newTestGame(t)
	g.Players[1].Connected = false
	sink := network.NewMemorySink()

	g.Broadcast(sink, network.MessageTypeUnitKilled, network.UnitKilledPayload{})
	events := sink.Events()
	if len(events) != 1 || events[0].ConnectionID != "c0" {
		t.Fatalf("events = %+v", events)
	}
}
