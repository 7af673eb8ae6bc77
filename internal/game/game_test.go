package game

import (
	"errors"
	"fmt"
	"testing"

	"github.com/NP-Dat/tcr-arena/internal/models"
)

func testDeck(owner string) []models.CardInstance {
	costs := []int{3, 4, 2, 5, 6, 7, 1, 8}
	deck := make([]models.CardInstance, len(costs))
	for i, c := range costs {
		deck[i] = models.CardInstance{
			ID:     fmt.Sprintf("%s-%d", owner, i),
			CardID: fmt.Sprintf("card%d", i),
			Name:   fmt.Sprintf("Card %d", i),
			Level:  1,
			Elixir: c,
			HP:     100,
			Damage: 10,
			Range:  1,
			Vision: 5,
			Kind:   models.CardTroop,
		}
	}
	return deck
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	a := newTestArena(t)
	return NewGame("g1", [2]*PlayerState{
		NewPlayerState("p0", "alice", "c0", testDeck("p0")),
		NewPlayerState("p1", "bob", "c1", testDeck("p1")),
	}, a)
}

func TestSpawnDeductsElixirAndAdvancesHand(t *testing.T) {
	g := newTestGame(t)
	p := g.Players[0]

	unit, card, err := g.Spawn("p0", "card0", 9, 20, "u1")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if p.Elixir != 2 {
		t.Fatalf("elixir = %v, want 2", p.Elixir)
	}
	if card.CardID != "card0" || unit.CardID != "card0" || unit.OwnerID != "p0" {
		t.Fatalf("spawned %+v from %+v", unit, card)
	}
	if c, _ := g.Arena.Cell(9, 20); c.GroundID != "u1" {
		t.Fatalf("cell = %+v", c)
	}

	var hand []string
	for _, c := range p.Hand() {
		hand = append(hand, c.CardID)
	}
	if fmt.Sprint(hand) != "[card4 card1 card2 card3]" {
		t.Fatalf("hand = %v", hand)
	}
	if next, _ := p.NextCard(); next.CardID != "card5" {
		t.Fatalf("next card = %s, want card5", next.CardID)
	}
	if last := p.Cards[len(p.Cards)-1]; last.CardID != "card0" {
		t.Fatalf("played card went to %s, want back of deck", last.CardID)
	}
	if len(p.Cards) != 8 {
		t.Fatalf("deck size = %d, want 8", len(p.Cards))
	}
}

func TestSpawnValidation(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		card   string
		x, y   int
		elixir float64
		want   error
	}{
		{"unknown player", "nobody", "card0", 9, 20, 5, ErrPlayerNotInGame},
		{"out of bounds", "p0", "card0", 18, 20, 5, ErrInvalidSpawn},
		{"opponent half", "p0", "card0", 9, 10, 5, ErrWrongHalf},
		{"river", "p0", "card0", 9, 15, 5, ErrWrongHalf},
		{"next card", "p0", "card4", 9, 20, 10, ErrCardNotPlayable},
		{"unknown card", "p0", "dragon", 9, 20, 10, ErrCardNotPlayable},
		{"too expensive", "p0", "card3", 9, 20, 4.9, ErrInsufficientElixir},
		{"on a tower", "p0", "card0", 8, 27, 5, ErrCellOccupied},
		{"top player bottom half", "p1", "card0", 9, 20, 5, ErrWrongHalf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t)
			for _, p := range g.Players {
				p.Elixir = tt.elixir
			}
			_, _, err := g.Spawn(tt.user, tt.card, tt.x, tt.y, "u1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Spawn err = %v, want %v", err, tt.want)
			}
			if p, _, ok := g.Player(tt.user); ok && p.Elixir != tt.elixir {
				t.Fatalf("elixir changed to %v on failure", p.Elixir)
			}
		})
	}
}

func TestAddElixirClamps(t *testing.T) {
	p := NewPlayerState("p0", "alice", "", nil)
	if p.Elixir != StartingElixir {
		t.Fatalf("starting elixir = %v", p.Elixir)
	}
	for i := 0; i < 100; i++ {
		p.AddElixir(0.7)
		if p.Elixir > MaxElixir || p.Elixir < 0 {
			t.Fatalf("elixir %v out of range after %d ticks", p.Elixir, i)
		}
	}
	if p.Elixir != MaxElixir {
		t.Fatalf("elixir = %v, want %v", p.Elixir, MaxElixir)
	}
	p.AddElixir(-25)
	if p.Elixir != 0 {
		t.Fatalf("elixir = %v, want 0", p.Elixir)
	}
	if p.Reachable() {
		t.Fatal("player without a connection reported reachable")
	}
}

func TestFinishOnlyOnce(t *testing.T) {
	g := newTestGame(t)
	if !g.Finish() {
		t.Fatal("first Finish returned false")
	}
	if g.Finish() {
		t.Fatal("second Finish returned true")
	}
	if !g.Finished() || g.State != StateFinished {
		t.Fatalf("state = %s", g.State)
	}
}

func TestEncodeDecode(t *testing.T) {
	g := newTestGame(t)
	if _, _, err := g.Spawn("p0", "card0", 9, 20, "u1"); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	data, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.ID != g.ID || got.State != StateInProgress || got.Players[0].Elixir != 2 {
		t.Fatalf("decoded game = %+v", got)
	}
	u, ok := got.Arena.Unit("u1")
	if !ok || u.X != 9 || u.Y != 20 {
		t.Fatalf("unit lookup after decode = %+v, %v", u, ok)
	}
	if got.Arena.TowersLeft("p1") != 3 {
		t.Fatalf("towers after decode = %d", got.Arena.TowersLeft("p1"))
	}
	if c, _ := got.Arena.Cell(9, 20); c.GroundID != "u1" {
		t.Fatalf("cell after decode = %+v", c)
	}

	if _, err := Decode([]byte("not msgpack")); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("Decode garbage err = %v, want ErrCorruptData", err)
	}
}

func TestRebaseCarriesPlayerWrites(t *testing.T) {
	g := newTestGame(t)
	data, err := Encode(g)
	if err != nil {
		t.Fatal(err)
	}
	decode := func() *Game {
		t.Helper()
		out, err := Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	base, tick, latest := decode(), decode(), decode()

	// The tick regenerated elixir and moved a troop onto (5,20).
	for _, p := range tick.Players {
		p.AddElixir(1)
	}
	mover := NewEntity("mover", "p0", testDeck("p0")[0], 5, 20)
	if placed, err := tick.Arena.PlaceEntity(mover); err != nil || !placed {
		t.Fatalf("PlaceEntity = %v, %v", placed, err)
	}

	// Meanwhile p0 played two cards and p1 dropped.
	if _, _, err := latest.Spawn("p0", "card0", 9, 20, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := latest.Spawn("p0", "card2", 5, 20, "u2"); err != nil {
		t.Fatal(err)
	}
	latest.Players[1].Connected = false

	tick.Rebase(base, latest)

	p0, p1 := tick.Players[0], tick.Players[1]
	if p0.Elixir != 1 || p1.Elixir != 6 {
		t.Fatalf("elixir = %v / %v, want 1 / 6", p0.Elixir, p1.Elixir)
	}
	if p1.Connected {
		t.Fatal("disconnect was lost")
	}
	if h := p0.Hand(); h[0].CardID != "card4" || h[2].CardID != "card5" {
		t.Fatalf("hand = %+v", h)
	}
	if _, ok := tick.Arena.Unit("u1"); !ok {
		t.Fatal("spawned unit u1 was not carried over")
	}
	if _, ok := tick.Arena.Unit("u2"); ok {
		t.Fatal("u2 was placed on an occupied cell")
	}
	if c, _ := tick.Arena.Cell(5, 20); c.GroundID != "mover" {
		t.Fatalf("cell (5,20) = %+v", c)
	}
}
