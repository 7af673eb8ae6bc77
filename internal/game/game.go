package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

var (
	ErrNotFound           = errors.New("game not found")
	ErrCorruptData        = errors.New("corrupt game data")
	ErrPlayerNotInGame    = errors.New("player not in game")
	ErrInvalidPlayerCount = errors.New("a game needs exactly two players")
	ErrInvalidSpawn       = errors.New("invalid spawn coordinates")
	ErrWrongHalf          = errors.New("cannot spawn on the opponent's half")
	ErrCellOccupied       = errors.New("cell is occupied")
	ErrCardNotPlayable    = errors.New("card is not in hand")
	ErrInsufficientElixir = errors.New("insufficient elixir")
	ErrDuplicateEntity    = errors.New("duplicate entity id")
)

// State represents the lifecycle of a game
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
)

const (
	MaxElixir      = 10.0
	StartingElixir = 5.0
	HandSize       = 4
)

// PlayerState is one player's view of a running game.
type PlayerState struct {
	ID           string                `msgpack:"id"`
	Username     string                `msgpack:"username"`
	ConnectionID string                `msgpack:"conn,omitempty"`
	Connected    bool                  `msgpack:"connected"`
	Elixir       float64               `msgpack:"elixir"`
	Cards        []models.CardInstance `msgpack:"cards"`
}

// NewPlayerState seats a player with a starting elixir pool.
func NewPlayerState(id, username, connectionID string, deck []models.CardInstance) *PlayerState {
	return &PlayerState{
		ID:           id,
		Username:     username,
		ConnectionID: connectionID,
		Connected:    connectionID != "",
		Elixir:       StartingElixir,
		Cards:        deck,
	}
}

// Hand returns the playable cards.
func (p *PlayerState) Hand() []models.CardInstance {
	return p.Cards[:min(HandSize, len(p.Cards))]
}

// NextCard returns the card that enters the hand after the next play.
func (p *PlayerState) NextCard() (models.CardInstance, bool) {
	if len(p.Cards) <= HandSize {
		return models.CardInstance{}, false
	}
	return p.Cards[HandSize], true
}

// handIndex finds the first hand slot holding catalog card cardID.
func (p *PlayerState) handIndex(cardID string) int {
	for i, c := range p.Hand() {
		if c.CardID == cardID {
			return i
		}
	}
	return -1
}

// playCard swaps the next card into slot i and moves the played card to
// the back of the draw order.
func (p *PlayerState) playCard(i int) models.CardInstance {
	played := p.Cards[i]
	if len(p.Cards) > HandSize {
		p.Cards[i] = p.Cards[HandSize]
		p.Cards = append(p.Cards[:HandSize], p.Cards[HandSize+1:]...)
	} else {
		p.Cards = append(p.Cards[:i], p.Cards[i+1:]...)
	}
	p.Cards = append(p.Cards, played)
	return played
}

// AddElixir changes the pool by delta, clamped to [0, MaxElixir].
func (p *PlayerState) AddElixir(delta float64) {
	p.Elixir = min(max(p.Elixir+delta, 0), MaxElixir)
}

// Reachable reports whether events can be addressed to this player.
func (p *PlayerState) Reachable() bool {
	return p.Connected && p.ConnectionID != ""
}

// Game represents a game session between two players
type Game struct {
	ID        string          `msgpack:"id"`
	State     State           `msgpack:"state"`
	Players   [2]*PlayerState `msgpack:"players"`
	Arena     *Arena          `msgpack:"arena"`
	CreatedAt time.Time       `msgpack:"created_at"`

	mu sync.Mutex
}

// NewGame creates a new in-progress game.
func NewGame(id string, players [2]*PlayerState, arena *Arena) *Game {
	return &Game{
		ID:        id,
		State:     StateInProgress,
		Players:   players,
		Arena:     arena,
		CreatedAt: time.Now().UTC(),
	}
}

// Player returns the player with id and their seat index.
func (g *Game) Player(id string) (*PlayerState, int, bool) {
	for i, p := range g.Players {
		if p != nil && p.ID == id {
			return p, i, true
		}
	}
	return nil, -1, false
}

// Opponent returns the other seat.
func (g *Game) Opponent(id string) (*PlayerState, bool) {
	_, i, ok := g.Player(id)
	if !ok {
		return nil, false
	}
	return g.Players[1-i], true
}

// PlayerIDs returns both user ids in seat order.
func (g *Game) PlayerIDs() []string {
	return []string{g.Players[0].ID, g.Players[1].ID}
}

// Finish moves the game to Finished. Only the first call returns true.
func (g *Game) Finish() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.State == StateFinished {
		return false
	}
	g.State = StateFinished
	return true
}

// Finished reports whether the game has ended.
func (g *Game) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.State == StateFinished
}

// Rebase carries player writes that reached latest after base was read
// onto g: connection changes, hand order, elixir spent and newly spawned
// units. Everything else in g wins. A carried unit whose cell g has since
// filled is dropped.
func (g *Game) Rebase(base, latest *Game) {
	for i, p := range g.Players {
		lp, bp := latest.Players[i], base.Players[i]
		p.ConnectionID = lp.ConnectionID
		p.Connected = lp.Connected
		p.Cards = lp.Cards
		p.AddElixir(lp.Elixir - bp.Elixir)
	}

	a := g.Arena
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, owner := range latest.Arena.Players {
		for _, u := range latest.Arena.Units[owner] {
			if _, seen := base.Arena.index[u.ID]; seen {
				continue
			}
			if _, ok := a.index[u.ID]; ok {
				continue
			}
			if placed, err := a.placeEntity(u); err != nil || !placed {
				logger.Game.Warn("Dropped unit %s in game %s: (%d,%d) is taken", u.ID, g.ID, u.X, u.Y)
			}
		}
	}
}

// Spawn validates and plays cardID for userID at (x, y): the card must sit
// in the hand, the player must afford it, and the cell must be on the
// player's half and free at the unit's elevation. On success elixir is
// deducted and the hand advances.
func (g *Game) Spawn(userID, cardID string, x, y int, unitID string) (*Unit, models.CardInstance, error) {
	player, seat, ok := g.Player(userID)
	if !ok {
		return nil, models.CardInstance{}, fmt.Errorf("%s in %s: %w", userID, g.ID, ErrPlayerNotInGame)
	}
	a := g.Arena
	if !a.InBounds(x, y) {
		return nil, models.CardInstance{}, fmt.Errorf("(%d,%d): %w", x, y, ErrInvalidSpawn)
	}
	if !a.OnHalf(seat, x, y) {
		return nil, models.CardInstance{}, fmt.Errorf("(%d,%d): %w", x, y, ErrWrongHalf)
	}
	idx := player.handIndex(cardID)
	if idx < 0 {
		return nil, models.CardInstance{}, fmt.Errorf("%s: %w", cardID, ErrCardNotPlayable)
	}
	card := player.Cards[idx]
	if player.Elixir < float64(card.Elixir) {
		return nil, models.CardInstance{}, fmt.Errorf("need %d, have %.1f: %w", card.Elixir, player.Elixir, ErrInsufficientElixir)
	}

	unit := NewEntity(unitID, userID, card, x, y)
	placed, err := a.PlaceEntity(unit)
	if err != nil {
		return nil, models.CardInstance{}, err
	}
	if !placed {
		return nil, models.CardInstance{}, fmt.Errorf("(%d,%d): %w", x, y, ErrCellOccupied)
	}

	player.AddElixir(-float64(card.Elixir))
	player.playCard(idx)
	return unit, card, nil
}

// Broadcast sends an event to every reachable player. Delivery failures
// are logged and never returned.
func (g *Game) Broadcast(sink network.EventSink, msgType network.MessageType, payload interface{}) {
	if sink == nil {
		return
	}
	for _, p := range g.Players {
		if p == nil || !p.Reachable() {
			continue
		}
		if err := sink.Send(p.ConnectionID, msgType, payload); err != nil {
			logger.Game.Warn("Failed to send %s to %s in game %s: %v", msgType, p.ID, g.ID, err)
		}
	}
}

// Encode serializes the game for the external store.
func Encode(g *Game) ([]byte, error) {
	g.Arena.mu.RLock()
	defer g.Arena.mu.RUnlock()
	data, err := msgpack.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return data, nil
}

// Decode restores a game and rebuilds its lookup indexes.
func Decode(data []byte) (*Game, error) {
	var g Game
	if err := msgpack.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if g.Arena == nil || g.Players[0] == nil || g.Players[1] == nil ||
		len(g.Arena.Cells) != g.Arena.Rows*g.Arena.Cols {
		return nil, fmt.Errorf("%w: incomplete game %q", ErrCorruptData, g.ID)
	}
	g.Arena.reindex()
	return &g, nil
}
