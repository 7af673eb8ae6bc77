package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NP-Dat/tcr-arena/internal/game"
	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/internal/store"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

const (
	gameKeyPrefix    = "game:"
	playerKeyPrefix  = "player:"
	activePlayersKey = "active_players"
)

func gameKey(sessionID string) string { return gameKeyPrefix + sessionID }

func playerKey(userID string) string { return playerKeyPrefix + userID }

// playerKeys lists the seat lookups that live and expire with g.
func playerKeys(g *game.Game) []string {
	return []string{playerKey(g.Players[0].ID), playerKey(g.Players[1].ID)}
}

// DeckProvider supplies a user's display name and a shuffled copy of their deck.
type DeckProvider interface {
	Deck(userID string) (string, []models.CardInstance, error)
}

// TowerProvider supplies base tower stats.
type TowerProvider interface {
	TowerSpec(kind models.TowerKind) (models.TowerSpec, error)
}

// Lifecycle starts and stops the tick loop of a session.
type Lifecycle interface {
	Start(sessionID string)
	Stop(sessionID string)
}

// Seat is one side of a new game.
type Seat struct {
	UserID       string
	ConnectionID string
}

// ConcurrencyError is returned when a compare-and-swap update keeps losing
// to other writers.
type ConcurrencyError struct {
	SessionID string
	Attempts  int
	Err       error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("session %s: update failed after %d attempts: %v", e.SessionID, e.Attempts, e.Err)
}

func (e *ConcurrencyError) Unwrap() error {
	return e.Err
}

// errUnchanged tells update that the mutation had nothing to write.
var errUnchanged = errors.New("unchanged")

// SessionManager is the authoritative store of running games. Every game
// is kept as one serialized value; writers that race with the tick use
// compare-and-swap with bounded retry.
type SessionManager struct {
	store     store.Store
	decks     DeckProvider
	towers    TowerProvider
	sink      network.EventSink
	lifecycle Lifecycle

	ttl          time.Duration
	maxRetries   int
	retryBackoff time.Duration
	rows, cols   int
}

// NewSessionManager creates a new session manager
func NewSessionManager(st store.Store, decks DeckProvider, towers TowerProvider, sink network.EventSink, cfg *models.ServerConfig) *SessionManager {
	cfg.ApplyDefaults()
	return &SessionManager{
		store:        st,
		decks:        decks,
		towers:       towers,
		sink:         sink,
		ttl:          cfg.SessionTTL,
		maxRetries:   cfg.Concurrency.MaxRetries,
		retryBackoff: cfg.Concurrency.RetryBackoff,
		rows:         cfg.Arena.Rows,
		cols:         cfg.Arena.Cols,
	}
}

// SetLifecycle wires the tick scheduler that runs created sessions.
func (sm *SessionManager) SetLifecycle(l Lifecycle) {
	sm.lifecycle = l
}

// CreateNewGame builds a game for exactly two seats, stores it, marks both
// users active and starts ticking it.
func (sm *SessionManager) CreateNewGame(ctx context.Context, sessionID string, seats []Seat) (*game.Game, error) {
	if len(seats) != 2 || seats[0].UserID == seats[1].UserID {
		return nil, fmt.Errorf("got %d seats: %w", len(seats), game.ErrInvalidPlayerCount)
	}

	leader, err := sm.towers.TowerSpec(models.TowerLeader)
	if err != nil {
		return nil, fmt.Errorf("failed to load leader tower: %w", err)
	}
	guardian, err := sm.towers.TowerSpec(models.TowerGuardian)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardian tower: %w", err)
	}

	var players [2]*game.PlayerState
	for i, seat := range seats {
		username, deck, err := sm.decks.Deck(seat.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load deck for %s: %w", seat.UserID, err)
		}
		players[i] = game.NewPlayerState(seat.UserID, username, seat.ConnectionID, deck)
	}

	arena, err := game.NewArena(sm.rows, sm.cols, [2]string{seats[0].UserID, seats[1].UserID}, leader, guardian)
	if err != nil {
		return nil, err
	}
	g := game.NewGame(sessionID, players, arena)

	data, err := game.Encode(g)
	if err != nil {
		return nil, err
	}
	values := map[string][]byte{
		gameKey(sessionID):          data,
		playerKey(seats[0].UserID): []byte(sessionID),
		playerKey(seats[1].UserID): []byte(sessionID),
	}
	if err := sm.store.SetAndAdd(ctx, values, sm.ttl, activePlayersKey, seats[0].UserID, seats[1].UserID); err != nil {
		return nil, fmt.Errorf("failed to store game %s: %w", sessionID, err)
	}

	if sm.lifecycle != nil {
		sm.lifecycle.Start(sessionID)
	}
	logger.Store.Info("Created game %s between %s and %s", sessionID, seats[0].UserID, seats[1].UserID)
	return g, nil
}

// GetGame loads and decodes a stored game.
func (sm *SessionManager) GetGame(ctx context.Context, sessionID string) (*game.Game, error) {
	_, g, err := sm.load(ctx, sessionID)
	return g, err
}

func (sm *SessionManager) load(ctx context.Context, sessionID string) ([]byte, *game.Game, error) {
	data, err := sm.store.Get(ctx, gameKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", sessionID, game.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read game %s: %w", sessionID, err)
	}
	g, err := game.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("game %s: %w", sessionID, err)
	}
	return data, g, nil
}

// GetPlayerGame loads the game the user is currently seated in.
func (sm *SessionManager) GetPlayerGame(ctx context.Context, userID string) (*game.Game, error) {
	sessionID, err := sm.store.Get(ctx, playerKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no game for %s: %w", userID, game.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up game for %s: %w", userID, err)
	}
	return sm.GetGame(ctx, string(sessionID))
}

// IsActivePlayer reports whether the user is seated in a running game. A
// user still marked active whose game is gone is released on the spot.
func (sm *SessionManager) IsActivePlayer(ctx context.Context, userID string) (bool, error) {
	active, err := sm.store.SIsMember(ctx, activePlayersKey, userID)
	if err != nil || !active {
		return active, err
	}

	sessionID, err := sm.store.Get(ctx, playerKey(userID))
	if err == nil {
		_, err = sm.store.Get(ctx, gameKey(string(sessionID)))
	}
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to look up game for %s: %w", userID, err)
	}

	logger.Store.Warn("Releasing %s from game %q, which no longer exists", userID, sessionID)
	if err := sm.store.DeleteAndRemove(ctx, []string{playerKey(userID)}, activePlayersKey, userID); err != nil {
		return false, fmt.Errorf("failed to release %s: %w", userID, err)
	}
	return false, nil
}

// SaveGame overwrites the stored game and refreshes its TTL and both
// player keys. The tick falls back to this when its compare-and-swap keeps
// losing.
func (sm *SessionManager) SaveGame(ctx context.Context, g *game.Game) error {
	data, err := game.Encode(g)
	if err != nil {
		return err
	}
	if err := sm.store.Set(ctx, gameKey(g.ID), data, sm.ttl, playerKeys(g)...); err != nil {
		return fmt.Errorf("failed to save game %s: %w", g.ID, err)
	}
	return nil
}

// saveTick writes a tick's result against old, the bytes the tick loaded.
// Player writes that landed in between are rebased onto g and the write is
// retried; once the retry budget is spent g overwrites the stored game.
func (sm *SessionManager) saveTick(ctx context.Context, old []byte, g *game.Game) error {
	for attempt := 0; attempt < sm.maxRetries; attempt++ {
		data, err := game.Encode(g)
		if err != nil {
			return err
		}
		err = sm.store.CompareAndSwap(ctx, gameKey(g.ID), old, data, sm.ttl, playerKeys(g)...)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s: %w", g.ID, game.ErrNotFound)
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("failed to save game %s: %w", g.ID, err)
		}

		base, err := game.Decode(old)
		if err != nil {
			return fmt.Errorf("game %s: %w", g.ID, err)
		}
		latestData, latest, err := sm.load(ctx, g.ID)
		if err != nil {
			return err
		}
		g.Rebase(base, latest)
		old = latestData
		logger.Store.Debug("Rebased tick of game %s onto a concurrent write (attempt %d/%d)", g.ID, attempt+1, sm.maxRetries)
	}
	logger.Store.Warn("Game %s kept changing during the tick save, overwriting", g.ID)
	return sm.SaveGame(ctx, g)
}

// abandon drops a session whose tick loop hit a fatal fault. With the game
// at hand both players are released and told; without it the stored value
// is deleted and IsActivePlayer releases the players on their next lookup.
func (sm *SessionManager) abandon(ctx context.Context, sessionID string, g *game.Game) error {
	if g == nil {
		if err := sm.store.Delete(ctx, gameKey(sessionID)); err != nil {
			return fmt.Errorf("failed to delete game %s: %w", sessionID, err)
		}
		return nil
	}
	if !g.Finish() {
		return nil
	}
	keys := append([]string{gameKey(sessionID)}, playerKeys(g)...)
	err := sm.store.DeleteAndRemove(ctx, keys, activePlayersKey, g.PlayerIDs()...)
	g.Broadcast(sm.sink, network.MessageTypeError, network.ErrorPayload{Message: "game aborted"})
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", sessionID, err)
	}
	logger.Store.Warn("Game %s aborted, released %v", sessionID, g.PlayerIDs())
	return nil
}

// update runs read, mutate, compare-and-swap until the write lands or the
// retry budget runs out. Errors from mutate other than errUnchanged abort
// without retrying.
func (sm *SessionManager) update(ctx context.Context, sessionID string, mutate func(*game.Game) error) (*game.Game, error) {
	for attempt := 0; attempt < sm.maxRetries; attempt++ {
		if attempt > 0 {
			wait := sm.retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		old, g, err := sm.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := mutate(g); errors.Is(err, errUnchanged) {
			return g, nil
		} else if err != nil {
			return nil, err
		}

		data, err := game.Encode(g)
		if err != nil {
			return nil, err
		}
		err = sm.store.CompareAndSwap(ctx, gameKey(sessionID), old, data, sm.ttl, playerKeys(g)...)
		if err == nil {
			return g, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", sessionID, game.ErrNotFound)
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("failed to write game %s: %w", sessionID, err)
		}
		logger.Store.Debug("Conflict updating game %s (attempt %d/%d)", sessionID, attempt+1, sm.maxRetries)
	}
	return nil, &ConcurrencyError{SessionID: sessionID, Attempts: sm.maxRetries, Err: store.ErrConflict}
}

// UpdatePlayerConnectionStatus records a player's connection. A user that
// is not seated in the game leaves it untouched.
func (sm *SessionManager) UpdatePlayerConnectionStatus(ctx context.Context, sessionID, userID, connectionID string, connected bool) (*game.Game, error) {
	return sm.update(ctx, sessionID, func(g *game.Game) error {
		p, _, ok := g.Player(userID)
		if !ok {
			return errUnchanged
		}
		p.ConnectionID = connectionID
		p.Connected = connected
		return nil
	})
}

// SpawnCard plays a hand card for userID. The unit and the advanced hand
// are committed together; the spawn is then announced to both players and
// the new hand to the owner only.
func (sm *SessionManager) SpawnCard(ctx context.Context, sessionID, userID, cardID string, x, y int) (*game.Unit, error) {
	unitID := uuid.NewString()
	var (
		unit   *game.Unit
		played models.CardInstance
	)
	g, err := sm.update(ctx, sessionID, func(g *game.Game) error {
		var err error
		unit, played, err = g.Spawn(userID, cardID, x, y, unitID)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.Broadcast(sm.sink, network.MessageTypeCardSpawned, network.CardSpawnedPayload{
		UnitID:    unit.ID,
		UserID:    userID,
		CardID:    unit.CardID,
		Level:     unit.Level,
		X:         unit.X,
		Y:         unit.Y,
		Health:    unit.Health,
		MaxHealth: unit.MaxHealth,
	})

	p, _, _ := g.Player(userID)
	refresh := network.RefreshHandPayload{
		PlayerID:    userID,
		CardSpawned: cardInfo(played),
		Elixir:      p.Elixir,
	}
	if next, ok := p.NextCard(); ok {
		info := cardInfo(next)
		refresh.NextCard = &info
	}
	if !p.Reachable() {
		logger.Store.Warn("Player %s has no connection, hand refresh for game %s skipped", userID, sessionID)
	} else if err := sm.sink.Send(p.ConnectionID, network.MessageTypeRefreshHand, refresh); err != nil {
		logger.Store.Warn("Failed to send hand refresh to %s: %v", userID, err)
	}

	logger.Store.Debug("%s spawned %s (%s) at (%d,%d) in game %s", userID, unit.ID, cardID, x, y, sessionID)
	return unit, nil
}

// EndGame deletes a finished session and reports the result. Only the first
// call for a game has any effect.
func (sm *SessionManager) EndGame(ctx context.Context, g *game.Game, winnerID, loserID string) error {
	if !g.Finish() {
		return nil
	}
	payload := network.EndGamePayload{
		WinnerID:         winnerID,
		LoserID:          loserID,
		WinnerTowersLeft: g.Arena.TowersLeft(winnerID),
		LoserTowersLeft:  g.Arena.TowersLeft(loserID),
	}

	keys := append([]string{gameKey(g.ID)}, playerKeys(g)...)
	err := sm.store.DeleteAndRemove(ctx, keys, activePlayersKey, g.PlayerIDs()...)
	if sm.lifecycle != nil {
		sm.lifecycle.Stop(g.ID)
	}
	g.Broadcast(sm.sink, network.MessageTypeEndGame, payload)

	logger.Store.Info("Game %s ended: %s beat %s (%d-%d towers)", g.ID, winnerID, loserID,
		payload.WinnerTowersLeft, payload.LoserTowersLeft)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", g.ID, err)
	}
	return nil
}

// SendGameState sends each reachable player their opening view of g.
func (sm *SessionManager) SendGameState(g *game.Game) {
	for _, p := range g.Players {
		if !p.Reachable() {
			continue
		}
		if err := sm.sink.Send(p.ConnectionID, network.MessageTypeGameState, gameStatePayload(g, p)); err != nil {
			logger.Store.Warn("Error sending game state to %s: %v", p.ID, err)
		}
	}
}

func gameStatePayload(g *game.Game, viewer *game.PlayerState) network.GameStatePayload {
	payload := network.GameStatePayload{
		SessionID: g.ID,
		PlayerID:  viewer.ID,
		Rows:      g.Arena.Rows,
		Cols:      g.Arena.Cols,
		Elixir:    viewer.Elixir,
	}
	for _, t := range g.Arena.LiveTowers() {
		payload.Towers = append(payload.Towers, network.TowerInfo{
			ID:        t.ID,
			Kind:      string(t.TowerKind),
			OwnerID:   t.OwnerID,
			X:         t.X,
			Y:         t.Y,
			Size:      t.Size,
			Health:    t.Health,
			MaxHealth: t.MaxHealth,
		})
	}
	for _, c := range viewer.Hand() {
		payload.Hand = append(payload.Hand, cardInfo(c))
	}
	if next, ok := viewer.NextCard(); ok {
		info := cardInfo(next)
		payload.NextCard = &info
	}
	return payload
}

func cardInfo(c models.CardInstance) network.CardInfo {
	return network.CardInfo{CardID: c.CardID, Name: c.Name, Elixir: c.Elixir, Level: c.Level}
}
