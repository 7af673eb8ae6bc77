package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/internal/store"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

const (
	queueKey       = "matchmaking:queue"
	queueActiveKey = "matchmaking:active"
)

// ErrAlreadyQueued is returned when a user is already waiting for a match.
var ErrAlreadyQueued = errors.New("already queued")

type queueItem struct {
	UserID       string `msgpack:"user_id"`
	ConnectionID string `msgpack:"conn_id"`
}

// MatchmakingManager pairs waiting players in FIFO order. The queue list
// holds requests; the active set is the liveness signal, so cancelling
// only leaves the set and stale list entries are pruned while matching.
type MatchmakingManager struct {
	store    store.Store
	sessions *SessionManager
	sink     network.EventSink
	cfg      models.MatchmakingConfig
	newID    func() string
}

// NewMatchmakingManager creates a new matchmaking manager
func NewMatchmakingManager(st store.Store, sessions *SessionManager, sink network.EventSink, cfg models.MatchmakingConfig) *MatchmakingManager {
	return &MatchmakingManager{
		store:    st,
		sessions: sessions,
		sink:     sink,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
}

// Enqueue adds a user to the matchmaking queue. A user already in a game
// is told so over their connection instead.
func (mm *MatchmakingManager) Enqueue(ctx context.Context, userID, connectionID string) error {
	inGame, err := mm.sessions.IsActivePlayer(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check active players: %w", err)
	}
	if inGame {
		mm.send(connectionID, network.MessageTypeError, network.ErrorPayload{Message: "already in an active game"})
		return nil
	}

	added, err := mm.store.SAdd(ctx, queueActiveKey, userID)
	if err != nil {
		return fmt.Errorf("failed to mark %s queued: %w", userID, err)
	}
	if !added {
		return fmt.Errorf("%s: %w", userID, ErrAlreadyQueued)
	}

	data, err := msgpack.Marshal(queueItem{UserID: userID, ConnectionID: connectionID})
	if err == nil {
		err = mm.store.RPush(ctx, queueKey, data)
	}
	if err != nil {
		if rmErr := mm.store.SRem(ctx, queueActiveKey, userID); rmErr != nil {
			logger.Matchmaking.Error("Failed to roll back queue entry for %s: %v", userID, rmErr)
		}
		return fmt.Errorf("failed to queue %s: %w", userID, err)
	}

	logger.Matchmaking.Info("Player %s joined the queue", userID)
	mm.send(connectionID, network.MessageTypeQueued, network.QueuedPayload{
		Message: "You have been added to the matchmaking queue. Waiting for opponent...",
		Time:    time.Now(),
	})
	return nil
}

// Dequeue cancels a user's request. Their list entry is dropped when the
// matcher next reaches it.
func (mm *MatchmakingManager) Dequeue(ctx context.Context, userID string) error {
	if err := mm.store.SRem(ctx, queueActiveKey, userID); err != nil {
		return fmt.Errorf("failed to dequeue %s: %w", userID, err)
	}
	logger.Matchmaking.Debug("Player %s left the queue", userID)
	return nil
}

// IsQueued reports whether the user is waiting for a match.
func (mm *MatchmakingManager) IsQueued(ctx context.Context, userID string) (bool, error) {
	return mm.store.SIsMember(ctx, queueActiveKey, userID)
}

// Run polls the queue until ctx is cancelled.
func (mm *MatchmakingManager) Run(ctx context.Context) error {
	logger.Matchmaking.Info("Matchmaking loop started")
	for {
		delay := mm.cfg.IdleInterval
		matched, err := mm.matchOnce(ctx)
		switch {
		case err != nil:
			logger.Matchmaking.Error("Error during matchmaking, cooling down for %s: %v", mm.cfg.ErrorCooldown, err)
			delay = mm.cfg.ErrorCooldown
		case matched:
			delay = mm.cfg.ActiveInterval
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// matchOnce pops at most one pair off the queue. It reports whether the
// queue had a pair to look at.
func (mm *MatchmakingManager) matchOnce(ctx context.Context) (bool, error) {
	n, err := mm.store.LLen(ctx, queueKey)
	if err != nil || n < 2 {
		return false, err
	}

	first, err := mm.pop(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	second, err := mm.pop(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, mm.pushFront(ctx, first)
	}
	if err != nil {
		return false, errors.Join(err, mm.pushFront(ctx, first))
	}

	if first.UserID == second.UserID {
		// Re-queued after a cancel: keep the newer request only.
		return true, mm.pushFront(ctx, second)
	}

	firstActive, err := mm.store.SIsMember(ctx, queueActiveKey, first.UserID)
	if err != nil {
		return false, errors.Join(err, mm.pushFront(ctx, second), mm.pushFront(ctx, first))
	}
	secondActive, err := mm.store.SIsMember(ctx, queueActiveKey, second.UserID)
	if err != nil {
		return false, errors.Join(err, mm.pushFront(ctx, second), mm.pushFront(ctx, first))
	}

	switch {
	case firstActive && secondActive:
		return true, mm.startGame(ctx, first, second)
	case firstActive:
		logger.Matchmaking.Debug("Dropping stale queue entry for %s", second.UserID)
		return true, errors.Join(mm.pushFront(ctx, first), mm.store.SRem(ctx, queueActiveKey, second.UserID))
	case secondActive:
		logger.Matchmaking.Debug("Dropping stale queue entry for %s", first.UserID)
		return true, errors.Join(mm.pushFront(ctx, second), mm.store.SRem(ctx, queueActiveKey, first.UserID))
	default:
		logger.Matchmaking.Debug("Dropping stale queue entries for %s and %s", first.UserID, second.UserID)
		return true, nil
	}
}

func (mm *MatchmakingManager) startGame(ctx context.Context, first, second queueItem) error {
	sessionID := mm.newID()
	g, err := mm.sessions.CreateNewGame(ctx, sessionID, []Seat{
		{UserID: first.UserID, ConnectionID: first.ConnectionID},
		{UserID: second.UserID, ConnectionID: second.ConnectionID},
	})
	if err != nil {
		return errors.Join(
			fmt.Errorf("failed to create game for %s and %s: %w", first.UserID, second.UserID, err),
			mm.pushFront(ctx, second),
			mm.pushFront(ctx, first),
		)
	}
	if err := mm.store.SRem(ctx, queueActiveKey, first.UserID, second.UserID); err != nil {
		logger.Matchmaking.Warn("Failed to clear queue membership for game %s: %v", sessionID, err)
	}

	logger.Matchmaking.Info("Starting game %s between %s and %s", sessionID, first.UserID, second.UserID)
	mm.send(first.ConnectionID, network.MessageTypeMatchFound, network.MatchFoundPayload{
		SessionID: sessionID, UserID: first.UserID, OpponentID: second.UserID,
	})
	mm.send(second.ConnectionID, network.MessageTypeMatchFound, network.MatchFoundPayload{
		SessionID: sessionID, UserID: second.UserID, OpponentID: first.UserID,
	})
	mm.sessions.SendGameState(g)
	return nil
}

func (mm *MatchmakingManager) pop(ctx context.Context) (queueItem, error) {
	for {
		data, err := mm.store.LPop(ctx, queueKey)
		if err != nil {
			return queueItem{}, err
		}
		var item queueItem
		if err := msgpack.Unmarshal(data, &item); err != nil || item.UserID == "" {
			logger.Matchmaking.Warn("Discarding unreadable queue entry: %v", err)
			continue
		}
		return item, nil
	}
}

func (mm *MatchmakingManager) pushFront(ctx context.Context, item queueItem) error {
	data, err := msgpack.Marshal(item)
	if err != nil {
		return err
	}
	return mm.store.LPush(ctx, queueKey, data)
}

func (mm *MatchmakingManager) send(connectionID string, msgType network.MessageType, payload interface{}) {
	if connectionID == "" {
		return
	}
	if err := mm.sink.Send(connectionID, msgType, payload); err != nil {
		logger.Matchmaking.Warn("Error sending %s to %s: %v", msgType, connectionID, err)
	}
}
