package network

import "time"

// MessageType defines the types of messages that can be exchanged
type MessageType string

// Define message types for client-server communication
const (
	// Client to Server message types
	MessageTypeQueue     MessageType = "queue"
	MessageTypeCancel    MessageType = "cancel"
	MessageTypeSpawn     MessageType = "spawn"
	MessageTypeReconnect MessageType = "reconnect"

	// Server to Client message types
	MessageTypeQueued      MessageType = "queued"
	MessageTypeMatchFound  MessageType = "match_found"
	MessageTypeGameState   MessageType = "game_state"
	MessageTypeCardSpawned MessageType = "card_spawned"
	MessageTypeTroopMoved  MessageType = "troop_moved"
	MessageTypeUnitDamaged MessageType = "unit_damaged"
	MessageTypeUnitKilled  MessageType = "unit_killed"
	MessageTypeEndGame     MessageType = "end_game"
	MessageTypeNewElixir   MessageType = "new_elixir"
	MessageTypeRefreshHand MessageType = "refresh_hand"
	MessageTypeError       MessageType = "error"
)

// Message is the base structure for all network messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// ----- Client to Server Message Payloads -----

// SpawnPayload asks the server to play a hand card at a grid cell.
type SpawnPayload struct {
	CardID string `json:"cardId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// ReconnectPayload reattaches a connection to a running session.
type ReconnectPayload struct {
	SessionID string `json:"sessionId"`
}

// ----- Server to Client Message Payloads -----

// QueuedPayload acknowledges a matchmaking request.
type QueuedPayload struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// MatchFoundPayload is sent to each paired player.
type MatchFoundPayload struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	OpponentID string `json:"opponentId"`
}

// CardSpawnedPayload announces a new unit on the arena.
type CardSpawnedPayload struct {
	UnitID    string `json:"unitId"`
	UserID    string `json:"userId"`
	CardID    string `json:"cardId"`
	Level     int    `json:"level"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Health    int    `json:"health"`
	MaxHealth int    `json:"maxHealth"`
}

// TroopMovedPayload reports a single movement step.
type TroopMovedPayload struct {
	UnitID string `json:"unitId"`
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	State  string `json:"state"`
}

// UnitDamagedPayload reports an applied attack.
type UnitDamagedPayload struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
	Damage     int    `json:"damage"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"maxHealth"`
}

// UnitKilledPayload reports a death.
type UnitKilledPayload struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
}

// EndGamePayload closes a session.
type EndGamePayload struct {
	WinnerID         string `json:"winnerId"`
	LoserID          string `json:"loserId"`
	WinnerTowersLeft int    `json:"winnerTowersLeft"`
	LoserTowersLeft  int    `json:"loserTowersLeft"`
}

// NewElixirPayload is addressed to one player.
type NewElixirPayload struct {
	ConnectionID string  `json:"connectionId"`
	Elixir       float64 `json:"elixir"`
}

// CardInfo is the client view of a card instance.
type CardInfo struct {
	CardID string `json:"cardId"`
	Name   string `json:"name"`
	Elixir int    `json:"elixir"`
	Level  int    `json:"level"`
}

// RefreshHandPayload is addressed to the player that spawned a card.
type RefreshHandPayload struct {
	PlayerID    string    `json:"playerId"`
	CardSpawned CardInfo  `json:"cardSpawned"`
	NextCard    *CardInfo `json:"nextCard,omitempty"`
	Elixir      float64   `json:"elixir"`
}

// TowerInfo contains information about a tower for state snapshots
type TowerInfo struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	OwnerID   string `json:"ownerId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Size      int    `json:"size"`
	Health    int    `json:"health"`
	MaxHealth int    `json:"maxHealth"`
}

// GameStatePayload is sent to each player when a match starts.
type GameStatePayload struct {
	SessionID string      `json:"sessionId"`
	PlayerID  string      `json:"playerId"`
	Rows      int         `json:"rows"`
	Cols      int         `json:"cols"`
	Towers    []TowerInfo `json:"towers"`
	Hand      []CardInfo  `json:"hand"`
	NextCard  *CardInfo   `json:"nextCard,omitempty"`
	Elixir    float64     `json:"elixir"`
}

// ErrorPayload represents an error message
type ErrorPayload struct {
	Message string `json:"message"`
}
