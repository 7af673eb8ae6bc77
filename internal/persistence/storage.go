package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/NP-Dat/tcr-arena/internal/models"
)

// ErrPlayerNotFound is returned when no data file exists for a user id.
var ErrPlayerNotFound = errors.New("player not found")

// SavePlayerData saves player data to a JSON file in the players directory
func SavePlayerData(basePath string, playerData *models.PlayerData) error {
	dirPath := filepath.Join(basePath, "data", "players")
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create players directory: %w", err)
	}

	filePath := filepath.Join(dirPath, fmt.Sprintf("%s.json", playerData.ID))

	data, err := json.MarshalIndent(playerData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode player data: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to save player data file: %w", err)
	}

	return nil
}

// LoadPlayerData loads a player's data from their JSON file
func LoadPlayerData(basePath string, userID string) (*models.PlayerData, error) {
	filePath := filepath.Join(basePath, "data", "players", fmt.Sprintf("%s.json", userID))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", userID, ErrPlayerNotFound)
		}
		return nil, fmt.Errorf("failed to read player data file: %w", err)
	}

	var playerData models.PlayerData
	if err := json.Unmarshal(data, &playerData); err != nil {
		return nil, fmt.Errorf("failed to parse player data file: %w", err)
	}
	if playerData.ID == "" {
		playerData.ID = userID
	}

	return &playerData, nil
}

// PlayerStore serves decks and display names from the players directory.
type PlayerStore struct {
	basePath string
	cards    map[string]models.CardSpec
	shuffle  func(n int, swap func(i, j int))
}

// NewPlayerStore creates a store reading <basePath>/data/players.
func NewPlayerStore(basePath string, cards map[string]models.CardSpec) *PlayerStore {
	return &PlayerStore{
		basePath: basePath,
		cards:    cards,
		shuffle:  rand.Shuffle,
	}
}

// Deck returns the user's display name and a shuffled copy of their deck.
func (p *PlayerStore) Deck(userID string) (string, []models.CardInstance, error) {
	data, err := LoadPlayerData(p.basePath, userID)
	if err != nil {
		return "", nil, err
	}

	deck := make([]models.CardInstance, 0, len(data.Deck))
	for _, cardID := range data.Deck {
		spec, ok := p.cards[cardID]
		if !ok {
			return "", nil, fmt.Errorf("card %s in deck of %s: %w", cardID, userID, ErrTemplateNotFound)
		}
		deck = append(deck, models.NewCardInstance(uuid.NewString(), spec, data.Level))
	}
	p.shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	name := data.Username
	if name == "" {
		name = userID
	}
	return name, deck, nil
}
