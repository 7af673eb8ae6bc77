package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// ErrTemplateNotFound is returned when a tower or card template is missing.
var ErrTemplateNotFound = errors.New("template not found")

// ConfigLoader is responsible for loading game configuration from YAML files
type ConfigLoader struct {
	BasePath string
}

// NewConfigLoader creates a new ConfigLoader with the given base path
func NewConfigLoader(basePath string) *ConfigLoader {
	return &ConfigLoader{
		BasePath: basePath,
	}
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// LoadServerConfig reads config/server.yaml and applies defaults. A missing
// file yields the default configuration.
func (c *ConfigLoader) LoadServerConfig(path string) (*models.ServerConfig, error) {
	if path == "" {
		path = filepath.Join(c.BasePath, "config", "server.yaml")
	}

	var cfg models.ServerConfig
	if err := loadYAML(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse server config %s: %w", path, err)
		}
		logger.Persistence.Warn("Server config %s not found, using defaults", path)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadTowerSpecs loads tower templates from the towers.yaml file
func (c *ConfigLoader) LoadTowerSpecs() (map[models.TowerKind]models.TowerSpec, error) {
	var doc struct {
		Towers map[models.TowerKind]models.TowerSpec `yaml:"towers"`
	}
	if err := loadYAML(filepath.Join(c.BasePath, "config", "towers.yaml"), &doc); err != nil {
		return nil, fmt.Errorf("failed to load towers config file: %w", err)
	}
	return doc.Towers, nil
}

// LoadCardSpecs loads the card catalog from the cards.yaml file
func (c *ConfigLoader) LoadCardSpecs() (map[string]models.CardSpec, error) {
	var doc struct {
		Cards []models.CardSpec `yaml:"cards"`
	}
	if err := loadYAML(filepath.Join(c.BasePath, "config", "cards.yaml"), &doc); err != nil {
		return nil, fmt.Errorf("failed to load cards config file: %w", err)
	}

	cards := make(map[string]models.CardSpec, len(doc.Cards))
	for _, card := range doc.Cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card %q has no id", card.Name)
		}
		if card.Kind == "" {
			card.Kind = models.CardTroop
		}
		cards[card.ID] = card
	}
	return cards, nil
}

// LoadGameConfig loads both tower and card specifications and returns a GameConfig
func (c *ConfigLoader) LoadGameConfig() (*models.GameConfig, error) {
	towers, err := c.LoadTowerSpecs()
	if err != nil {
		return nil, err
	}

	cards, err := c.LoadCardSpecs()
	if err != nil {
		return nil, err
	}

	for _, kind := range []models.TowerKind{models.TowerLeader, models.TowerGuardian} {
		if _, ok := towers[kind]; !ok {
			return nil, fmt.Errorf("%s tower: %w", kind, ErrTemplateNotFound)
		}
	}

	logger.Persistence.Info("Loaded %d tower templates and %d cards", len(towers), len(cards))
	return &models.GameConfig{
		Towers: towers,
		Cards:  cards,
	}, nil
}

// TowerCatalog serves tower templates out of a loaded GameConfig.
type TowerCatalog struct {
	config *models.GameConfig
}

// NewTowerCatalog wraps cfg.
func NewTowerCatalog(cfg *models.GameConfig) *TowerCatalog {
	return &TowerCatalog{config: cfg}
}

// TowerSpec returns the template for kind.
func (t *TowerCatalog) TowerSpec(kind models.TowerKind) (models.TowerSpec, error) {
	spec, ok := t.config.Towers[kind]
	if !ok {
		return models.TowerSpec{}, fmt.Errorf("%s tower: %w", kind, ErrTemplateNotFound)
	}
	if spec.Size <= 0 {
		spec.Size = 1
	}
	return spec, nil
}
