package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NP-Dat/tcr-arena/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const towersYAML = `towers:
  leader:
    name: Leader
    hp: 4000
    damage: 90
    range: 7
    size: 4
  guardian:
    name: Guardian
    hp: 2500
    damage: 75
    range: 6
    size: 3
`

const cardsYAML = `cards:
  - id: knight
    name: Knight
    elixir: 3
    hp: 1000
    damage: 100
    range: 1
    vision: 5
  - id: minions
    name: Minions
    elixir: 3
    hp: 200
    damage: 80
    range: 2
    vision: 5
    air: true
  - id: cannon
    name: Cannon
    elixir: 3
    hp: 800
    damage: 120
    range: 5
    kind: building
`

func newBase(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "towers.yaml"), towersYAML)
	writeFile(t, filepath.Join(base, "config", "cards.yaml"), cardsYAML)
	return base
}

func TestLoadServerConfig(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "server.yaml")
	writeFile(t, path, `listen_addr: ":9000"
tick_interval: 250ms
matchmaking:
  idle_interval: 2s
concurrency:
  max_retries: 5
`)

	cfg, err := NewConfigLoader(base).LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Matchmaking.IdleInterval != 2*time.Second || cfg.Matchmaking.ErrorCooldown != 10*time.Second {
		t.Fatalf("matchmaking = %+v", cfg.Matchmaking)
	}
	if cfg.Concurrency.MaxRetries != 5 || cfg.Concurrency.RetryBackoff != 50*time.Millisecond {
		t.Fatalf("concurrency = %+v", cfg.Concurrency)
	}
	if cfg.Arena.Rows != 30 || cfg.Arena.Cols != 18 || cfg.SessionTTL != time.Hour {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	cfg, err := NewConfigLoader(t.TempDir()).LoadServerConfig("")
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.ListenAddr != "localhost:8080" || cfg.TickInterval != 500*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadServerConfigInvalid(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "server.yaml")
	writeFile(t, path, "tick_interval: [not, a, duration]\n")
	if _, err := NewConfigLoader(base).LoadServerConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadGameConfig(t *testing.T) {
	cfg, err := NewConfigLoader(newBase(t)).LoadGameConfig()
	if err != nil {
		t.Fatalf("LoadGameConfig: %v", err)
	}
	if len(cfg.Cards) != 3 || len(cfg.Towers) != 2 {
		t.Fatalf("cards = %d, towers = %d", len(cfg.Cards), len(cfg.Towers))
	}
	if c := cfg.Cards["knight"]; c.Kind != models.CardTroop || c.Elixir != 3 {
		t.Fatalf("knight = %+v", c)
	}
	if c := cfg.Cards["minions"]; !c.Air {
		t.Fatalf("minions = %+v", c)
	}
	if c := cfg.Cards["cannon"]; c.Kind != models.CardBuilding {
		t.Fatalf("cannon = %+v", c)
	}

	spec, err := NewTowerCatalog(cfg).TowerSpec(models.TowerLeader)
	if err != nil || spec.HP != 4000 || spec.Size != 4 {
		t.Fatalf("leader = %+v, %v", spec, err)
	}
	if _, err := NewTowerCatalog(cfg).TowerSpec("king"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("unknown tower err = %v", err)
	}
}

func TestLoadGameConfigMissingTower(t *testing.T) {
	base := newBase(t)
	writeFile(t, filepath.Join(base, "config", "towers.yaml"), "towers:\n  leader:\n    hp: 10\n")
	if _, err := NewConfigLoader(base).LoadGameConfig(); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestPlayerStoreDeck(t *testing.T) {
	base := newBase(t)
	cfg, err := NewConfigLoader(base).LoadGameConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := SavePlayerData(base, &models.PlayerData{
		ID:    "alice",
		Level: 3,
		Deck:  []string{"knight", "minions", "cannon"},
	}); err != nil {
		t.Fatalf("SavePlayerData: %v", err)
	}

	store := NewPlayerStore(base, cfg.Cards)
	reversed := false
	store.shuffle = func(n int, swap func(i, j int)) {
		reversed = true
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	name, deck, err := store.Deck("alice")
	if err != nil {
		t.Fatalf("Deck: %v", err)
	}
	if name != "alice" || !reversed {
		t.Fatalf("name = %q, shuffled = %v", name, reversed)
	}
	if len(deck) != 3 || deck[0].CardID != "cannon" || deck[2].CardID != "knight" {
		t.Fatalf("deck = %+v", deck)
	}
	if k := deck[2]; k.Level != 3 || k.HP != int(1000*models.CalculateStatBoost(3)) || k.ID == "" {
		t.Fatalf("knight instance = %+v", k)
	}
	if deck[0].ID == deck[1].ID {
		t.Fatal("card instances share an id")
	}
}

func TestPlayerStoreErrors(t *testing.T) {
	base := newBase(t)
	cfg, err := NewConfigLoader(base).LoadGameConfig()
	if err != nil {
		t.Fatal(err)
	}
	store := NewPlayerStore(base, cfg.Cards)

	if _, _, err := store.Deck("nobody"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("missing player err = %v", err)
	}

	if err := SavePlayerData(base, &models.PlayerData{ID: "bob", Deck: []string{"knight", "pekka"}}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Deck("bob"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("unknown card err = %v", err)
	}
}
