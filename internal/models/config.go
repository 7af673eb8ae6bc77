package models

import "time"

// TowerKind names a tower template.
type TowerKind string

const (
	TowerLeader   TowerKind = "leader"
	TowerGuardian TowerKind = "guardian"
)

// TowerSpec defines the base specifications for a tower type
type TowerSpec struct {
	Name   string `yaml:"name" json:"name"`
	HP     int    `yaml:"hp" json:"hp"`
	Damage int    `yaml:"damage" json:"damage"`
	Range  int    `yaml:"range" json:"range"`
	Size   int    `yaml:"size" json:"size"` // footprint edge, in cells
}

// CardKind separates mobile troops from stationary buildings.
type CardKind string

const (
	CardTroop    CardKind = "troop"
	CardBuilding CardKind = "building"
)

// CardSpec defines the base specifications for a card in the catalog
type CardSpec struct {
	ID     string   `yaml:"id" json:"id"`
	Name   string   `yaml:"name" json:"name"`
	Elixir int      `yaml:"elixir" json:"elixir"`
	HP     int      `yaml:"hp" json:"hp"`
	Damage int      `yaml:"damage" json:"damage"`
	Range  int      `yaml:"range" json:"range"`
	Vision int      `yaml:"vision" json:"vision"`
	Kind   CardKind `yaml:"kind" json:"kind"`
	Air    bool     `yaml:"air" json:"air"`
}

// GameConfig contains the tower templates and the card catalog
type GameConfig struct {
	Towers map[TowerKind]TowerSpec `yaml:"towers"`
	Cards  map[string]CardSpec     `yaml:"cards"`
}

// MatchmakingConfig tunes the matchmaking poll loop.
type MatchmakingConfig struct {
	IdleInterval   time.Duration `yaml:"idle_interval"`
	ActiveInterval time.Duration `yaml:"active_interval"`
	ErrorCooldown  time.Duration `yaml:"error_cooldown"`
}

// ConcurrencyConfig tunes the optimistic write retry policy.
type ConcurrencyConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ArenaConfig sizes the battlefield grid.
type ArenaConfig struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// ServerConfig is the top-level server.yaml document.
type ServerConfig struct {
	ListenAddr   string            `yaml:"listen_addr"`
	RedisAddr    string            `yaml:"redis_addr"`
	RedisDB      int               `yaml:"redis_db"`
	TickInterval time.Duration     `yaml:"tick_interval"`
	SessionTTL   time.Duration     `yaml:"session_ttl"`
	Matchmaking  MatchmakingConfig `yaml:"matchmaking"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency"`
	Arena        ArenaConfig       `yaml:"arena"`
}

// ApplyDefaults fills zero values with the reference settings.
func (c *ServerConfig) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "localhost:8080"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.Matchmaking.IdleInterval <= 0 {
		c.Matchmaking.IdleInterval = time.Second
	}
	if c.Matchmaking.ActiveInterval <= 0 {
		c.Matchmaking.ActiveInterval = 100 * time.Millisecond
	}
	if c.Matchmaking.ErrorCooldown <= 0 {
		c.Matchmaking.ErrorCooldown = 10 * time.Second
	}
	if c.Concurrency.MaxRetries <= 0 {
		c.Concurrency.MaxRetries = 3
	}
	if c.Concurrency.RetryBackoff <= 0 {
		c.Concurrency.RetryBackoff = 50 * time.Millisecond
	}
	if c.Arena.Rows <= 0 {
		c.Arena.Rows = 30
	}
	if c.Arena.Cols <= 0 {
		c.Arena.Cols = 18
	}
}
