package models

// PlayerData represents the data structure for JSON persistence
type PlayerData struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	EXP      int      `json:"exp"`
	Level    int      `json:"level"`
	Deck     []string `json:"deck"` // catalog card ids
}

// CardInstance is a player's copy of a catalog card, with level-scaled stats.
type CardInstance struct {
	ID     string   `msgpack:"id" json:"id"`
	CardID string   `msgpack:"card_id" json:"card_id"`
	Name   string   `msgpack:"name" json:"name"`
	Level  int      `msgpack:"level" json:"level"`
	Elixir int      `msgpack:"elixir" json:"elixir"`
	HP     int      `msgpack:"hp" json:"hp"`
	Damage int      `msgpack:"damage" json:"damage"`
	Range  int      `msgpack:"range" json:"range"`
	Vision int      `msgpack:"vision" json:"vision"`
	Kind   CardKind `msgpack:"kind" json:"kind"`
	Air    bool     `msgpack:"air" json:"air"`
}

// NewCardInstance scales a catalog card to the owner's level.
func NewCardInstance(id string, spec CardSpec, level int) CardInstance {
	if level < 1 {
		level = 1
	}
	boost := CalculateStatBoost(level)
	return CardInstance{
		ID:     id,
		CardID: spec.ID,
		Name:   spec.Name,
		Level:  level,
		Elixir: spec.Elixir,
		HP:     int(float64(spec.HP) * boost),
		Damage: int(float64(spec.Damage) * boost),
		Range:  spec.Range,
		Vision: spec.Vision,
		Kind:   spec.Kind,
		Air:    spec.Air,
	}
}

// AverageElixirCost returns the mean elixir cost of a deck, 0 for an empty deck.
func AverageElixirCost(cards []CardInstance) float64 {
	if len(cards) == 0 {
		return 0
	}
	total := 0
	for _, c := range cards {
		total += c.Elixir
	}
	return float64(total) / float64(len(cards))
}

// CalculateStatBoost returns the multiplier for stats based on the player's level
// Level N Stat = BaseStat * (1.1 ^ (N-1))
func CalculateStatBoost(level int) float64 {
	if level <= 1 {
		return 1.0
	}

	multiplier := 1.0
	for i := 0; i < level-1; i++ {
		multiplier *= 1.1
	}

	return multiplier
}
