package client

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NP-Dat/tcr-arena/internal/network"
)

// SetupDefaultHandlers sets up the default message handlers for the client
func (c *Client) SetupDefaultHandlers() {
	c.RegisterHandler(network.MessageTypeQueued, func(msg *network.Message) error {
		var payload network.QueuedPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse queue event: %w", err)
		}
		fmt.Fprintf(c.out, "[%s] %s\n", payload.Time.Format(time.RFC3339), payload.Message)
		return nil
	})

	c.RegisterHandler(network.MessageTypeMatchFound, func(msg *network.Message) error {
		var payload network.MatchFoundPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse match found: %w", err)
		}
		c.updateState(func(v *View) {
			*v = View{SessionID: payload.SessionID, OpponentID: payload.OpponentID}
		})
		fmt.Fprintf(c.out, "\nMatch found!\nGame ID: %s\nOpponent: %s\n", payload.SessionID, payload.OpponentID)
		return nil
	})

	c.RegisterHandler(network.MessageTypeGameState, func(msg *network.Message) error {
		var payload network.GameStatePayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse game state: %w", err)
		}
		c.updateState(func(v *View) {
			v.SessionID = payload.SessionID
			v.Elixir = payload.Elixir
			v.Hand = payload.Hand
			v.NextCard = payload.NextCard
		})
		printGameState(c.out, &payload, c.UserID)
		return nil
	})

	c.RegisterHandler(network.MessageTypeCardSpawned, func(msg *network.Message) error {
		var payload network.CardSpawnedPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse spawn: %w", err)
		}
		fmt.Fprintf(c.out, "%s spawned %s (lvl %d) at (%d,%d) %s\n", c.who(payload.UserID), payload.CardID,
			payload.Level, payload.X, payload.Y, createHealthBar(payload.Health, payload.MaxHealth, 10))
		return nil
	})

	c.RegisterHandler(network.MessageTypeTroopMoved, func(msg *network.Message) error {
		var payload network.TroopMovedPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse move: %w", err)
		}
		fmt.Fprintf(c.out, "  %s %s -> (%d,%d)\n", c.who(payload.UserID), shortID(payload.UnitID), payload.X, payload.Y)
		return nil
	})

	c.RegisterHandler(network.MessageTypeUnitDamaged, func(msg *network.Message) error {
		var payload network.UnitDamagedPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse damage: %w", err)
		}
		fmt.Fprintf(c.out, "  %s hits %s for %d %s\n", shortID(payload.AttackerID), shortID(payload.TargetID),
			payload.Damage, createHealthBar(payload.Health, payload.MaxHealth, 10))
		return nil
	})

	c.RegisterHandler(network.MessageTypeUnitKilled, func(msg *network.Message) error {
		var payload network.UnitKilledPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse kill: %w", err)
		}
		fmt.Fprintf(c.out, "  %s destroyed %s\n", shortID(payload.AttackerID), shortID(payload.TargetID))
		return nil
	})

	c.RegisterHandler(network.MessageTypeNewElixir, func(msg *network.Message) error {
		var payload network.NewElixirPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse elixir: %w", err)
		}
		c.updateState(func(v *View) { v.Elixir = payload.Elixir })
		return nil
	})

	c.RegisterHandler(network.MessageTypeRefreshHand, func(msg *network.Message) error {
		var payload network.RefreshHandPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse hand: %w", err)
		}
		c.updateState(func(v *View) {
			v.Elixir = payload.Elixir
			for i, card := range v.Hand {
				if card.CardID == payload.CardSpawned.CardID && v.NextCard != nil {
					v.Hand[i] = *v.NextCard
					break
				}
			}
			v.NextCard = payload.NextCard
		})
		printHand(c.out, c.State())
		return nil
	})

	c.RegisterHandler(network.MessageTypeEndGame, func(msg *network.Message) error {
		var payload network.EndGamePayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse end game: %w", err)
		}
		fmt.Fprintln(c.out, "\nGame Over!")
		if payload.WinnerID == c.UserID {
			fmt.Fprintln(c.out, "You win!")
		} else {
			fmt.Fprintf(c.out, "Winner: %s\n", payload.WinnerID)
		}
		fmt.Fprintf(c.out, "Towers left: %d - %d\n", payload.WinnerTowersLeft, payload.LoserTowersLeft)
		c.updateState(func(v *View) { *v = View{} })
		return nil
	})

	c.RegisterHandler(network.MessageTypeError, func(msg *network.Message) error {
		var payload network.ErrorPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return fmt.Errorf("failed to parse error: %w", err)
		}
		fmt.Fprintf(c.out, "Error from server: %s\n", payload.Message)
		return nil
	})
}

func (c *Client) who(userID string) string {
	if userID == c.UserID {
		return "You"
	}
	return "Opponent"
}

func shortID(id string) string {
	if len(id) > 8 && !strings.Contains(id, "_") {
		return id[:8]
	}
	return id
}

// printGameState prints the opening view of a match
func printGameState(w io.Writer, state *network.GameStatePayload, userID string) {
	fmt.Fprintf(w, "\n====== ARENA %dx%d ======\n", state.Cols, state.Rows)

	towers := append([]network.TowerInfo(nil), state.Towers...)
	sort.Slice(towers, func(i, j int) bool {
		if towers[i].OwnerID != towers[j].OwnerID {
			return towers[i].OwnerID == userID
		}
		return towers[i].ID < towers[j].ID
	})

	fmt.Fprintln(w, "TOWERS:")
	for _, t := range towers {
		side := "opponent"
		if t.OwnerID == userID {
			side = "yours"
		}
		fmt.Fprintf(w, "  %-9s %-8s (%2d,%2d) %s %5d/%-5d\n", side, t.Kind, t.X, t.Y,
			createHealthBar(t.Health, t.MaxHealth, 10), t.Health, t.MaxHealth)
	}
	fmt.Fprintln(w, strings.Repeat("-", 40))
	printHand(w, View{Elixir: state.Elixir, Hand: state.Hand, NextCard: state.NextCard})
}

func printHand(w io.Writer, v View) {
	fmt.Fprintf(w, "Elixir: %.1f\nHand:", v.Elixir)
	for _, card := range v.Hand {
		fmt.Fprintf(w, " %s(%d)", card.CardID, card.Elixir)
	}
	if v.NextCard != nil {
		fmt.Fprintf(w, "  | next: %s", v.NextCard.CardID)
	}
	fmt.Fprintln(w)
}

// createHealthBar renders hp/maxHP as a fixed-width bar
func createHealthBar(hp, maxHP, length int) string {
	percent := 0.0
	if maxHP > 0 {
		percent = min(max(float64(hp)/float64(maxHP), 0), 1)
	}

	filledLength := int(percent * float64(length))
	emptyLength := length - filledLength

	fill := "!"
	if percent > 0.7 {
		fill = "#"
	} else if percent > 0.3 {
		fill = "="
	}
	return fmt.Sprintf("[%s%s]", strings.Repeat(fill, filledLength), strings.Repeat("-", emptyLength))
}

// ParseCommand parses and handles client commands
func (c *Client) ParseCommand(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "queue", "join":
		return c.JoinQueue()

	case "cancel":
		return c.LeaveQueue()

	case "spawn":
		if len(args) != 3 {
			return fmt.Errorf("usage: spawn <card_id> <x> <y>")
		}
		x, errX := strconv.Atoi(args[1])
		y, errY := strconv.Atoi(args[2])
		if errX != nil || errY != nil {
			return fmt.Errorf("coordinates must be integers")
		}
		return c.Spawn(args[0], x, y)

	case "reconnect":
		sessionID := ""
		if len(args) > 0 {
			sessionID = args[0]
		}
		return c.Reconnect(sessionID)

	case "hand":
		printHand(c.out, c.State())
		return nil

	case "quit":
		return c.Disconnect()

	case "help":
		fmt.Fprintln(c.out, "\nAvailable Commands:")
		fmt.Fprintln(c.out, "  queue - Join the matchmaking queue")
		fmt.Fprintln(c.out, "  cancel - Leave the matchmaking queue")
		fmt.Fprintln(c.out, "  spawn <card_id> <x> <y> - Play a hand card on your half")
		fmt.Fprintln(c.out, "  reconnect [session_id] - Rejoin a running game")
		fmt.Fprintln(c.out, "  hand - Show your hand and elixir")
		fmt.Fprintln(c.out, "  quit - Disconnect from the server")
		fmt.Fprintln(c.out, "  help - Display this help message")
		return nil

	default:
		return fmt.Errorf("unknown command %q, type help", command)
	}
}
