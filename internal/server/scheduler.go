package server

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NP-Dat/tcr-arena/internal/game"
	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// SessionSet is a concurrent set of session ids.
type SessionSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSessionSet creates an empty set.
func NewSessionSet() *SessionSet {
	return &SessionSet{ids: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *SessionSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s *SessionSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Contains reports whether id is in the set.
func (s *SessionSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns the ids in sorted order.
func (s *SessionSet) Snapshot() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of ids.
func (s *SessionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Scheduler drives every active session on one shared ticker.
type Scheduler struct {
	sessions *SessionManager
	engine   *game.Engine
	active   *SessionSet
	interval time.Duration
	workers  int
}

// NewScheduler creates a scheduler over sessions. Units are resolved
// through a combat engine that ends games via sessions.
func NewScheduler(sessions *SessionManager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Scheduler{
		sessions: sessions,
		engine:   game.NewEngine(game.NewCombat(sessions.sink, sessions)),
		active:   NewSessionSet(),
		interval: interval,
		workers:  runtime.GOMAXPROCS(0),
	}
}

// Start adds a session to the tick.
func (s *Scheduler) Start(sessionID string) {
	if s.active.Add(sessionID) {
		logger.Scheduler.Info("Session %s started", sessionID)
	}
}

// Stop removes a session. A tick already running for it finishes, but
// later ticks skip it.
func (s *Scheduler) Stop(sessionID string) {
	if s.active.Remove(sessionID) {
		logger.Scheduler.Info("Session %s stopped", sessionID)
	}
}

// IsActive reports whether the session is ticking.
func (s *Scheduler) IsActive(sessionID string) bool {
	return s.active.Contains(sessionID)
}

// Active returns the ticking session ids.
func (s *Scheduler) Active() []string {
	return s.active.Snapshot()
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Scheduler.Info("Tick scheduler running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every active session in parallel and waits for all of them.
func (s *Scheduler) Tick(ctx context.Context) {
	var eg errgroup.Group
	for _, id := range s.active.Snapshot() {
		id := id
		eg.Go(func() error {
			s.tickSession(ctx, id)
			return nil
		})
	}
	_ = eg.Wait()
}

func (s *Scheduler) tickSession(ctx context.Context, sessionID string) {
	var g *game.Game
	defer func() {
		if r := recover(); r != nil {
			logger.Scheduler.Error("Panic in session %s, stopping session: %v", sessionID, r)
			s.abandon(ctx, sessionID, g)
		}
	}()

	if !s.IsActive(sessionID) {
		return
	}
	old, g, err := s.sessions.load(ctx, sessionID)
	if err != nil {
		logger.Scheduler.Error("Failed to load session %s, stopping session: %v", sessionID, err)
		if errors.Is(err, game.ErrNotFound) || errors.Is(err, game.ErrCorruptData) {
			s.abandon(ctx, sessionID, nil)
		} else {
			s.Stop(sessionID)
		}
		return
	}

	units := append(g.Arena.LiveUnits(), g.Arena.LiveTowers()...)
	var eg errgroup.Group
	eg.SetLimit(s.workers)
	for _, u := range units {
		u := u
		eg.Go(func() error {
			s.stepUnit(ctx, g, u)
			return nil
		})
	}
	_ = eg.Wait()

	if g.Finished() {
		return
	}

	s.regenerateElixir(g)
	if err := s.sessions.saveTick(ctx, old, g); err != nil {
		logger.Scheduler.Error("Failed to save session %s, stopping session: %v", sessionID, err)
		s.abandon(ctx, sessionID, g)
	}
}

// abandon stops a faulted session and releases its players.
func (s *Scheduler) abandon(ctx context.Context, sessionID string, g *game.Game) {
	s.Stop(sessionID)
	if err := s.sessions.abandon(ctx, sessionID, g); err != nil {
		logger.Scheduler.Error("Failed to clean up session %s: %v", sessionID, err)
	}
}

func (s *Scheduler) stepUnit(ctx context.Context, g *game.Game, u *game.Unit) {
	defer func() {
		if r := recover(); r != nil {
			logger.Scheduler.Error("Panic stepping %s in session %s: %v", u.ID, g.ID, r)
		}
	}()
	if err := s.engine.Step(ctx, g, u); err != nil {
		logger.Scheduler.Error("Error stepping %s in session %s: %v", u.ID, g.ID, err)
	}
}

func (s *Scheduler) regenerateElixir(g *game.Game) {
	for _, p := range g.Players {
		p.AddElixir(s.interval.Seconds())
		if !p.Reachable() {
			logger.Scheduler.Warn("Player %s in session %s has no connection, elixir update skipped", p.ID, g.ID)
			continue
		}
		payload := network.NewElixirPayload{ConnectionID: p.ConnectionID, Elixir: p.Elixir}
		if err := s.sessions.sink.Send(p.ConnectionID, network.MessageTypeNewElixir, payload); err != nil {
			logger.Scheduler.Warn("Failed to send elixir to %s: %v", p.ID, err)
		}
	}
}
