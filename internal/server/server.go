package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/NP-Dat/tcr-arena/internal/game"
	"github.com/NP-Dat/tcr-arena/internal/models"
	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/internal/store"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// Server represents the TCR game server. It owns the websocket
// connections and is the event sink for everything the simulation emits.
type Server struct {
	cfg         *models.ServerConfig
	sessions    *SessionManager
	scheduler   *Scheduler
	matchmaking *MatchmakingManager
	upgrader    websocket.Upgrader

	clients    map[string]*Client
	clientsMux sync.RWMutex
}

// Client represents a connected client
type Client struct {
	ID       string
	UserID   string
	Username string
	Codec    *network.Codec
}

// NewServer creates a new TCR server
func NewServer(cfg *models.ServerConfig, st store.Store, decks DeckProvider, towers TowerProvider) *Server {
	cfg.ApplyDefaults()
	s := &Server{
		cfg:     cfg,
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.sessions = NewSessionManager(st, decks, towers, s, cfg)
	s.scheduler = NewScheduler(s.sessions, cfg.TickInterval)
	s.sessions.SetLifecycle(s.scheduler)
	s.matchmaking = NewMatchmakingManager(st, s.sessions, s, cfg.Matchmaking)
	return s
}

// Sessions returns the session store.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Scheduler returns the tick scheduler.
func (s *Server) Scheduler() *Scheduler { return s.scheduler }

// Matchmaking returns the matchmaking queue.
func (s *Server) Matchmaking() *MatchmakingManager { return s.matchmaking }

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run listens on the configured address and runs the scheduler and the
// matchmaking loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to start server on %s: %w", s.cfg.ListenAddr, err)
	}
	httpServer := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	logger.Server.Info("Server started on %s", listener.Addr())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.scheduler.Run(ctx) })
	eg.Go(func() error { return s.matchmaking.Run(ctx) })
	eg.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		return httpServer.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// Send implements network.EventSink.
func (s *Server) Send(connectionID string, msgType network.MessageType, payload interface{}) error {
	s.clientsMux.RLock()
	client, ok := s.clients[connectionID]
	s.clientsMux.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", connectionID, network.ErrNoConnection)
	}
	return client.Codec.Send(msgType, payload)
}

func (s *Server) closeClients() {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	for id, client := range s.clients {
		client.Codec.Close()
		delete(s.clients, id)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		username = userID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Network.Warn("Websocket upgrade failed for %s: %v", userID, err)
		return
	}

	client := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Codec:    network.NewCodec(conn),
	}
	s.clientsMux.Lock()
	s.clients[client.ID] = client
	s.clientsMux.Unlock()

	s.handleClient(r.Context(), client)
}

// handleClient manages communication with a connected client
func (s *Server) handleClient(ctx context.Context, client *Client) {
	defer s.disconnect(client)
	logger.Server.Info("Client %s connected as %s (%s)", client.ID, client.UserID, client.Username)

	for {
		msg, err := client.Codec.Receive()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Network.Debug("Error receiving message from client %s: %v", client.ID, err)
			}
			return
		}

		if err := s.processMessage(ctx, client, msg); err != nil {
			logger.Server.Warn("Error processing %s from %s: %v", msg.Type, client.UserID, err)
			_ = client.Codec.Send(network.MessageTypeError, network.ErrorPayload{Message: err.Error()})
		}
	}
}

// disconnect drops the connection, leaves the queue and marks the player
// offline in any running game.
func (s *Server) disconnect(client *Client) {
	s.clientsMux.Lock()
	delete(s.clients, client.ID)
	s.clientsMux.Unlock()
	client.Codec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.matchmaking.Dequeue(ctx, client.UserID); err != nil {
		logger.Server.Warn("Failed to dequeue %s on disconnect: %v", client.UserID, err)
	}
	g, err := s.sessions.GetPlayerGame(ctx, client.UserID)
	if err == nil {
		if p, _, ok := g.Player(client.UserID); ok && p.ConnectionID == client.ID {
			if _, err := s.sessions.UpdatePlayerConnectionStatus(ctx, g.ID, client.UserID, "", false); err != nil {
				logger.Server.Warn("Failed to mark %s disconnected in %s: %v", client.UserID, g.ID, err)
			}
		}
	} else if !errors.Is(err, game.ErrNotFound) {
		logger.Server.Warn("Failed to look up game for %s: %v", client.UserID, err)
	}
	logger.Server.Info("Client %s disconnected", client.ID)
}

// processMessage processes a message from a client
func (s *Server) processMessage(ctx context.Context, client *Client, msg *network.Message) error {
	switch msg.Type {
	case network.MessageTypeQueue:
		return s.matchmaking.Enqueue(ctx, client.UserID, client.ID)

	case network.MessageTypeCancel:
		if err := s.matchmaking.Dequeue(ctx, client.UserID); err != nil {
			return err
		}
		return client.Codec.Send(network.MessageTypeQueued, network.QueuedPayload{
			Message: "You have left the matchmaking queue.",
			Time:    time.Now(),
		})

	case network.MessageTypeSpawn:
		var payload network.SpawnPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return err
		}
		g, err := s.sessions.GetPlayerGame(ctx, client.UserID)
		if err != nil {
			return err
		}
		_, err = s.sessions.SpawnCard(ctx, g.ID, client.UserID, payload.CardID, payload.X, payload.Y)
		return err

	case network.MessageTypeReconnect:
		var payload network.ReconnectPayload
		if err := network.ParsePayload(msg, &payload); err != nil {
			return err
		}
		sessionID := payload.SessionID
		if sessionID == "" {
			g, err := s.sessions.GetPlayerGame(ctx, client.UserID)
			if err != nil {
				return err
			}
			sessionID = g.ID
		}
		g, err := s.sessions.UpdatePlayerConnectionStatus(ctx, sessionID, client.UserID, client.ID, true)
		if err != nil {
			return err
		}
		p, _, ok := g.Player(client.UserID)
		if !ok {
			return fmt.Errorf("%s in %s: %w", client.UserID, sessionID, game.ErrPlayerNotInGame)
		}
		logger.Server.Info("Player %s reconnected to %s", client.UserID, sessionID)
		return client.Codec.Send(network.MessageTypeGameState, gameStatePayload(g, p))

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}
