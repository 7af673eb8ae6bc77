package client

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/NP-Dat/tcr-arena/internal/network"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// ErrNotConnected is returned when sending without a live connection.
var ErrNotConnected = errors.New("not connected to server")

// Client represents the TCR game client
type Client struct {
	ServerURL string
	UserID    string
	Username  string

	codec           *network.Codec
	messageHandlers map[network.MessageType]MessageHandler
	handlersMutex   sync.RWMutex
	out             io.Writer

	stateMu   sync.RWMutex
	connected bool
	state     View

	disconnectChan chan struct{}
	closeOnce      sync.Once
}

// View is what the client knows about its current match.
type View struct {
	SessionID  string
	OpponentID string
	Elixir     float64
	Hand       []network.CardInfo
	NextCard   *network.CardInfo
}

// MessageHandler is a function that handles a specific type of message
type MessageHandler func(msg *network.Message) error

// NewClient creates a new TCR client for the websocket endpoint at serverURL.
func NewClient(serverURL, userID, username string) *Client {
	return &Client{
		ServerURL:       serverURL,
		UserID:          userID,
		Username:        username,
		messageHandlers: make(map[network.MessageType]MessageHandler),
		out:             os.Stdout,
		disconnectChan:  make(chan struct{}),
	}
}

// SetOutput redirects event printing.
func (c *Client) SetOutput(w io.Writer) {
	c.out = w
}

// Connect connects to the server
func (c *Client) Connect() error {
	if c.IsConnected() {
		return fmt.Errorf("already connected to server")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.ServerURL, err)
	}
	q := u.Query()
	q.Set("userId", c.UserID)
	q.Set("username", c.Username)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server at %s: %w", c.ServerURL, err)
	}

	c.codec = network.NewCodec(conn)
	c.setConnected(true)
	logger.Client.Info("Connected to %s as %s", c.ServerURL, c.UserID)

	go c.receiveMessages()
	return nil
}

// Disconnect disconnects from the server
func (c *Client) Disconnect() error {
	if !c.IsConnected() {
		return nil
	}
	c.setConnected(false)
	return c.codec.Close()
}

// RegisterHandler registers a handler for a specific message type
func (c *Client) RegisterHandler(msgType network.MessageType, handler MessageHandler) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	c.messageHandlers[msgType] = handler
}

// RemoveHandler removes a handler for a specific message type
func (c *Client) RemoveHandler(msgType network.MessageType) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	delete(c.messageHandlers, msgType)
}

// Send sends a message to the server
func (c *Client) Send(msgType network.MessageType, payload interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.codec.Send(msgType, payload)
}

// JoinQueue asks to be matched with an opponent.
func (c *Client) JoinQueue() error {
	return c.Send(network.MessageTypeQueue, struct{}{})
}

// LeaveQueue cancels a pending match request.
func (c *Client) LeaveQueue() error {
	return c.Send(network.MessageTypeCancel, struct{}{})
}

// Spawn plays a hand card at (x, y).
func (c *Client) Spawn(cardID string, x, y int) error {
	return c.Send(network.MessageTypeSpawn, network.SpawnPayload{CardID: cardID, X: x, Y: y})
}

// Reconnect reattaches this connection to a running session. An empty id
// lets the server find the player's game.
func (c *Client) Reconnect(sessionID string) error {
	return c.Send(network.MessageTypeReconnect, network.ReconnectPayload{SessionID: sessionID})
}

// IsConnected returns whether the client is connected to the server
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = v
}

// State returns a copy of the current match view.
func (c *Client) State() View {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	v := c.state
	v.Hand = append([]network.CardInfo(nil), c.state.Hand...)
	return v
}

func (c *Client) updateState(fn func(*View)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	fn(&c.state)
}

// WaitForDisconnect blocks until the client is disconnected
func (c *Client) WaitForDisconnect() {
	<-c.disconnectChan
}

// receiveMessages continuously receives and processes messages from the server
func (c *Client) receiveMessages() {
	defer func() {
		c.setConnected(false)
		c.closeOnce.Do(func() { close(c.disconnectChan) })
	}()

	for {
		msg, err := c.codec.Receive()
		if err != nil {
			if c.IsConnected() {
				logger.Client.Warn("Connection lost: %v", err)
			}
			return
		}
		c.processMessage(msg)
	}
}

// processMessage processes a message received from the server
func (c *Client) processMessage(msg *network.Message) {
	c.handlersMutex.RLock()
	handler, exists := c.messageHandlers[msg.Type]
	c.handlersMutex.RUnlock()

	if !exists {
		logger.Client.Debug("Received message of type %s with no handler", msg.Type)
		return
	}
	if err := handler(msg); err != nil {
		logger.Client.Warn("Error handling message of type %s: %v", msg.Type, err)
	}
}
