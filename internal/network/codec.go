package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Codec provides functions for encoding and decoding messages over a websocket
type Codec struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewCodec creates a new codec for the given connection
func NewCodec(conn *websocket.Conn) *Codec {
	return &Codec{conn: conn}
}

// Send encodes a Message and sends it as one text frame. Safe for
// concurrent use.
func (c *Codec) Send(msgType MessageType, payload interface{}) error {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive reads a Message from the connection and decodes it
func (c *Codec) Receive() (*Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// Close sends a normal close frame and closes the underlying connection.
func (c *Codec) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// ParsePayload parses the raw payload into the specified type
func ParsePayload(msg *Message, target interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	return nil
}
