package network

import (
	"errors"
	"sync"
)

// ErrNoConnection is returned by sinks when a connection id is unknown.
var ErrNoConnection = errors.New("no such connection")

// EventSink delivers server events to a single client connection. The
// simulation core only ever addresses connections by id.
type EventSink interface {
	Send(connectionID string, msgType MessageType, payload interface{}) error
}

// SentEvent is one delivery captured by a MemorySink.
type SentEvent struct {
	ConnectionID string
	Type         MessageType
	Payload      interface{}
}

// MemorySink records deliveries in memory.
type MemorySink struct {
	mu     sync.RWMutex
	events []SentEvent
	fail   map[MessageType]error
}

// NewMemorySink returns an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{fail: make(map[MessageType]error)}
}

// Send implements EventSink.
func (s *MemorySink) Send(connectionID string, msgType MessageType, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msgType]; err != nil {
		return err
	}
	s.events = append(s.events, SentEvent{ConnectionID: connectionID, Type: msgType, Payload: payload})
	return nil
}

// FailOn makes every later Send of msgType return err.
func (s *MemorySink) FailOn(msgType MessageType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[msgType] = err
}

// Events returns a copy of everything sent so far.
func (s *MemorySink) Events() []SentEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]SentEvent, len(s.events))
	copy(copied, s.events)
	return copied
}

// OfType returns the recorded events with the given type.
func (s *MemorySink) OfType(msgType MessageType) []SentEvent {
	var out []SentEvent
	for _, ev := range s.Events() {
		if ev.Type == msgType {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops all recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}
