// Package session tracks connected players and spawned mobiles, their room
// presence, and the per-character combat state the battle engine mutates.
package session

import (
	"fmt"
	"sync"
)

// BridgeEntity routes outgoing text to a Go channel read by the connection layer.
type BridgeEntity struct {
	id     string
	events chan string
	mu     sync.Mutex
	closed bool
}

// NewBridgeEntity creates a BridgeEntity for the given character ID.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a BridgeEntity with an open events channel.
func NewBridgeEntity(id string, bufferSize int) *BridgeEntity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &BridgeEntity{
		id:     id,
		events: make(chan string, bufferSize),
	}
}

// ID returns the owning character's identifier.
func (e *BridgeEntity) ID() string {
	return e.id
}

// Push enqueues text without blocking.
//
// Postcondition: text is enqueued, or an error is returned if the entity is closed or full.
func (e *BridgeEntity) Push(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("entity %s is closed", e.id)
	}
	select {
	case e.events <- text:
		return nil
	default:
		return fmt.Errorf("entity %s event buffer full", e.id)
	}
}

// Events returns the read-only events channel.
func (e *BridgeEntity) Events() <-chan string {
	return e.events
}

// Close marks the entity as closed and closes the events channel. Idempotent.
func (e *BridgeEntity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// IsClosed reports whether the entity has been closed.
func (e *BridgeEntity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
