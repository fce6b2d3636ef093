// Package session tracks live connections, their outbound queues, and which
// rooms they observe, and admits connections into rooms.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrEntityClosed is returned when pushing to a closed connection.
	ErrEntityClosed = errors.New("entity closed")
	// ErrBufferFull is returned when a connection's outbound queue is full.
	ErrBufferFull = errors.New("event buffer full")
	// ErrUnknownConn is returned for connections that are not registered.
	ErrUnknownConn = errors.New("unknown connection")
)

// ConnID is an opaque token identifying one client connection.
type ConnID string

// NewConnID returns a fresh random token.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// DefaultBufferSize is used when a non-positive buffer size is requested.
const DefaultBufferSize = 64

// Entity is the outbound queue behind a ConnID. The transport's write loop
// drains Events.
type Entity struct {
	id     ConnID
	events chan []byte
	mu      sync.Mutex
	closed  bool
	evicted bool
}

// NewEntity creates an Entity for id.
//
// Postcondition: Returns an Entity with an open events channel.
func NewEntity(id ConnID, bufferSize int) *Entity {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Entity{
		id:     id,
		events: make(chan []byte, bufferSize),
	}
}

// ID returns the connection token.
func (e *Entity) ID() ConnID {
	return e.id
}

// Push enqueues data without blocking.
//
// Postcondition: data is enqueued, or the error wraps ErrEntityClosed or ErrBufferFull.
func (e *Entity) Push(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("entity %s: %w", e.id, ErrEntityClosed)
	}
	select {
	case e.events <- data:
		return nil
	default:
		return fmt.Errorf("entity %s: %w", e.id, ErrBufferFull)
	}
}

// Events returns the read-only events channel. It is closed by Close.
func (e *Entity) Events() <-chan []byte {
	return e.events
}

// Close marks the entity closed and closes the events channel. Safe to call
// more than once.
func (e *Entity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// Evict closes the entity because its consumer fell behind. The first of
// Close and Evict to run decides whether Evicted reports true.
func (e *Entity) Evict() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		e.evicted = true
		close(e.events)
	}
}

// Evicted reports whether the entity was closed by Evict.
func (e *Entity) Evicted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evicted
}

// IsClosed reports whether the entity has been closed.
func (e *Entity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
