package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry resolves connection tokens to outbound queues and tracks room
// subscriptions. It never calls into the room store.
// All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	bufferSize int
	entities   map[ConnID]*Entity
	roomSets   map[string]map[ConnID]bool // roomID → subscribed connections
	connRooms  map[ConnID]map[string]bool // connection → subscribed rooms
}

// NewRegistry creates an empty Registry whose entities buffer bufferSize frames.
func NewRegistry(bufferSize int) *Registry {
	return &Registry{
		bufferSize: bufferSize,
		entities:   make(map[ConnID]*Entity),
		roomSets:   make(map[string]map[ConnID]bool),
		connRooms:  make(map[ConnID]map[string]bool),
	}
}

// Register creates the outbound queue for id.
//
// Postcondition: Returns the new Entity, or an error if id is already registered.
func (r *Registry) Register(id ConnID) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; exists {
		return nil, fmt.Errorf("connection %q already registered", id)
	}
	e := NewEntity(id, r.bufferSize)
	r.entities[id] = e
	return e, nil
}

// Unregister removes id from every room, closes its entity, and returns the
// rooms it was subscribed to in lexical order. Unknown ids return nil.
func (r *Registry) Unregister(id ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entities[id]
	if !exists {
		return nil
	}
	rooms := make([]string, 0, len(r.connRooms[id]))
	for roomID := range r.connRooms[id] {
		rooms = append(rooms, roomID)
		if rs, ok := r.roomSets[roomID]; ok {
			delete(rs, id)
			if len(rs) == 0 {
				delete(r.roomSets, roomID)
			}
		}
	}
	delete(r.connRooms, id)
	delete(r.entities, id)
	_ = e.Close()

	sort.Strings(rooms)
	return rooms
}

// Subscribe adds id to roomID's broadcast group. Subscribing twice is a no-op.
//
// Postcondition: Returns an error wrapping ErrUnknownConn if id is not registered.
func (r *Registry) Subscribe(roomID string, id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; !exists {
		return fmt.Errorf("subscribing %q to %q: %w", id, roomID, ErrUnknownConn)
	}
	if r.roomSets[roomID] == nil {
		r.roomSets[roomID] = make(map[ConnID]bool)
	}
	r.roomSets[roomID][id] = true
	if r.connRooms[id] == nil {
		r.connRooms[id] = make(map[string]bool)
	}
	r.connRooms[id][roomID] = true
	return nil
}

// Members returns the connections subscribed to roomID in lexical order.
//
// Postcondition: Returns a slice of ids (may be empty).
func (r *Registry) Members(roomID string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.roomSets[roomID]
	ids := make([]ConnID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Push enqueues data for id. A connection whose queue is full is evicted so
// its transport tears down; the returned error still wraps ErrBufferFull.
func (r *Registry) Push(id ConnID, data []byte) error {
	r.mu.RLock()
	e, exists := r.entities[id]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("pushing to %q: %w", id, ErrUnknownConn)
	}
	err := e.Push(data)
	if errors.Is(err, ErrBufferFull) {
		e.Evict()
	}
	return err
}

// Broadcast pushes data to every member of roomID except exclude (which may
// be empty). Failed pushes do not stop delivery to the remaining members.
//
// Postcondition: Returns the connections whose push failed, keyed to the error.
func (r *Registry) Broadcast(roomID string, exclude ConnID, data []byte) map[ConnID]error {
	var failed map[ConnID]error
	for _, id := range r.Members(roomID) {
		if id == exclude {
			continue
		}
		if err := r.Push(id, data); err != nil {
			if failed == nil {
				failed = make(map[ConnID]error)
			}
			failed[id] = err
		}
	}
	return failed
}

// DropRoom removes roomID's broadcast group. Connections stay registered.
func (r *Registry) DropRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.roomSets[roomID] {
		if rooms, ok := r.connRooms[id]; ok {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(r.connRooms, id)
			}
		}
	}
	delete(r.roomSets, roomID)
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
