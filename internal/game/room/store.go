package room

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idLength is the number of characters kept from a generated UUID.
const idLength = 8

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides room id generation. The store still rejects ids
// it has issued before and retries.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// entry pairs a room with the lock that serializes its mutations.
type entry struct {
	mu      sync.Mutex
	room    *Room
	deleted bool
}

// Store owns every live room.
//
// Invariant: an id is issued at most once for the lifetime of the Store.
// Invariant: the map lock is never held while waiting on a room lock.
// All methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*entry
	issued map[string]struct{}
	now    func() time.Time
	newID  func() string
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms:  make(map[string]*entry),
		issued: make(map[string]struct{}),
		now:    time.Now,
		newID:  func() string { return uuid.NewString()[:idLength] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts an empty waiting room and returns its snapshot.
//
// Postcondition: the returned id was never issued before by this Store.
func (s *Store) Create() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.issued[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.issued[id] = struct{}{}

	r := newRoom(id, s.now())
	s.rooms[id] = &entry{room: r}
	return r.Snapshot()
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

// Get returns a snapshot of room id. ok is false if the room does not exist.
func (s *Store) Get(id string) (snap Snapshot, ok bool) {
	e, found := s.lookup(id)
	if !found {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Snapshot{}, false
	}
	return e.room.Snapshot(), true
}

// Update runs fn with exclusive access to room id. fn's error is returned
// unchanged. fn must not retain r after returning or call back into the Store
// for the same room.
//
// Postcondition: returns ErrRoomNotFound without calling fn when the room
// does not exist or was deleted concurrently.
func (s *Store) Update(id string, fn func(r *Room) error) error {
	e, found := s.lookup(id)
	if !found {
		return ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ErrRoomNotFound
	}
	return fn(e.room)
}

// Delete removes room id, waiting for any in-flight Update to finish.
// It reports whether the room existed.
func (s *Store) Delete(id string) bool {
	e, found := s.lookup(id)
	if !found {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.deleteLocked(id, e)
}

// deleteLocked removes e from the map. The caller holds e.mu.
func (s *Store) deleteLocked(id string, e *entry) bool {
	if e.deleted {
		return false
	}
	e.deleted = true
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
	return true
}

// IDs returns the ids of all live rooms in lexical order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Range calls fn with a snapshot of every live room, in id order, until fn
// returns false. Rooms created or deleted during the walk may be missed.
func (s *Store) Range(fn func(Snapshot) bool) {
	for _, id := range s.IDs() {
		snap, ok := s.Get(id)
		if !ok {
			continue
		}
		if !fn(snap) {
			return
		}
	}
}

// Expire deletes every room older than ttl, measured from creation, and
// returns the deleted ids. Each room's lock is taken before deletion so a
// sweep never interleaves with an event on that room.
func (s *Store) Expire(ttl time.Duration) []string {
	var expired []string
	for _, id := range s.IDs() {
		e, found := s.lookup(id)
		if !found {
			continue
		}
		e.mu.Lock()
		if !e.deleted && s.now().Sub(e.room.CreatedAt) > ttl {
			if s.deleteLocked(id, e) {
				expired = append(expired, id)
			}
		}
		e.mu.Unlock()
	}
	return expired
}
