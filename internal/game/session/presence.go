package session

import (
	"fmt"

	"github.com/cory-johannsen/chessrelay/internal/game/room"
)

// AdmitKind classifies how a connection entered a room.
type AdmitKind int

const (
	// Rejoined means the name matched an existing seat, which now follows
	// the new connection.
	Rejoined AdmitKind = iota + 1
	// SeatedAsPlayer means a free seat was taken.
	SeatedAsPlayer
	// Spectator means both seats were taken by other names.
	Spectator
)

// String returns a log-friendly name.
func (k AdmitKind) String() string {
	switch k {
	case Rejoined:
		return "rejoined"
	case SeatedAsPlayer:
		return "seated"
	case Spectator:
		return "spectator"
	default:
		return "unknown"
	}
}

// AdmitResult is the outcome of a successful admission.
type AdmitResult struct {
	Kind AdmitKind
	// Color is empty for spectators.
	Color room.Color
	// Room is the state immediately after admission.
	Room room.Snapshot
}

// Presence admits connections into rooms held by a room.Store and subscribes
// them to the room's broadcast group.
type Presence struct {
	store    *room.Store
	registry *Registry
}

// NewPresence creates a Presence.
//
// Precondition: store and registry must be non-nil.
func NewPresence(store *room.Store, registry *Registry) *Presence {
	return &Presence{store: store, registry: registry}
}

// Admit resolves conn with display name name to a seat in roomID.
//
// Name matching is exact, case-sensitive and first-match. Every successful
// result subscribes conn to the room. announce, if non-nil, runs while the
// room is still locked, so frames it enqueues are ordered with every other
// event on the room.
//
// Postcondition: Returns room.ErrRoomNotFound, or ErrUnknownConn when conn is
// not registered, with no room mutation.
func (p *Presence) Admit(roomID, name string, conn ConnID, announce func(AdmitResult)) (AdmitResult, error) {
	var res AdmitResult
	err := p.store.Update(roomID, func(r *room.Room) error {
		if err := p.registry.Subscribe(roomID, conn); err != nil {
			return err
		}
		res = admitLocked(r, name, conn)
		if announce != nil {
			announce(res)
		}
		return nil
	})
	if err != nil {
		return AdmitResult{}, fmt.Errorf("admitting %q to %q: %w", name, roomID, err)
	}
	return res, nil
}

func admitLocked(r *room.Room, name string, conn ConnID) AdmitResult {
	if seat, ok := r.PlayerByName(name); ok {
		seat.Conn = string(conn)
		return AdmitResult{Kind: Rejoined, Color: seat.Color, Room: r.Snapshot()}
	}
	color, err := r.Seat(name, string(conn))
	if err != nil {
		return AdmitResult{Kind: Spectator, Room: r.Snapshot()}
	}
	return AdmitResult{Kind: SeatedAsPlayer, Color: color, Room: r.Snapshot()}
}

// SeatIn returns the color of the seat conn holds in r. ok is false for
// spectators and strangers. The caller holds r's lock inside Store.Update.
func SeatIn(r *room.Room, conn ConnID) (color room.Color, ok bool) {
	seat, ok := r.PlayerByConn(string(conn))
	if !ok {
		return "", false
	}
	return seat.Color, true
}
