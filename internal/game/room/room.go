// Package room holds chess game rooms in process memory.
//
// A Room is only ever mutated inside Store.Update, which serializes every
// change to that room behind its own lock.
package room

import (
	"encoding/json"
	"errors"
	"time"
)

// InitialFEN is the standard starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// MaxPlayers is the number of seats in a room.
const MaxPlayers = 2

var (
	// ErrRoomNotFound is returned for unknown or already-deleted rooms.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned by Seat when both colors are taken.
	ErrRoomFull = errors.New("room full")
)

// Color is a seat color.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other color. Anything that is not White maps to White.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is White or Black.
func (c Color) Valid() bool { return c == White || c == Black }

// Status is the visible state of a room.
type Status string

const (
	Waiting   Status = "waiting"
	Playing   Status = "playing"
	Checkmate Status = "checkmate"
	Drawn     Status = "draw"
	Resigned  Status = "resigned"
)

// Terminal reports whether s ends the game.
func (s Status) Terminal() bool {
	return s == Checkmate || s == Drawn || s == Resigned
}

// Participant is a seated player. Conn is the opaque token of the connection
// currently bound to the seat; it is never owned by the room.
type Participant struct {
	Conn  string
	Name  string
	Color Color
}

// Promotion is a pawn promotion awaiting the player's piece choice.
type Promotion struct {
	Color Color  `json:"color"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Room is one game session.
//
// Invariant: len(Players) <= MaxPlayers and each player has a distinct color.
// Invariant: Moves is append-only.
// Invariant: once Status is terminal, Status and Winner never change.
type Room struct {
	ID        string
	Players   []Participant
	FEN       string
	Moves     []json.RawMessage
	Status    Status
	Winner    Color
	CreatedAt time.Time

	pending map[Color]Promotion
}

func newRoom(id string, createdAt time.Time) *Room {
	return &Room{
		ID:        id,
		FEN:       InitialFEN,
		Moves:     []json.RawMessage{},
		Status:    Waiting,
		CreatedAt: createdAt,
	}
}

// PlayerByName returns the first participant whose name equals name exactly.
func (r *Room) PlayerByName(name string) (*Participant, bool) {
	for i := range r.Players {
		if r.Players[i].Name == name {
			return &r.Players[i], true
		}
	}
	return nil, false
}

// PlayerByConn returns the participant currently bound to conn.
func (r *Room) PlayerByConn(conn string) (*Participant, bool) {
	for i := range r.Players {
		if r.Players[i].Conn == conn {
			return &r.Players[i], true
		}
	}
	return nil, false
}

// Seat appends a new participant. The first seat is white and the second
// black; filling the second seat moves a waiting room to playing.
//
// Postcondition: Returns the assigned color, or ErrRoomFull.
func (r *Room) Seat(name, conn string) (Color, error) {
	if len(r.Players) >= MaxPlayers {
		return "", ErrRoomFull
	}
	color := White
	if len(r.Players) == 1 {
		color = Black
	}
	r.Players = append(r.Players, Participant{Conn: conn, Name: name, Color: color})
	if len(r.Players) == MaxPlayers && r.Status == Waiting {
		r.Status = Playing
	}
	return color, nil
}

// RecordMove appends move to the log and overwrites the board with fen.
// Both are taken verbatim from the client.
func (r *Room) RecordMove(move json.RawMessage, fen string) {
	r.Moves = append(r.Moves, move)
	r.FEN = fen
}

// Finish moves the room into a terminal status. It reports false, leaving
// the room untouched, when the room has already finished.
//
// Precondition: status.Terminal().
func (r *Room) Finish(status Status, winner Color) bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = status
	r.Winner = winner
	return true
}

// SetPending records a promotion awaiting c's choice, replacing any earlier one.
func (r *Room) SetPending(p Promotion) {
	if r.pending == nil {
		r.pending = make(map[Color]Promotion, MaxPlayers)
	}
	r.pending[p.Color] = p
}

// ClearPending removes c's pending promotion and reports whether one existed.
func (r *Room) ClearPending(c Color) bool {
	if _, ok := r.pending[c]; !ok {
		return false
	}
	delete(r.pending, c)
	return true
}

// PlayerView is the public face of a participant.
type PlayerView struct {
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// Snapshot is an immutable copy of a room, shaped for the wire.
type Snapshot struct {
	ID        string            `json:"id"`
	Players   []PlayerView      `json:"players"`
	FEN       string            `json:"fen"`
	Moves     []json.RawMessage `json:"moves"`
	Status    Status            `json:"status"`
	CreatedAt int64             `json:"createdAt"`
	Winner    Color             `json:"winner,omitempty"`
}

// Snapshot copies the room. Connection tokens are not exposed.
func (r *Room) Snapshot() Snapshot {
	players := make([]PlayerView, len(r.Players))
	for i, p := range r.Players {
		players[i] = PlayerView{Name: p.Name, Color: p.Color}
	}
	return Snapshot{
		ID:        r.ID,
		Players:   players,
		FEN:       r.FEN,
		Moves:     append([]json.RawMessage{}, r.Moves...),
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UnixMilli(),
		Winner:    r.Winner,
	}
}
