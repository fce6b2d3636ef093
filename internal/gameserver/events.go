package gameserver

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/chessrelay/internal/game/room"
)

// Inbound event names.
const (
	EventJoinGame         = "join-game"
	EventMakeMove         = "make-move"
	EventOfferDraw        = "offer-draw"
	EventAcceptDraw       = "accept-draw"
	EventResign           = "resign"
	EventSendMessage      = "send-message"
	EventRequestPromotion = "request-promotion"
	EventCancelPromotion  = "cancel-promotion"
)

// Outbound event names.
const (
	EventGameJoined         = "game-joined"
	EventPlayerJoined       = "player-joined"
	EventSpectatorJoined    = "spectator-joined"
	EventMoveMade           = "move-made"
	EventDrawOffered        = "draw-offered"
	EventGameDraw           = "game-draw"
	EventPlayerResigned     = "player-resigned"
	EventPlayerDisconnected = "player-disconnected"
	EventChatMessage        = "chat-message"
	EventPromotionRequested = "promotion-requested"
	EventPromotionPending   = "promotion-pending"
	EventPromotionCancelled = "promotion-cancelled"
	EventError              = "error"
)

// Error messages sent to clients.
const (
	MsgJoinNotFound  = "Game not found. Perhaps it exists only in memory."
	MsgNotFound      = "Game not found"
	MsgRoomFull      = "This game already has two players. You may only observe."
	MsgSpectatorOnly = "Spectators may only observe."
)

// PromotionChoices are the pieces a pawn may promote to.
var PromotionChoices = []string{"q", "r", "b", "n"}

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload in an Envelope and marshals it.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", event, err)
	}
	return frame, nil
}

// gameRef is embedded by every inbound payload.
type gameRef struct {
	GameID string `json:"gameId"`
}

func (g gameRef) gameID() string { return g.GameID }

// JoinGame asks to take a seat, rejoin one by name, or watch.
type JoinGame struct {
	gameRef
	PlayerName string `json:"playerName"`
}

// MakeMove carries a move the client's rules engine already applied.
// Move and FEN are relayed verbatim.
type MakeMove struct {
	gameRef
	Move        json.RawMessage `json:"move"`
	FEN         string          `json:"fen"`
	IsCapture   bool            `json:"isCapture"`
	IsCheck     bool            `json:"isCheck"`
	IsCheckmate bool            `json:"isCheckmate"`
	IsDraw      bool            `json:"isDraw"`
}

// OfferDraw proposes a draw to the opponent.
type OfferDraw struct{ gameRef }

// AcceptDraw ends the game as a draw.
type AcceptDraw struct{ gameRef }

// Resign concedes the game. An empty Color means the sender's seat.
type Resign struct {
	gameRef
	Color room.Color `json:"color"`
}

// SendMessage is a chat line for everyone in the room.
type SendMessage struct {
	gameRef
	Message    string `json:"message"`
	PlayerName string `json:"playerName"`
}

// RequestPromotion announces a pawn reaching the last rank.
type RequestPromotion struct {
	gameRef
	From string `json:"from"`
	To   string `json:"to"`
}

// CancelPromotion withdraws the sender's pending promotion.
type CancelPromotion struct{ gameRef }

// GameJoined tells a player which color they hold.
type GameJoined struct {
	Game  room.Snapshot `json:"game"`
	Color room.Color    `json:"color"`
	Quote string        `json:"quote"`
}

// PlayerJoined tells the room a new seat was taken.
type PlayerJoined struct {
	PlayerName string        `json:"playerName"`
	Color      room.Color    `json:"color"`
	Game       room.Snapshot `json:"game"`
}

// SpectatorJoined is sent to a connection admitted as a spectator.
type SpectatorJoined struct {
	Game room.Snapshot `json:"game"`
}

// MoveMade carries a null quote for quiet moves.
type MoveMade struct {
	Move  json.RawMessage `json:"move"`
	FEN   string          `json:"fen"`
	Game  room.Snapshot   `json:"game"`
	Quote *string         `json:"quote"`
}

// DrawOffered is relayed to everyone but the offering player.
type DrawOffered struct{}

// GameDraw announces an accepted draw.
type GameDraw struct {
	Quote string `json:"quote"`
}

// PlayerResigned names the resigning color and the winner.
type PlayerResigned struct {
	Color  room.Color `json:"color"`
	Winner room.Color `json:"winner"`
	Quote  string     `json:"quote"`
}

// PlayerDisconnected tells the room a seated player's connection dropped.
type PlayerDisconnected struct {
	PlayerName string     `json:"playerName"`
	Color      room.Color `json:"color"`
}

// ChatMessage carries a chat line; Timestamp is Unix milliseconds.
type ChatMessage struct {
	Message    string `json:"message"`
	PlayerName string `json:"playerName"`
	Timestamp  int64  `json:"timestamp"`
}

// PromotionRequested asks the promoting player to pick a piece.
type PromotionRequested struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Choices []string `json:"choices"`
}

// PromotionPending tells the others a promotion choice is outstanding.
type PromotionPending struct {
	Color room.Color `json:"color"`
}

// PromotionCancelled withdraws a PromotionPending.
type PromotionCancelled struct {
	Color room.Color `json:"color"`
}

// ErrorEvent is sent only to the connection whose event failed.
type ErrorEvent struct {
	Message string `json:"message"`
}
