package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/game/quote"
	"github.com/cory-johannsen/chessrelay/internal/game/room"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/observability"
)

var (
	// ErrNotSeated is returned when a spectator or stranger sends a move-input event.
	ErrNotSeated = errors.New("connection holds no seat")
	// ErrMalformedEvent is returned for frames that do not decode or lack a game id.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownEvent is returned for unrecognized event names.
	ErrUnknownEvent = errors.New("unknown event")
)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithClock overrides the time source used for chat timestamps.
func WithClock(now func() time.Time) RouterOption {
	return func(rt *Router) { rt.now = now }
}

// Router applies inbound client events to rooms and fans the results out to
// the right audience.
//
// Invariant: every event for a room is applied and its frames enqueued while
// that room's lock is held, so each connection sees a room's events in the
// order they were applied.
type Router struct {
	store    *room.Store
	registry *session.Registry
	presence *session.Presence
	quotes   *quote.Selector
	logger   *zap.Logger
	now      func() time.Time
}

// NewRouter creates a Router.
//
// Precondition: every argument must be non-nil.
func NewRouter(store *room.Store, registry *session.Registry, presence *session.Presence, quotes *quote.Selector, logger *zap.Logger, opts ...RouterOption) *Router {
	rt := &Router{
		store:    store,
		registry: registry,
		presence: presence,
		quotes:   quotes,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handle decodes one inbound frame from conn and dispatches it. Failures the
// client should hear about are reported to conn as error events before Handle
// returns; the returned error is informational.
func (rt *Router) Handle(conn session.ConnID, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		rt.logger.Warn("dropping malformed frame", observability.Conn(string(conn)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	err := rt.dispatch(conn, env)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedEvent):
		rt.logger.Warn("dropping malformed event",
			observability.Conn(string(conn)),
			observability.Event(env.Event),
			zap.Error(err),
		)
	case errors.Is(err, ErrUnknownEvent):
		rt.logger.Debug("dropping unknown event",
			observability.Conn(string(conn)),
			observability.Event(env.Event),
		)
	case errors.Is(err, room.ErrRoomNotFound):
		msg := MsgNotFound
		if env.Event == EventJoinGame {
			msg = MsgJoinNotFound
		}
		rt.sendError(conn, msg)
	case errors.Is(err, ErrNotSeated):
		rt.sendError(conn, MsgSpectatorOnly)
	default:
		rt.logger.Warn("event failed",
			observability.Conn(string(conn)),
			observability.Event(env.Event),
			zap.Error(err),
		)
	}
	return err
}

func (rt *Router) dispatch(conn session.ConnID, env Envelope) error {
	switch env.Event {
	case EventJoinGame:
		var req JoinGame
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleJoin(conn, req)
	case EventMakeMove:
		var req MakeMove
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleMakeMove(conn, req)
	case EventOfferDraw:
		var req OfferDraw
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleOfferDraw(conn, req)
	case EventAcceptDraw:
		var req AcceptDraw
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleAcceptDraw(conn, req)
	case EventResign:
		var req Resign
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleResign(conn, req)
	case EventSendMessage:
		var req SendMessage
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleSendMessage(req)
	case EventRequestPromotion:
		var req RequestPromotion
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleRequestPromotion(conn, req)
	case EventCancelPromotion:
		var req CancelPromotion
		if err := decode(env, &req); err != nil {
			return err
		}
		return rt.handleCancelPromotion(conn, req)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(env Envelope, dst interface{ gameID() string }) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedEvent, env.Event, err)
	}
	if dst.gameID() == "" {
		return fmt.Errorf("%w: %s missing gameId", ErrMalformedEvent, env.Event)
	}
	return nil
}

func (rt *Router) handleJoin(conn session.ConnID, req JoinGame) error {
	_, err := rt.presence.Admit(req.GameID, req.PlayerName, conn, func(res session.AdmitResult) {
		switch res.Kind {
		case session.Spectator:
			rt.send(conn, EventError, ErrorEvent{Message: MsgRoomFull})
			rt.send(conn, EventSpectatorJoined, SpectatorJoined{Game: res.Room})
		case session.Rejoined:
			rt.send(conn, EventGameJoined, GameJoined{
				Game:  res.Room,
				Color: res.Color,
				Quote: rt.quotes.Pick(quote.GameStart),
			})
		case session.SeatedAsPlayer:
			rt.send(conn, EventGameJoined, GameJoined{
				Game:  res.Room,
				Color: res.Color,
				Quote: rt.quotes.Pick(quote.GameStart),
			})
			rt.broadcast(req.GameID, conn, EventPlayerJoined, PlayerJoined{
				PlayerName: req.PlayerName,
				Color:      res.Color,
				Game:       res.Room,
			})
		}
		rt.logger.Info("player admitted",
			observability.GameID(req.GameID),
			observability.Conn(string(conn)),
			zap.String("player", req.PlayerName),
			zap.Stringer("admission", res.Kind),
			zap.String("color", string(res.Color)),
		)
	})
	return err
}

// withSeat runs fn under the room lock when conn holds a seat in gameID.
func (rt *Router) withSeat(gameID string, conn session.ConnID, fn func(r *room.Room, color room.Color)) error {
	return rt.store.Update(gameID, func(r *room.Room) error {
		color, ok := session.SeatIn(r, conn)
		if !ok {
			return ErrNotSeated
		}
		fn(r, color)
		return nil
	})
}

func (rt *Router) handleMakeMove(conn session.ConnID, req MakeMove) error {
	return rt.withSeat(req.GameID, conn, func(r *room.Room, color room.Color) {
		r.RecordMove(req.Move, req.FEN)
		r.ClearPending(color)

		flags := quote.MoveFlags{
			IsCapture:   req.IsCapture,
			IsCheck:     req.IsCheck,
			IsCheckmate: req.IsCheckmate,
			IsDraw:      req.IsDraw,
		}
		switch {
		case flags.IsCheckmate:
			r.Finish(room.Checkmate, "")
		case flags.IsDraw:
			r.Finish(room.Drawn, "")
		}

		var q *string
		if category, ok := quote.ForMove(flags); ok {
			picked := rt.quotes.Pick(category)
			q = &picked
		}
		rt.broadcast(req.GameID, "", EventMoveMade, MoveMade{
			Move:  req.Move,
			FEN:   req.FEN,
			Game:  r.Snapshot(),
			Quote: q,
		})
	})
}

func (rt *Router) handleOfferDraw(conn session.ConnID, req OfferDraw) error {
	return rt.withSeat(req.GameID, conn, func(_ *room.Room, _ room.Color) {
		rt.broadcast(req.GameID, conn, EventDrawOffered, DrawOffered{})
	})
}

func (rt *Router) handleAcceptDraw(conn session.ConnID, req AcceptDraw) error {
	return rt.withSeat(req.GameID, conn, func(r *room.Room, _ room.Color) {
		r.Finish(room.Drawn, "")
		rt.broadcast(req.GameID, "", EventGameDraw, GameDraw{Quote: rt.quotes.Pick(quote.Draw)})
	})
}

// handleResign trusts the client's color, falling back to the sender's seat
// when it is omitted.
func (rt *Router) handleResign(conn session.ConnID, req Resign) error {
	return rt.withSeat(req.GameID, conn, func(r *room.Room, seat room.Color) {
		color := req.Color
		if color == "" {
			color = seat
		}
		winner := color.Opposite()
		if !r.Finish(room.Resigned, winner) && r.Status == room.Resigned {
			winner = r.Winner
		}
		rt.broadcast(req.GameID, "", EventPlayerResigned, PlayerResigned{
			Color:  color,
			Winner: winner,
			Quote:  rt.quotes.Pick(quote.Checkmate),
		})
	})
}

func (rt *Router) handleSendMessage(req SendMessage) error {
	return rt.store.Update(req.GameID, func(_ *room.Room) error {
		rt.broadcast(req.GameID, "", EventChatMessage, ChatMessage{
			Message:    req.Message,
			PlayerName: req.PlayerName,
			Timestamp:  rt.now().UnixMilli(),
		})
		return nil
	})
}

func (rt *Router) handleRequestPromotion(conn session.ConnID, req RequestPromotion) error {
	return rt.withSeat(req.GameID, conn, func(r *room.Room, color room.Color) {
		r.SetPending(room.Promotion{Color: color, From: req.From, To: req.To})
		rt.send(conn, EventPromotionRequested, PromotionRequested{
			From:    req.From,
			To:      req.To,
			Choices: PromotionChoices,
		})
		rt.broadcast(req.GameID, conn, EventPromotionPending, PromotionPending{Color: color})
	})
}

func (rt *Router) handleCancelPromotion(conn session.ConnID, req CancelPromotion) error {
	return rt.withSeat(req.GameID, conn, func(r *room.Room, color room.Color) {
		if r.ClearPending(color) {
			rt.broadcast(req.GameID, conn, EventPromotionCancelled, PromotionCancelled{Color: color})
		}
	})
}

// Disconnect unregisters conn and tells the other members of every room where
// conn still holds a seat. Seats are kept for a later rejoin.
func (rt *Router) Disconnect(conn session.ConnID) {
	rooms := rt.registry.Unregister(conn)
	for _, gameID := range rooms {
		err := rt.store.Update(gameID, func(r *room.Room) error {
			seat, ok := r.PlayerByConn(string(conn))
			if !ok {
				return nil
			}
			rt.broadcast(gameID, conn, EventPlayerDisconnected, PlayerDisconnected{
				PlayerName: seat.Name,
				Color:      seat.Color,
			})
			rt.logger.Info("player disconnected",
				observability.GameID(gameID),
				observability.Conn(string(conn)),
				zap.String("player", seat.Name),
			)
			return nil
		})
		if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			rt.logger.Warn("disconnect notification failed", observability.GameID(gameID), zap.Error(err))
		}
	}
}

// DropRoom forgets the broadcast group of a deleted room.
func (rt *Router) DropRoom(gameID string) {
	rt.registry.DropRoom(gameID)
}

func (rt *Router) sendError(conn session.ConnID, msg string) {
	rt.send(conn, EventError, ErrorEvent{Message: msg})
}

func (rt *Router) send(conn session.ConnID, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		rt.logger.Error("encoding event", observability.Event(event), zap.Error(err))
		return
	}
	if err := rt.registry.Push(conn, frame); err != nil {
		rt.logger.Warn("push to connection failed",
			observability.Conn(string(conn)),
			observability.Event(event),
			zap.Error(err),
		)
	}
}

// broadcast pushes one frame to every member of gameID except exclude.
func (rt *Router) broadcast(gameID string, exclude session.ConnID, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		rt.logger.Error("encoding broadcast event", observability.Event(event), zap.Error(err))
		return
	}
	for conn, pushErr := range rt.registry.Broadcast(gameID, exclude, frame) {
		rt.logger.Warn("push to connection failed",
			observability.GameID(gameID),
			observability.Conn(string(conn)),
			observability.Event(event),
			zap.Error(pushErr),
		)
	}
}
