package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/chessrelay/internal/config"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
)

// client owns one websocket connection. readPump is the only reader and
// writePump the only writer; close is the only other call made on conn.
type client struct {
	id         session.ConnID
	conn       *websocket.Conn
	entity     *session.Entity
	dispatcher Dispatcher
	logger     *zap.Logger
	cfg        config.WebSocketConfig
	limiter    *rate.Limiter
}

// readPump feeds inbound text frames to the dispatcher until the connection
// fails, then disconnects the client.
func (c *client) readPump() {
	defer func() {
		c.dispatcher.Disconnect(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", zap.Error(err))
			} else {
				c.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", zap.Int("type", messageType))
			continue
		}
		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, dropping frame", zap.Int("size", len(message)))
			continue
		}
		_ = c.dispatcher.Handle(c.id, message)
	}
}

// writePump drains the entity's queue onto the socket, one frame per event,
// and keeps the connection alive with pings. It exits when the queue is
// closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.entity.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				if c.entity.Evicted() {
					c.logger.Warn("evicting slow consumer")
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"))
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// close sends a close frame and tears the socket down, which ends both pumps.
func (c *client) close(code int, reason string) {
	deadline := time.Now().Add(c.cfg.WriteWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.conn.Close()
}
