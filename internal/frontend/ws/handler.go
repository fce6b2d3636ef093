// Package ws bridges websocket connections to the event router.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/chessrelay/internal/config"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/observability"
)

// Dispatcher consumes inbound frames and connection teardown.
type Dispatcher interface {
	Handle(conn session.ConnID, frame []byte) error
	Disconnect(conn session.ConnID)
}

// Handler upgrades HTTP requests to websocket connections and runs a read
// and a write pump for each.
type Handler struct {
	cfg        config.WebSocketConfig
	registry   *session.Registry
	dispatcher Dispatcher
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[session.ConnID]*client
	wg      sync.WaitGroup
	closed  bool
}

// NewHandler creates a Handler.
//
// Precondition: registry, dispatcher, and logger must be non-nil.
func NewHandler(cfg config.WebSocketConfig, registry *session.Registry, dispatcher Dispatcher, logger *zap.Logger) *Handler {
	h := &Handler{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		clients:    make(map[session.ConnID]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts requests without an Origin header, and otherwise
// requires the origin to match an allowed entry. "*" allows any origin.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("rejecting websocket origin", zap.String("origin", origin))
	return false
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := session.NewConnID()
	entity, err := h.registry.Register(id)
	if err != nil {
		h.logger.Error("registering connection", observability.Conn(string(id)), zap.Error(err))
		_ = conn.Close()
		return
	}

	c := &client{
		id:         id,
		conn:       conn,
		entity:     entity,
		dispatcher: h.dispatcher,
		logger:     h.logger.With(observability.Conn(string(id))),
		cfg:        h.cfg,
		limiter:    newLimiter(h.cfg.RateLimit),
	}
	if !h.track(c) {
		// Shutdown began while this connection was upgrading.
		c.close(websocket.CloseGoingAway, "server shutting down")
		h.dispatcher.Disconnect(id)
		return
	}
	defer h.untrack(id)

	start := time.Now()
	c.logger.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

	go c.writePump()
	c.readPump()

	c.logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	every := cfg.Interval / time.Duration(cfg.Burst)
	return rate.NewLimiter(rate.Every(every), cfg.Burst)
}

// track records c for Shutdown. It reports false once Shutdown has started,
// in which case c is not recorded and the caller must close it.
func (h *Handler) track(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Handler) untrack(id session.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Active returns the number of open websocket connections.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown refuses new upgrades, sends a close frame to every open
// connection, and waits for their pumps to exit or for ctx to expire.
//
// Postcondition: every connection accepted by ServeHTTP has been sent a close
// frame. Returns ctx.Err() if the pumps were still running at the deadline.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return h.wait(ctx)
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	if err := h.wait(ctx); err != nil {
		h.logger.Warn("websocket connections still open at deadline",
			zap.Int("active", h.Active()),
			zap.Error(err),
		)
		return err
	}
	h.logger.Info("websocket handler stopped", zap.Int("closed", len(clients)))
	return nil
}

// wait blocks until every ServeHTTP call has returned or ctx is done.
func (h *Handler) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
