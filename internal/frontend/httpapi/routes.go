// Package httpapi serves the relay's HTTP surface: room creation and lookup,
// the websocket upgrade, health, and MCP inspection.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/game/quote"
	"github.com/cory-johannsen/chessrelay/internal/game/room"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/observability"
)

// SocketCounter reports open websocket connections.
type SocketCounter interface {
	Active() int
}

// Deps are the collaborators the routes need. MCP may be nil, in which case
// /mcp is not mounted. Sockets may be nil, in which case /healthz reports 0.
type Deps struct {
	Store     *room.Store
	Quotes    *quote.Selector
	Registry  *session.Registry
	WebSocket http.Handler
	Sockets   SocketCounter
	MCP       http.Handler
	Logger    *zap.Logger
}

// CreateGameResponse is returned by GET /api/create-game.
type CreateGameResponse struct {
	GameID string `json:"gameId"`
	Quote  string `json:"quote"`
}

// HealthResponse is returned by GET /healthz. Connections counts registered
// outbound queues; Sockets counts upgraded websockets still being served.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Sockets     int    `json:"sockets"`
}

type handlers struct {
	Deps
}

// NewEngine builds the gin engine with every route mounted.
//
// Precondition: Store, Quotes, Registry, WebSocket, and Logger must be non-nil.
func NewEngine(deps Deps) *gin.Engine {
	h := &handlers{Deps: deps}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(deps.Logger))

	api := engine.Group("/api")
	{
		api.GET("/create-game", h.createGame)
		api.GET("/game/:gameId", h.getGame)
	}
	engine.GET("/ws", gin.WrapH(deps.WebSocket))
	engine.GET("/healthz", h.health)
	if deps.MCP != nil {
		engine.POST("/mcp", gin.WrapH(deps.MCP))
	}
	return engine
}

func (h *handlers) createGame(c *gin.Context) {
	snap := h.Store.Create()
	h.Logger.Info("game created", observability.GameID(snap.ID))
	c.JSON(http.StatusOK, CreateGameResponse{
		GameID: snap.ID,
		Quote:  h.Quotes.Pick(quote.GameStart),
	})
}

func (h *handlers) getGame(c *gin.Context) {
	snap, ok := h.Store.Get(c.Param("gameId"))
	if !ok {
		ErrorResponse(c, http.StatusNotFound, "Game not found")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) health(c *gin.Context) {
	resp := HealthResponse{
		Status:      "ok",
		Rooms:       h.Store.Len(),
		Connections: h.Registry.Count(),
	}
	if h.Sockets != nil {
		resp.Sockets = h.Sockets.Active()
	}
	c.JSON(http.StatusOK, resp)
}

// ErrorResponse writes {"error": message} with code.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}
