package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/config"
	"github.com/cory-johannsen/chessrelay/internal/frontend/httpapi"
	"github.com/cory-johannsen/chessrelay/internal/frontend/ws"
	"github.com/cory-johannsen/chessrelay/internal/game/quote"
	"github.com/cory-johannsen/chessrelay/internal/game/room"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/gameserver"
	"github.com/cory-johannsen/chessrelay/internal/inspect"
	"github.com/cory-johannsen/chessrelay/internal/server"
)

// app holds every wired relay component.
type app struct {
	store     *room.Store
	registry  *session.Registry
	router    *gameserver.Router
	websocket *ws.Handler
	http      *httpapi.Server
	sweeper   *room.Sweeper
	lifecycle *server.Lifecycle
}

// newApp wires the relay from cfg.
//
// Precondition: cfg must have passed Validate, except that Server.Port may be 0
// to bind an ephemeral port.
// Postcondition: Returns an app whose lifecycle runs the HTTP server and the
// expiry sweeper, or a non-nil error if the quote file cannot be loaded.
func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	var pools quote.Pools
	if cfg.Rooms.QuotesFile != "" {
		loaded, err := quote.LoadFile(cfg.Rooms.QuotesFile)
		if err != nil {
			return nil, fmt.Errorf("loading quotes: %w", err)
		}
		pools = loaded
		logger.Info("loaded quote pools",
			zap.String("path", cfg.Rooms.QuotesFile),
			zap.Int("categories", len(loaded)),
		)
	}
	quotes := quote.NewSelector(quote.NewCryptoSource(), pools)

	store := room.NewStore()
	registry := session.NewRegistry(cfg.WebSocket.SendBuffer)
	presence := session.NewPresence(store, registry)
	router := gameserver.NewRouter(store, registry, presence, quotes, logger)

	wsHandler := ws.NewHandler(cfg.WebSocket, registry, router, logger)
	engine := httpapi.NewEngine(httpapi.Deps{
		Store:     store,
		Quotes:    quotes,
		Registry:  registry,
		WebSocket: wsHandler,
		Sockets:   wsHandler,
		MCP:       inspect.NewServer(store, quotes, registry, logger),
		Logger:    logger,
	})
	httpServer := httpapi.NewServer(cfg.Server, engine, wsHandler, logger)

	sweeper := room.NewSweeper(store, cfg.Rooms.SweepInterval, cfg.Rooms.TTL, logger, router.DropRoom)

	lc := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lc.Add("http", httpServer)
	lc.Add("sweeper", sweeper)

	return &app{
		store:     store,
		registry:  registry,
		router:    router,
		websocket: wsHandler,
		http:      httpServer,
		sweeper:   sweeper,
		lifecycle: lc,
	}, nil
}

// ginMode maps the configured log level onto gin's mode.
func ginMode(level string) string {
	if level == "debug" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
