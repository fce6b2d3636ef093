package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chessrelay/internal/config"
	"github.com/cory-johannsen/chessrelay/internal/frontend/httpapi"
	"github.com/cory-johannsen/chessrelay/internal/frontend/ws"
	"github.com/cory-johannsen/chessrelay/internal/game/quote"
	"github.com/cory-johannsen/chessrelay/internal/game/room"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/gameserver"
	"github.com/cory-johannsen/chessrelay/internal/inspect"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stack struct {
	store    *room.Store
	registry *session.Registry
	ws       *ws.Handler
	engine   *gin.Engine
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Defaults()
	store := room.NewStore()
	reg := session.NewRegistry(cfg.WebSocket.SendBuffer)
	quotes := quote.NewSelector(quote.NewCryptoSource(), nil)
	router := gameserver.NewRouter(store, reg, session.NewPresence(store, reg), quotes, logger)
	wsHandler := ws.NewHandler(cfg.WebSocket, reg, router, logger)
	t.Cleanup(func() { _ = wsHandler.Shutdown(context.Background()) })

	engine := httpapi.NewEngine(httpapi.Deps{
		Store:     store,
		Quotes:    quotes,
		Registry:  reg,
		WebSocket: wsHandler,
		Sockets:   wsHandler,
		MCP:       inspect.NewServer(store, quotes, reg, logger),
		Logger:    logger,
	})
	return &stack{store: store, registry: reg, ws: wsHandler, engine: engine}
}

func (s *stack) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestCreateGame(t *testing.T) {
	s := newStack(t)

	rec := s.do(http.MethodGet, "/api/create-game", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.CreateGameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.GameID, 8)
	assert.Contains(t, quote.DefaultPools()[quote.GameStart], resp.Quote)

	snap, ok := s.store.Get(resp.GameID)
	require.True(t, ok)
	assert.Equal(t, room.Waiting, snap.Status)
}

func TestGetGame(t *testing.T) {
	s := newStack(t)
	id := s.store.Create().ID

	rec := s.do(http.MethodGet, "/api/game/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body["id"])
	assert.Equal(t, room.InitialFEN, body["fen"])
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, []any{}, body["players"])
	assert.Equal(t, []any{}, body["moves"])
	assert.NotContains(t, body, "winner")
	assert.IsType(t, float64(0), body["createdAt"])
}

func TestGetGameUnknown(t *testing.T) {
	s := newStack(t)

	rec := s.do(http.MethodGet, "/api/game/unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Game not found"}`, rec.Body.String())
}

func TestGetGameAfterSweep(t *testing.T) {
	now := time.Now()
	store := room.NewStore(room.WithClock(func() time.Time { return now }))
	id := store.Create().ID
	now = now.Add(25 * time.Hour)

	sw := room.NewSweeper(store, time.Hour, 24*time.Hour, zaptest.NewLogger(t), nil)
	require.Equal(t, []string{id}, sw.SweepOnce())

	engine := httpapi.NewEngine(httpapi.Deps{
		Store:     store,
		Quotes:    quote.NewSelector(quote.NewCryptoSource(), nil),
		Registry:  session.NewRegistry(4),
		WebSocket: http.NotFoundHandler(),
		Logger:    zaptest.NewLogger(t),
	})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/game/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newStack(t)
	s.store.Create()
	s.store.Create()

	rec := s.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","rooms":2,"connections":0,"sockets":0}`, rec.Body.String())
}

func TestMCPRoute(t *testing.T) {
	s := newStack(t)

	rec := s.do(http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), inspect.ToolListGames)

	rec = s.do(http.MethodGet, "/mcp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMCPRouteOmittedWithoutHandler(t *testing.T) {
	engine := httpapi.NewEngine(httpapi.Deps{
		Store:     room.NewStore(),
		Quotes:    quote.NewSelector(quote.NewCryptoSource(), nil),
		Registry:  session.NewRegistry(4),
		WebSocket: http.NotFoundHandler(),
		Logger:    zaptest.NewLogger(t),
	})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketThroughEngine(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	create, err := http.Get(srv.URL + "/api/create-game")
	require.NoError(t, err)
	var created httpapi.CreateGameResponse
	require.NoError(t, json.NewDecoder(create.Body).Decode(&created))
	_ = create.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	data, _ := json.Marshal(map[string]string{"gameId": created.GameID, "playerName": "Alice"})
	require.NoError(t, conn.WriteJSON(gameserver.Envelope{Event: gameserver.EventJoinGame, Data: data}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env gameserver.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, gameserver.EventGameJoined, env.Event)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var h httpapi.HealthResponse
	require.NoError(t, json.NewDecoder(health.Body).Decode(&h))
	_ = health.Body.Close()
	assert.Equal(t, 1, h.Connections)
	assert.Equal(t, 1, h.Sockets)
}

func TestServerStartStop(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	drained := make(chan struct{})
	srv := httpapi.NewServer(cfg, handler, drainFunc(func(context.Context) error {
		close(drained)
		return nil
	}), zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server never bound")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Stop(ctx)

	require.NoError(t, <-done)
	select {
	case <-drained:
	default:
		t.Fatal("drainer was not shut down")
	}
}

func TestServerStartListenError(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Host = "256.0.0.1"
	srv := httpapi.NewServer(cfg, http.NotFoundHandler(), nil, zaptest.NewLogger(t))
	assert.Error(t, srv.Start(context.Background()))
}

func TestServerStopIsBoundedByContext(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	// a drainer that never finishes on its own
	stuck := drainFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	srv := httpapi.NewServer(cfg, http.NotFoundHandler(), stuck, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()
	<-srv.Ready()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		srv.Stop(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop ignored the context deadline")
	}
	require.NoError(t, <-done)
}

type drainFunc func(ctx context.Context) error

func (f drainFunc) Shutdown(ctx context.Context) error { return f(ctx) }
