// Package inspect exposes read and create operations over the room store as
// MCP tools, so operators and agents can look into a running relay.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/game/quote"
	"github.com/cory-johannsen/chessrelay/internal/game/room"
	"github.com/cory-johannsen/chessrelay/internal/game/session"
	"github.com/cory-johannsen/chessrelay/internal/observability"
)

const (
	serverName    = "chessrelay"
	serverVersion = "1.0.0"
)

// Tool names.
const (
	ToolCreateGame = "create_game"
	ToolGetGame    = "get_game"
	ToolListGames  = "list_games"
)

// GameSummary is one entry of list_games.
type GameSummary struct {
	ID        string            `json:"id"`
	Status    room.Status       `json:"status"`
	Players   []room.PlayerView `json:"players"`
	Moves     int               `json:"moves"`
	Watchers  int               `json:"watchers"`
	CreatedAt int64             `json:"createdAt"`
}

// CreatedGame is the result of create_game.
type CreatedGame struct {
	GameID string `json:"gameId"`
	Quote  string `json:"quote"`
}

// Server hosts the MCP tools.
type Server struct {
	mcp      *server.MCPServer
	store    *room.Store
	quotes   *quote.Selector
	registry *session.Registry
	logger   *zap.Logger
}

// NewServer creates a Server with every tool registered.
//
// Precondition: all arguments must be non-nil.
func NewServer(store *room.Store, quotes *quote.Selector, registry *session.Registry, logger *zap.Logger) *Server {
	s := &Server{
		store:    store,
		quotes:   quotes,
		registry: registry,
		logger:   logger,
	}
	s.mcp = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Chess relay inspection.

- create_game: open a new empty room and get its code
- get_game: full state of one room
- list_games: every live room with its status and audience size`),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        ToolCreateGame,
		Description: "Create a new empty game room and return its code",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleCreateGame)

	s.mcp.AddTool(mcp.Tool{
		Name:        ToolGetGame,
		Description: "Get the full state of a game room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"game_id": map[string]interface{}{
					"type":        "string",
					"description": "Room code returned by create_game",
				},
			},
			Required: []string{"game_id"},
		},
	}, s.handleGetGame)

	s.mcp.AddTool(mcp.Tool{
		Name:        ToolListGames,
		Description: "List every live game room",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListGames)
}

// ServeHTTP accepts one JSON-RPC message per POST and writes the reply.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := s.mcp.HandleMessage(r.Context(), body)
	if response == nil {
		// notifications carry no reply
		w.WriteHeader(http.StatusAccepted)
		return
	}
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleCreateGame(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.store.Create()
	s.logger.Info("game created", observability.GameID(snap.ID), zap.String("via", "mcp"))
	return jsonResult(CreatedGame{GameID: snap.ID, Quote: s.quotes.Pick(quote.GameStart)})
}

func (s *Server) handleGetGame(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, _ := request.GetArguments()["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	snap, ok := s.store.Get(gameID)
	if !ok {
		return mcp.NewToolResultError("Game not found"), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleListGames(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	games := make([]GameSummary, 0, s.store.Len())
	s.store.Range(func(snap room.Snapshot) bool {
		games = append(games, GameSummary{
			ID:        snap.ID,
			Status:    snap.Status,
			Players:   snap.Players,
			Moves:     len(snap.Moves),
			Watchers:  len(s.registry.Members(snap.ID)),
			CreatedAt: snap.CreatedAt,
		})
		return true
	})
	return jsonResult(games)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
