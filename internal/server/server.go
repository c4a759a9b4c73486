package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/blackjack/internal/game"
)

const shutdownTimeout = 5 * time.Second

// Server represents the WebSocket server
type Server struct {
	cfg         *Config
	engine      *game.Engine
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	players     map[string]*Connection
	logger      *log.Logger
	mu          sync.RWMutex
	gameService *GameService
	background  []func(context.Context) error
}

// Option configures optional server collaborators
type Option func(*serverOptions)

type serverOptions struct {
	decks    DeckFetcher
	history  HistorySource
	runnable []func(context.Context) error
}

// WithDeckFetcher deals rounds from a remote deck source
func WithDeckFetcher(decks DeckFetcher) Option {
	return func(o *serverOptions) { o.decks = decks }
}

// WithHistory serves recorded rounds from /rooms/{id}/history
func WithHistory(history HistorySource) Option {
	return func(o *serverOptions) { o.history = history }
}

// WithBackground runs fn alongside the listener for the server's lifetime
func WithBackground(fn func(context.Context) error) Option {
	return func(o *serverOptions) { o.runnable = append(o.runnable, fn) }
}

// NewServer creates a new WebSocket server
func NewServer(cfg *Config, engine *game.Engine, logger *log.Logger, opts ...Option) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		players:     make(map[string]*Connection),
		logger:      logger.WithPrefix("server"),
		background:  o.runnable,
	}
	s.gameService = NewGameService(engine, cfg, o.decks, o.history, s, logger)
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("GET /rooms/{id}", s.handleGetRoom)
	mux.HandleFunc("GET /rooms/{id}/history", s.handleHistory)
	return mux
}

// Run serves until ctx is cancelled, along with the idle reaper and any
// background collaborators
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.GetServerAddress())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.GetServerAddress(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{Handler: s.Handler()}

	g.Go(func() error {
		s.logger.Info("Starting WebSocket server", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")
		s.closeConnections()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if idle := s.cfg.IdleTimeout(); idle > 0 {
		g.Go(func() error {
			return s.engine.RunReaper(ctx, s.cfg.ReapInterval(), idle)
		})
	}

	for _, fn := range s.background {
		g.Go(func() error { return fn(ctx) })
	}

	return g.Wait()
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s.gameService, s)
	s.register(client)
	client.Start()

	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

// unregister drops a closed connection. The player's name stays claimed by
// conn until their pre-game seats are released, so a reconnect under the same
// name cannot be unseated by the cleanup.
func (s *Server) unregister(conn *Connection) {
	player := conn.GetPlayer()

	s.mu.Lock()
	delete(s.connections, conn)
	owner := player != "" && s.players[player] == conn
	total := len(s.connections)
	s.mu.Unlock()

	if owner {
		s.logger.Info("Cleaning up disconnected player", "player", player)
		s.gameService.Disconnect(player)

		s.mu.Lock()
		if s.players[player] == conn {
			delete(s.players, player)
		}
		s.mu.Unlock()
	}
	s.logger.Info("Client disconnected", "total", total)
}

func (s *Server) claimName(conn *Connection, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.players[name]; ok && existing != conn {
		return false
	}
	s.players[name] = conn
	return true
}

// BroadcastToRoom sends msg to every connected player enrolled in the room
// except exceptPlayer
func (s *Server) BroadcastToRoom(snap game.Snapshot, msg *Message, exceptPlayer string) {
	s.mu.RLock()
	var targets []*Connection
	for _, id := range snap.PlayerIDs() {
		if id == exceptPlayer {
			continue
		}
		if conn, ok := s.players[id]; ok {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	count := 0
	for _, conn := range targets {
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Debug("Failed to send message to client", "error", err, "player", conn.GetPlayer())
			continue
		}
		count++
	}

	s.logger.Debug("Broadcasted message to room", "room", snap.RoomID, "type", msg.Type, "recipients", count)
}

// GetConnectedPlayers returns the authenticated players currently connected
func (s *Server) GetConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]string, 0, len(s.players))
	for name := range s.players {
		players = append(players, name)
	}
	return players
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListRooms())
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.GetRoom(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, enabled, err := s.gameService.History(r.Context(), r.PathValue("id"))
	switch {
	case !enabled:
		writeJSON(w, http.StatusNotFound, ErrorData{Code: game.ErrorCode(game.ErrNotFound), Message: "ledger is disabled"})
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, records)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, game.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, ErrorData{Code: errorCode(err), Message: err.Error()})
}
