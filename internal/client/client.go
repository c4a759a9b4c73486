package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server" // Reuse message types
)

// DefaultRequestTimeout bounds how long a request waits for its reply
const DefaultRequestTimeout = 10 * time.Second

var (
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("request timed out")
	ErrAuthFailed   = errors.New("authentication failed")
)

// ServerError is an error reply from the server
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return e.Code + ": " + e.Message
}

// Client represents a WebSocket client for the blackjack server
type Client struct {
	serverURL      string
	conn           *websocket.Conn
	send           chan *server.Message
	receive        chan *server.Message
	logger         *log.Logger
	clock          quartz.Clock
	requestTimeout time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	mu             sync.RWMutex
	connected      bool
	playerName     string
	closeOnce      sync.Once

	// Replies awaited by Request, keyed by request ID
	pending map[string]chan *server.Message

	// Event handlers for messages that are not replies
	eventHandlers map[server.MessageType][]EventHandler
}

// EventHandler is a function that handles incoming events
type EventHandler func(*server.Message)

// Option configures a Client
type Option func(*Client)

// WithClock sets the clock used for request timeouts
func WithClock(clock quartz.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithRequestTimeout overrides DefaultRequestTimeout
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		serverURL:      serverURL,
		send:           make(chan *server.Message, 256),
		receive:        make(chan *server.Message, 256),
		logger:         logger.WithPrefix("client"),
		clock:          quartz.NewReal(),
		requestTimeout: DefaultRequestTimeout,
		ctx:            ctx,
		cancel:         cancel,
		pending:        make(map[string]chan *server.Message),
		eventHandlers:  make(map[server.MessageType][]EventHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WebSocketURL converts a server URL to its websocket endpoint
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	wsURL, err := WebSocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client has disconnected
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendMessage sends a message to the server
func (c *Client) SendMessage(msg *server.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.cancel()
	}()

	for {
		var msg server.Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "requestId", msg.RequestID)

		if c.deliverReply(&msg) {
			continue
		}

		select {
		case c.receive <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// deliverReply hands a reply to the request waiting for it
func (c *Client) deliverReply(msg *server.Message) bool {
	if msg.RequestID == "" {
		return false
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	if ok {
		ch <- msg
	}
	return ok
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// eventProcessor dispatches pushed messages in arrival order
func (c *Client) eventProcessor() {
	for {
		select {
		case msg := <-c.receive:
			c.handleMessage(msg)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg *server.Message) {
	c.mu.RLock()
	handlers, exists := c.eventHandlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		c.logger.Debug("No handler for message type", "type", msg.Type)
		return
	}
	for _, handler := range handlers {
		handler(msg)
	}
}

// AddEventHandler adds an event handler for a specific message type. Handlers
// run one at a time on the client's event goroutine.
func (c *Client) AddEventHandler(messageType server.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

// Request sends a message and waits for the reply carrying its request ID.
// Error replies are returned as *ServerError.
func (c *Client) Request(ctx context.Context, msgType server.MessageType, data any) (*server.Message, error) {
	msg, err := server.NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	reply := make(chan *server.Message, 1)

	c.mu.Lock()
	c.pending[requestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.SendMessage(msg.Reply(requestID)); err != nil {
		return nil, err
	}

	timer := c.clock.NewTimer(c.requestTimeout, "client", "request")
	defer timer.Stop()

	select {
	case resp := <-reply:
		if resp.Type == server.MessageTypeError {
			var data server.ErrorData
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return nil, fmt.Errorf("decoding error reply: %w", err)
			}
			return nil, &ServerError{Code: data.Code, Message: data.Message}
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, msgType, c.requestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrNotConnected
	}
}

func requestInto[T any](ctx context.Context, c *Client, msgType server.MessageType, data any) (T, error) {
	var out T
	resp, err := c.Request(ctx, msgType, data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("decoding %s reply: %w", resp.Type, err)
	}
	return out, nil
}

// Auth performs authentication with the server
func (c *Client) Auth(ctx context.Context, playerName string) error {
	resp, err := requestInto[server.AuthResponseData](ctx, c, server.MessageTypeAuth, server.AuthData{
		PlayerName: playerName,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}

	c.mu.Lock()
	c.playerName = resp.PlayerID
	c.mu.Unlock()
	return nil
}

// GetPlayerName returns the authenticated player name
func (c *Client) GetPlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// ListRooms requests a summary of every open room
func (c *Client) ListRooms(ctx context.Context) ([]server.RoomInfo, error) {
	resp, err := requestInto[server.RoomListData](ctx, c, server.MessageTypeListRooms, struct{}{})
	return resp.Rooms, err
}

// CreateRoom opens a room hosted by this player. An empty roomID lets the
// server pick one.
func (c *Client) CreateRoom(ctx context.Context, roomID string, maxPlayers int) (game.Snapshot, error) {
	return requestInto[game.Snapshot](ctx, c, server.MessageTypeCreateRoom, server.CreateRoomData{
		RoomID:     roomID,
		MaxPlayers: maxPlayers,
	})
}

func (c *Client) roomCommand(ctx context.Context, msgType server.MessageType, roomID string) (game.Snapshot, error) {
	return requestInto[game.Snapshot](ctx, c, msgType, server.RoomRequestData{RoomID: roomID})
}

// JoinRoom takes a seat in a room
func (c *Client) JoinRoom(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeJoinRoom, roomID)
}

// LeaveRoom gives up a seat between rounds
func (c *Client) LeaveRoom(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeLeaveRoom, roomID)
}

// StartRound opens betting
func (c *Client) StartRound(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeStartRound, roomID)
}

// PlaceBet stakes amount chips
func (c *Client) PlaceBet(ctx context.Context, roomID string, amount int) (game.Snapshot, error) {
	return requestInto[game.Snapshot](ctx, c, server.MessageTypePlaceBet, server.PlaceBetData{
		RoomID: roomID,
		Amount: amount,
	})
}

// Deal deals the opening cards
func (c *Client) Deal(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeDeal, roomID)
}

// Act sends a hit or stand
func (c *Client) Act(ctx context.Context, roomID string, action game.Action) (game.Snapshot, error) {
	return requestInto[game.Snapshot](ctx, c, server.MessageTypePlayerAction, server.PlayerActionData{
		RoomID: roomID,
		Action: string(action),
	})
}

// DealerPlay plays out the dealer's hand
func (c *Client) DealerPlay(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeDealerPlay, roomID)
}

// Settle pays out the round
func (c *Client) Settle(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeSettle, roomID)
}

// GetRoom fetches the current snapshot
func (c *Client) GetRoom(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeGetRoom, roomID)
}

// CloseRoom ends a room this player hosts
func (c *Client) CloseRoom(ctx context.Context, roomID string) (game.Snapshot, error) {
	return c.roomCommand(ctx, server.MessageTypeCloseRoom, roomID)
}

// Decode unmarshals a pushed message's payload
func Decode[T any](msg *server.Message) (T, error) {
	var v T
	err := json.Unmarshal(msg.Data, &v)
	return v, err
}
