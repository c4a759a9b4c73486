package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjack/internal/game"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn        *websocket.Conn
	send        chan *Message
	playerID    string
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	closeOnce   sync.Once
	gameService *GameService
	names       nameRegistry
}

// nameRegistry makes sure one player name maps to one live connection
type nameRegistry interface {
	claimName(c *Connection, name string) bool
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, gameService *GameService, names nameRegistry) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:        conn,
		send:        make(chan *Message, 256),
		logger:      logger.WithPrefix("conn"),
		ctx:         ctx,
		cancel:      cancel,
		gameService: gameService,
		names:       names,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		close(c.send)
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, dropping connection", "player", c.playerID)
		go func() { _ = c.Close() }()
		return ErrConnectionClosed
	}
}

// GetPlayer returns the authenticated player ID
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) setPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decodeData unmarshals a message payload, replying with an error on failure
func decodeData[T any](c *Connection, msg *Message) (T, bool) {
	var data T
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse "+msg.Type.String()+" data")
		return data, false
	}
	return data, true
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer(), "requestId", msg.RequestID)

	if msg.Type == MessageTypeAuth {
		if data, ok := decodeData[AuthData](c, msg); ok {
			c.handleAuth(msg.RequestID, data)
		}
		return
	}

	player := c.GetPlayer()
	if player == "" {
		c.sendError(msg.RequestID, CodeNotAuthenticated, "Must authenticate first")
		return
	}

	var (
		snap game.Snapshot
		err  error
	)

	switch msg.Type {
	case MessageTypeListRooms:
		c.reply(msg.RequestID, MessageTypeRoomList, RoomListData{Rooms: c.gameService.ListRooms()})
		return

	case MessageTypeCreateRoom:
		data, ok := decodeData[CreateRoomData](c, msg)
		if !ok {
			return
		}
		snap, err = c.gameService.CreateRoom(player, data)

	case MessageTypePlaceBet:
		data, ok := decodeData[PlaceBetData](c, msg)
		if !ok {
			return
		}
		snap, err = c.gameService.PlaceBet(player, data)

	case MessageTypePlayerAction:
		data, ok := decodeData[PlayerActionData](c, msg)
		if !ok {
			return
		}
		snap, err = c.gameService.PlayerAction(player, data)

	case MessageTypeJoinRoom, MessageTypeLeaveRoom, MessageTypeStartRound, MessageTypeDeal,
		MessageTypeDealerPlay, MessageTypeSettle, MessageTypeGetRoom, MessageTypeCloseRoom:
		data, ok := decodeData[RoomRequestData](c, msg)
		if !ok {
			return
		}
		snap, err = c.handleRoomRequest(msg.Type, player, data.RoomID)

	default:
		c.sendError(msg.RequestID, CodeUnknownMessageType, "Unknown message type: "+msg.Type.String())
		return
	}

	if err != nil {
		c.logger.Debug("Command rejected", "type", msg.Type, "player", player, "error", err)
		c.sendError(msg.RequestID, errorCode(err), err.Error())
		return
	}
	c.reply(msg.RequestID, MessageTypeRoomState, snap)
}

func (c *Connection) handleRoomRequest(t MessageType, player, roomID string) (game.Snapshot, error) {
	switch t {
	case MessageTypeJoinRoom:
		return c.gameService.JoinRoom(player, roomID)
	case MessageTypeLeaveRoom:
		return c.gameService.LeaveRoom(player, roomID)
	case MessageTypeStartRound:
		return c.gameService.StartRound(c.ctx, player, roomID)
	case MessageTypeDeal:
		return c.gameService.Deal(player, roomID)
	case MessageTypeDealerPlay:
		return c.gameService.DealerPlay(player, roomID)
	case MessageTypeSettle:
		return c.gameService.Settle(player, roomID)
	case MessageTypeGetRoom:
		return c.gameService.GetRoom(roomID)
	default:
		return c.gameService.CloseRoom(player, roomID)
	}
}

func (c *Connection) handleAuth(requestID string, data AuthData) {
	c.logger.Info("Auth request", "playerName", data.PlayerName)

	if data.PlayerName == "" {
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Error: "Player name required"})
		return
	}
	if current := c.GetPlayer(); current != "" {
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Error: "Already authenticated as " + current})
		return
	}
	if !c.names.claimName(c, data.PlayerName) {
		c.sendError(requestID, CodeNameTaken, "Player name "+data.PlayerName+" is already connected")
		return
	}

	c.setPlayer(data.PlayerName)
	c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		PlayerID: data.PlayerName,
	})
}

func (c *Connection) reply(requestID string, t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	_ = c.SendMessage(msg.Reply(requestID))
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

// errorCode maps command errors to protocol codes
func errorCode(err error) string {
	if errors.Is(err, ErrDeckUnavailable) {
		return CodeDeckUnavailable
	}
	return game.ErrorCode(err)
}
