package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjack/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Reply returns a copy of msg answering the request with requestID
func (m *Message) Reply(requestID string) *Message {
	reply := *m
	reply.RequestID = requestID
	return &reply
}

// Client → Server Messages

type AuthData struct {
	PlayerName string `json:"playerName"`
}

type CreateRoomData struct {
	RoomID     string `json:"roomId,omitempty"` // Generated when empty
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

// RoomRequestData addresses a command that only needs the room
type RoomRequestData struct {
	RoomID string `json:"roomId"`
}

type PlaceBetData struct {
	RoomID string `json:"roomId"`
	Amount int    `json:"amount"`
}

type PlayerActionData struct {
	RoomID string `json:"roomId"`
	Action string `json:"action"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomInfo summarises a room for the lobby
type RoomInfo struct {
	ID         string      `json:"id"`
	HostID     string      `json:"hostId"`
	Status     game.Status `json:"status"`
	Players    int         `json:"players"`
	MaxPlayers int         `json:"maxPlayers"`
	Round      int         `json:"round"`
}

type RoomListData struct {
	Rooms []RoomInfo `json:"rooms"`
}

type RoundSettledData struct {
	RoomID   string                  `json:"roomId"`
	Round    int                     `json:"round"`
	Outcomes map[string]game.Outcome `json:"outcomes"`
	Room     game.Snapshot           `json:"room"`
}

type RoomClosedData struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// RoomInfoFromSnapshot converts a snapshot to its lobby summary
func RoomInfoFromSnapshot(snap game.Snapshot) RoomInfo {
	return RoomInfo{
		ID:         snap.RoomID,
		HostID:     snap.HostID,
		Status:     snap.Status,
		Players:    len(snap.Players),
		MaxPlayers: snap.MaxPlayers,
		Round:      snap.Round,
	}
}
