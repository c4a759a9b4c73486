package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth         MessageType = "auth"
	MessageTypeListRooms    MessageType = "list_rooms"
	MessageTypeCreateRoom   MessageType = "create_room"
	MessageTypeJoinRoom     MessageType = "join_room"
	MessageTypeLeaveRoom    MessageType = "leave_room"
	MessageTypeStartRound   MessageType = "start_round"
	MessageTypePlaceBet     MessageType = "place_bet"
	MessageTypeDeal         MessageType = "deal"
	MessageTypePlayerAction MessageType = "player_action"
	MessageTypeDealerPlay   MessageType = "dealer_play"
	MessageTypeSettle       MessageType = "settle"
	MessageTypeGetRoom      MessageType = "get_room"
	MessageTypeCloseRoom    MessageType = "close_room"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeRoomState    MessageType = "room_state"
	MessageTypeRoomList     MessageType = "room_list"
	MessageTypeRoundSettled MessageType = "round_settled"
	MessageTypeRoomClosed   MessageType = "room_closed"
	MessageTypeError        MessageType = "error"
)

// Protocol error codes. Engine errors use game.ErrorCode.
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnknownMessageType = "unknown_message_type"
	CodeNotAuthenticated   = "not_authenticated"
	CodeNameTaken          = "name_taken"
	CodeDeckUnavailable    = "deck_unavailable"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
