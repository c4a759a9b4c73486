package game

import (
	"errors"

	"github.com/lox/blackjack/internal/deck"
)

// Errors returned by engine commands. Commands wrap these with context, so
// test for them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyEnrolled   = errors.New("player already enrolled")
	ErrInvalidState      = errors.New("command not allowed in current state")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotHost           = errors.New("only the host can do that")
	ErrInvalidBet        = errors.New("invalid bet")
	ErrInvalidArgument   = errors.New("invalid argument")

	ErrEmptyDeck = deck.ErrEmptyDeck
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrRoomFull, "room_full"},
	{ErrAlreadyEnrolled, "already_enrolled"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrEmptyDeck, "empty_deck"},
	{ErrNotHost, "not_host"},
	{ErrInvalidBet, "invalid_bet"},
	{ErrInvalidArgument, "invalid_argument"},
}

// ErrorCode maps an engine error to a stable code for clients. Errors that
// did not originate in the engine map to "internal".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
