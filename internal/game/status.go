package game

import (
	"fmt"
	"strings"
)

// Status is a room's lifecycle state
type Status int

const (
	StatusPreGame Status = iota
	StatusBetting
	StatusDealing
	StatusPlayerTurns
	StatusDealerTurn
	StatusSettlement
	StatusClosed
)

var statusNames = [...]string{
	StatusPreGame:     "pre-game",
	StatusBetting:     "betting",
	StatusDealing:     "dealing",
	StatusPlayerTurns: "player-turns",
	StatusDealerTurn:  "dealer-turn",
	StatusSettlement:  "settlement",
	StatusClosed:      "closed",
}

// String returns the string representation of a status
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown room status %q", text)
}

// PlayerStatus is a player's state within the current round
type PlayerStatus string

const (
	PlayerWaiting    PlayerStatus = "waiting"
	PlayerSittingOut PlayerStatus = "sitting_out"
	PlayerPlaying    PlayerStatus = "playing"
	PlayerStood      PlayerStatus = "stood"
	PlayerBusted     PlayerStatus = "busted"
)

// IsTerminal reports whether the player has finished acting this round
func (s PlayerStatus) IsTerminal() bool {
	return s == PlayerStood || s == PlayerBusted
}

// Action is a player's move during their turn
type Action string

const (
	Hit   Action = "hit"
	Stand Action = "stand"
)

// ParseAction accepts "hit"/"h" and "stand"/"s", case-insensitively
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hit", "h":
		return Hit, nil
	case "stand", "s", "stay":
		return Stand, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, s)
	}
}
