package game

import (
	"strings"

	"github.com/lox/blackjack/internal/deck"
)

const (
	// BlackjackScore is the best possible hand total
	BlackjackScore = 21

	// DealerStandScore is the total at which the dealer stops drawing
	DealerStandScore = 17

	aceDowngrade = 10
)

// Hand is the ordered set of cards held by a player or the dealer in one
// round. Its score is always derived from the cards.
type Hand []deck.Card

// Score returns the best total for the cards. Every ace starts at 11 and is
// downgraded to 1, one at a time, while the total is over 21.
func Score(cards []deck.Card) int {
	total, _ := scoreWithSoftAces(cards)
	return total
}

func scoreWithSoftAces(cards []deck.Card) (total, softAces int) {
	for _, c := range cards {
		total += c.Points()
		if c.IsAce() {
			softAces++
		}
	}

	for total > BlackjackScore && softAces > 0 {
		total -= aceDowngrade
		softAces--
	}
	return total, softAces
}

// IsBlackjack reports a natural: exactly two cards totalling 21
func IsBlackjack(cards []deck.Card) bool {
	return len(cards) == 2 && Score(cards) == BlackjackScore
}

// IsSoft reports whether at least one ace is still being counted as 11
func IsSoft(cards []deck.Card) bool {
	_, soft := scoreWithSoftAces(cards)
	return soft > 0
}

// IsBust reports whether the hand is over 21
func IsBust(cards []deck.Card) bool {
	return Score(cards) > BlackjackScore
}

// Score returns the hand's best total
func (h Hand) Score() int { return Score(h) }

// IsBlackjack reports whether the hand is a natural
func (h Hand) IsBlackjack() bool { return IsBlackjack(h) }

// IsSoft reports whether the hand holds an ace counted as 11
func (h Hand) IsSoft() bool { return IsSoft(h) }

// IsBust reports whether the hand is over 21
func (h Hand) IsBust() bool { return IsBust(h) }

// String renders the cards separated by spaces, e.g. "A♠ K♥"
func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
