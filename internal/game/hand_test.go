package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lox/blackjack/internal/deck"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		cards     string
		score     int
		soft      bool
		blackjack bool
	}{
		{"empty hand", "", 0, false, false},
		{"number cards", "5s 6h", 11, false, false},
		{"face cards count ten", "Kh Qd", 20, false, false},
		{"ace and king is a natural", "As Kh", 21, true, true},
		{"king and ace is a natural", "Kd Ac", 21, true, true},
		{"pair of aces", "As Ah", 12, true, false},
		{"soft seventeen", "Ah 6c", 17, true, false},
		{"ace drops to one", "Ah 6c Ks", 17, false, false},
		{"three aces and an eight", "As Ah Ad 8c", 21, true, false},
		{"four aces", "As Ah Ad Ac", 14, true, false},
		{"two aces and a nine", "As Ah 9d", 21, true, false},
		{"three card twenty one", "7s 7h 7d", 21, false, false},
		{"bust", "Kh Qd 2c", 22, false, false},
		{"two tens and a five", "Th Td 5c", 25, false, false},
		{"bust with aces", "Ah Kd Qs 5c", 26, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := deck.MustParseCards(tt.cards)
			hand := Hand(cards)

			assert.Equal(t, tt.score, Score(cards))
			assert.Equal(t, tt.score, hand.Score())
			assert.Equal(t, tt.soft, hand.IsSoft(), "soft")
			assert.Equal(t, tt.blackjack, hand.IsBlackjack(), "blackjack")
			assert.Equal(t, tt.score > BlackjackScore, hand.IsBust(), "bust")
		})
	}
}

func TestScoreIgnoresOrder(t *testing.T) {
	a := deck.MustParseCards("As 9h Ad 2c")
	b := deck.MustParseCards("2c Ad 9h As")
	assert.Equal(t, Score(a), Score(b))
	assert.Equal(t, 13, Score(a))
}

func TestScoreNeverExceedsTwentyOneWhileAnAceCanDrop(t *testing.T) {
	// Every hand made of aces and one other rank either scores at most 21
	// or has no ace left counting as eleven.
	for _, rank := range []string{"2", "5", "9", "K"} {
		cards := []deck.Card{}
		for range 6 {
			cards = append(cards, deck.MustParseCards("As")...)
			cards = append(cards, deck.MustParseCards(rank+"h")...)

			score := Score(cards)
			if score > BlackjackScore {
				assert.False(t, IsSoft(cards), "hand %s scores %d while soft", Hand(cards), score)
			}
		}
	}
}

func TestHandString(t *testing.T) {
	assert.Equal(t, "A♠ K♥", Hand(deck.MustParseCards("As Kh")).String())
	assert.Equal(t, "", Hand(nil).String())
}
