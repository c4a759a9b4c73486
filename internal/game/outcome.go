package game

import "github.com/lox/blackjack/internal/deck"

// Outcome is a player's verdict for one completed round
type Outcome string

const (
	OutcomeNone         Outcome = ""
	OutcomeWin          Outcome = "win"
	OutcomeBlackjackWin Outcome = "blackjack_win"
	OutcomeLoss         Outcome = "loss"
	OutcomePush         Outcome = "push"
	OutcomeBust         Outcome = "bust"
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	if o == OutcomeNone {
		return "none"
	}
	return string(o)
}

// Payout returns the chips credited back to the purse for a bet that was
// already deducted when it was placed. Blackjack pays 3:2, rounded down to
// whole chips.
func (o Outcome) Payout(bet int) int {
	switch o {
	case OutcomeWin:
		return bet * 2
	case OutcomeBlackjackWin:
		return bet * 5 / 2
	case OutcomePush:
		return bet
	default:
		return 0
	}
}

// HandResult is the part of a finished hand the resolver looks at
type HandResult struct {
	Score     int
	Busted    bool
	Blackjack bool
}

// ResultOf summarises a finished hand
func ResultOf(cards []deck.Card) HandResult {
	score := Score(cards)
	return HandResult{
		Score:     score,
		Busted:    score > BlackjackScore,
		Blackjack: IsBlackjack(cards),
	}
}

// Resolve compares a player's finished hand against the dealer's.
// A busted player loses whatever the dealer holds, and a natural beats any
// dealer hand except another natural.
func Resolve(player, dealer HandResult) Outcome {
	switch {
	case player.Busted:
		return OutcomeLoss
	case player.Blackjack && !dealer.Blackjack:
		return OutcomeBlackjackWin
	case dealer.Busted:
		return OutcomeWin
	case player.Score > dealer.Score:
		return OutcomeWin
	case player.Score == dealer.Score:
		return OutcomePush
	default:
		return OutcomeLoss
	}
}

// DealerShouldHit is the fixed dealer policy: draw below 17, stand on every
// 17 including soft 17.
func DealerShouldHit(cards []deck.Card) bool {
	return Score(cards) < DealerStandScore
}

// PlayDealer draws from d until the policy says stand and returns the final
// hand. On a draw failure the partial hand is returned with the error.
func PlayDealer(cards []deck.Card, d *deck.Deck) ([]deck.Card, error) {
	hand := append([]deck.Card(nil), cards...)
	for DealerShouldHit(hand) {
		c, err := d.DrawOne()
		if err != nil {
			return hand, err
		}
		hand = append(hand, c)
	}
	return hand, nil
}
