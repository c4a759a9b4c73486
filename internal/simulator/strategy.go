package simulator

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
)

// Strategy decides a scripted player's move from their hand and the dealer's
// up card
type Strategy interface {
	Name() string
	Decide(hand game.Hand, dealerUp deck.Card) game.Action
}

// StrategyNames lists the strategies ParseStrategy accepts, "mixed" aside
var StrategyNames = []string{"dealer", "basic", "stand", "hit", "random"}

type strategyFunc struct {
	name   string
	decide func(hand game.Hand, dealerUp deck.Card) game.Action
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) Decide(hand game.Hand, dealerUp deck.Card) game.Action {
	return s.decide(hand, dealerUp)
}

// DealerStrategy mirrors the house: hit below 17
func DealerStrategy() Strategy {
	return strategyFunc{"dealer", func(hand game.Hand, _ deck.Card) game.Action {
		if game.DealerShouldHit(hand) {
			return game.Hit
		}
		return game.Stand
	}}
}

// BasicStrategy is a hit/stand-only reduction of basic strategy. It always
// hits 11 or less, stands on hard 17 and soft 18 or more, and stands on hard
// 12-16 against a weak dealer up card.
func BasicStrategy() Strategy {
	return strategyFunc{"basic", func(hand game.Hand, dealerUp deck.Card) game.Action {
		score := hand.Score()
		up := dealerUp.Points()

		if hand.IsSoft() {
			if score >= 19 || (score == 18 && up <= 8) {
				return game.Stand
			}
			return game.Hit
		}

		switch {
		case score <= 11:
			return game.Hit
		case score >= 17:
			return game.Stand
		case score == 12:
			if up >= 4 && up <= 6 {
				return game.Stand
			}
			return game.Hit
		case up >= 2 && up <= 6:
			return game.Stand
		default:
			return game.Hit
		}
	}}
}

// StandStrategy never draws
func StandStrategy() Strategy {
	return strategyFunc{"stand", func(game.Hand, deck.Card) game.Action { return game.Stand }}
}

// HitStrategy draws until the hand is decided for it
func HitStrategy() Strategy {
	return strategyFunc{"hit", func(game.Hand, deck.Card) game.Action { return game.Hit }}
}

// RandomStrategy flips a coin on every decision
func RandomStrategy(rng *rand.Rand) Strategy {
	return strategyFunc{"random", func(game.Hand, deck.Card) game.Action {
		if rng.IntN(2) == 0 {
			return game.Hit
		}
		return game.Stand
	}}
}

// ParseStrategy returns the named strategy. rng is only used by "random".
func ParseStrategy(name string, rng *rand.Rand) (Strategy, error) {
	switch name {
	case "dealer":
		return DealerStrategy(), nil
	case "basic":
		return BasicStrategy(), nil
	case "stand":
		return StandStrategy(), nil
	case "hit":
		return HitStrategy(), nil
	case "random":
		return RandomStrategy(rng), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// mixedStrategies is the fixed rotation used for "mixed" tables
var mixedStrategies = []string{"basic", "dealer", "random", "stand"}
