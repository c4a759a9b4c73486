package game

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/deck"
)

// NewTestEngine creates an engine with logging discarded and a fixed seed.
// Later options override the defaults.
func NewTestEngine(opts ...Option) *Engine {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return NewEngine(logger, append([]Option{WithSeed(42)}, opts...)...)
}

// StackedDeck returns a shoe that deals the given cards in order, e.g.
// StackedDeck("Kh 9s 3d 7c")
func StackedDeck(cards string) *deck.Deck {
	return deck.FromCards(deck.MustParseCards(cards))
}
