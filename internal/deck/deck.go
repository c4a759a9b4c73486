package deck

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
)

// ErrEmptyDeck is returned when a draw asks for more cards than remain
var ErrEmptyDeck = errors.New("not enough cards left in deck")

// CardsPerSet is the size of one standard deck without jokers
const CardsPerSet = 52

// Deck is an ordered stack of cards. The top of the deck is the next card
// to be drawn. Drawn cards are kept behind the cursor so that
// Drawn()+Remaining() always equals Size().
type Deck struct {
	cards []Card
	next  int
}

// New creates count canonical 52-card sets, each optionally followed by two
// jokers, in fixed order. Call Shuffle before dealing.
func New(count int, jokers bool) (*Deck, error) {
	if count < 1 {
		return nil, fmt.Errorf("deck count must be at least 1, got %d", count)
	}

	perSet := CardsPerSet
	if jokers {
		perSet += 2
	}

	d := &Deck{cards: make([]Card, 0, count*perSet)}
	for range count {
		for _, suit := range Suits {
			for rank := Two; rank <= Ace; rank++ {
				d.cards = append(d.cards, NewCard(suit, rank))
			}
		}
		if jokers {
			d.cards = append(d.cards, NewCard(Spades, Joker), NewCard(Hearts, Joker))
		}
	}
	return d, nil
}

// FromCards builds a deck whose top card is cards[0]. The slice is copied.
func FromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Shuffle randomizes the order of the undrawn cards using Fisher-Yates.
// A nil rng uses the package-level source.
func (d *Deck) Shuffle(rng *rand.Rand) {
	rest := d.cards[d.next:]
	for i := len(rest) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		rest[i], rest[j] = rest[j], rest[i]
	}
}

// Draw removes and returns the top n cards. It fails without drawing
// anything if fewer than n cards remain.
func (d *Deck) Draw(n int) ([]Card, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot draw %d cards", n)
	}
	if n > d.Remaining() {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrEmptyDeck, n, d.Remaining())
	}

	out := make([]Card, n)
	copy(out, d.cards[d.next:d.next+n])
	d.next += n
	return out, nil
}

// DrawOne removes and returns the top card
func (d *Deck) DrawOne() (Card, error) {
	cards, err := d.Draw(1)
	if err != nil {
		return Card{}, err
	}
	return cards[0], nil
}

// Peek returns the top card without removing it from the deck
func (d *Deck) Peek() (Card, bool) {
	if d.Remaining() == 0 {
		return Card{}, false
	}
	return d.cards[d.next], true
}

// Size returns the number of cards the deck was built with
func (d *Deck) Size() int {
	return len(d.cards)
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// Drawn returns the number of cards dealt so far
func (d *Deck) Drawn() int {
	return d.next
}

// IsEmpty returns true if the deck has no cards left
func (d *Deck) IsEmpty() bool {
	return d.Remaining() == 0
}

// Clone returns an independent copy including the draw position
func (d *Deck) Clone() *Deck {
	c := &Deck{cards: make([]Card, len(d.cards)), next: d.next}
	copy(c.cards, d.cards)
	return c
}

// Cards returns a copy of the undrawn cards, top first
func (d *Deck) Cards() []Card {
	out := make([]Card, d.Remaining())
	copy(out, d.cards[d.next:])
	return out
}

const goldenRatio64 = 0x9e3779b97f4a7c15

// NewRand returns a PCG source seeded from a single int64 so that seeded
// tables and simulations shuffle reproducibly.
func NewRand(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(splitmix(u), splitmix(u+goldenRatio64)))
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
