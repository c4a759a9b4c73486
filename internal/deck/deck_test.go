package deck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckIsCompleteAndUnique(t *testing.T) {
	d, err := New(1, false)
	require.NoError(t, err)
	require.Equal(t, 52, d.Size())
	require.Equal(t, 52, d.Remaining())

	seen := make(map[Card]bool)
	for _, c := range d.Cards() {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestNewDeckCanonicalOrder(t *testing.T) {
	d, err := New(1, false)
	require.NoError(t, err)

	cards := d.Cards()
	assert.Equal(t, NewCard(Spades, Two), cards[0])
	assert.Equal(t, NewCard(Spades, Ace), cards[12])
	assert.Equal(t, NewCard(Hearts, Two), cards[13])
	assert.Equal(t, NewCard(Clubs, Ace), cards[51])
}

func TestNewDeckMultipleSetsWithJokers(t *testing.T) {
	d, err := New(2, true)
	require.NoError(t, err)
	assert.Equal(t, 108, d.Size())

	jokers := 0
	for _, c := range d.Cards() {
		if c.Rank == Joker {
			jokers++
		}
	}
	assert.Equal(t, 4, jokers)

	_, err = New(0, false)
	assert.Error(t, err)
}

func TestDrawUntilEmpty(t *testing.T) {
	d, err := New(1, false)
	require.NoError(t, err)
	d.Shuffle(NewRand(7))

	drawn := 0
	for !d.IsEmpty() {
		cards, err := d.Draw(5)
		if errors.Is(err, ErrEmptyDeck) {
			cards, err = d.Draw(d.Remaining())
		}
		require.NoError(t, err)
		drawn += len(cards)
		assert.Equal(t, d.Size(), d.Drawn()+d.Remaining())
	}

	assert.Equal(t, 52, drawn)

	_, err = d.Draw(1)
	assert.ErrorIs(t, err, ErrEmptyDeck)

	_, err = d.DrawOne()
	assert.ErrorIs(t, err, ErrEmptyDeck)
}

func TestDrawTooManyLeavesDeckUntouched(t *testing.T) {
	d := FromCards(MustParseCards("As Kd 7c"))

	_, err := d.Draw(4)
	require.ErrorIs(t, err, ErrEmptyDeck)
	assert.Equal(t, 3, d.Remaining())

	top, ok := d.Peek()
	require.True(t, ok)
	assert.Equal(t, NewCard(Spades, Ace), top)

	cards, err := d.Draw(2)
	require.NoError(t, err)
	assert.Equal(t, MustParseCards("As Kd"), cards)
	assert.Equal(t, 1, d.Remaining())
}

func TestShuffleIsPermutation(t *testing.T) {
	d, err := New(1, false)
	require.NoError(t, err)
	before := d.Cards()

	d.Shuffle(NewRand(42))
	after := d.Cards()

	assert.ElementsMatch(t, before, after)
	assert.NotEqual(t, before, after)
}

func TestShuffleDeterministicWithSeed(t *testing.T) {
	a, _ := New(1, false)
	b, _ := New(1, false)

	a.Shuffle(NewRand(99))
	b.Shuffle(NewRand(99))

	assert.Equal(t, a.Cards(), b.Cards())
}

func TestShuffleKeepsDrawnCardsOut(t *testing.T) {
	d, _ := New(1, false)
	first, err := d.Draw(10)
	require.NoError(t, err)

	d.Shuffle(nil)

	rest := d.Cards()
	require.Len(t, rest, 42)
	for _, c := range first {
		assert.NotContains(t, rest, c)
	}
}
