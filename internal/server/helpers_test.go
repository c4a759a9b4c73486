package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// stackedDecks hands out the same prepared shoe on every request
type stackedDecks struct {
	cards string
	err   error
	sets  []int
	mu    sync.Mutex
}

func (s *stackedDecks) NewShuffledDeck(ctx context.Context, count int, jokers bool) (*deck.Deck, error) {
	s.mu.Lock()
	s.sets = append(s.sets, count)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return game.StackedDeck(s.cards), nil
}

type sentMessage struct {
	msg    *Message
	except string
	to     []string
}

// recordingBroadcaster captures broadcasts instead of writing to sockets
type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (b *recordingBroadcaster) BroadcastToRoom(snap game.Snapshot, msg *Message, exceptPlayer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{msg: msg, except: exceptPlayer, to: snap.PlayerIDs()})
}

func (b *recordingBroadcaster) ofType(t MessageType) []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentMessage
	for _, s := range b.sent {
		if s.msg.Type == t {
			out = append(out, s)
		}
	}
	return out
}

type fixedHistory struct {
	records []ledger.Record
}

func (h fixedHistory) History(ctx context.Context, roomID string) ([]ledger.Record, error) {
	if roomID == "missing" {
		return nil, errors.New("backend offline")
	}
	return h.records, nil
}

func decode[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}
