// Package ledger keeps the history of settled rounds. A Recorder listens on
// the engine's event bus and appends one Record per settled round to a Store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("ledger: unknown backend")

// Record is one settled round. Table tells apart rooms that were created
// under the same ID at different times.
type Record struct {
	RoomID      string         `json:"roomId" msgpack:"roomId"`
	Table       string         `json:"table" msgpack:"table"`
	Round       int            `json:"round" msgpack:"round"`
	SettledAt   time.Time      `json:"settledAt" msgpack:"settledAt"`
	Dealer      []string       `json:"dealer" msgpack:"dealer"`
	DealerScore int            `json:"dealerScore" msgpack:"dealerScore"`
	Players     []PlayerRecord `json:"players" msgpack:"players"`
}

// PlayerRecord is one player's result within a Record
type PlayerRecord struct {
	ID      string       `json:"id" msgpack:"id"`
	Hand    []string     `json:"hand" msgpack:"hand"`
	Score   int          `json:"score" msgpack:"score"`
	Outcome game.Outcome `json:"outcome" msgpack:"outcome"`
	Purse   int          `json:"purse" msgpack:"purse"`
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// History returns a room's records ordered by table, oldest first, then
	// by round
	History(ctx context.Context, roomID string) ([]Record, error)
	Close() error
}

// NewRecord builds the record for a round_settled event
func NewRecord(ev game.RoomEvent) Record {
	snap := ev.Snapshot
	rec := Record{
		RoomID:      snap.RoomID,
		Table:       snap.Table,
		Round:       snap.Round,
		SettledAt:   ev.Time.UTC(),
		Dealer:      codes(snap.Dealer.Cards),
		DealerScore: snap.Dealer.Score,
	}

	for _, p := range snap.Players {
		outcome, ok := ev.Outcomes[p.ID]
		if !ok {
			continue
		}
		rec.Players = append(rec.Players, PlayerRecord{
			ID:      p.ID,
			Hand:    codes(p.Hand),
			Score:   p.Score,
			Outcome: outcome,
			Purse:   p.Purse,
		})
	}
	return rec
}

func codes(cards []deck.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Code()
	}
	return out
}

func validateRecord(rec Record) error {
	if rec.RoomID == "" {
		return errors.New("ledger: record has no room id")
	}
	if rec.Table == "" {
		return fmt.Errorf("ledger: record for room %s has no table id", rec.RoomID)
	}
	if rec.Round < 1 {
		return fmt.Errorf("ledger: record for room %s has round %d", rec.RoomID, rec.Round)
	}
	return nil
}
