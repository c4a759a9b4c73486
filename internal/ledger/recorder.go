package ledger

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/game"
)

const recorderBuffer = 256

// Open creates the store named by backend: "file" or "badger"
func Open(backend, dir string, logger *log.Logger) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dir)
	case "badger":
		return NewBadgerStore(BadgerOptions{Dir: dir, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Recorder subscribes to room events and writes settled rounds to a Store.
// OnEvent only queues; Run does the writing so the engine never waits on disk.
type Recorder struct {
	store  Store
	queue  chan Record
	logger *log.Logger
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, logger *log.Logger) *Recorder {
	return &Recorder{
		store:  store,
		queue:  make(chan Record, recorderBuffer),
		logger: logger.WithPrefix("ledger"),
	}
}

// OnEvent implements game.EventSubscriber
func (r *Recorder) OnEvent(ev game.RoomEvent) {
	if ev.Type != game.EventTypeRoundSettled {
		return
	}

	rec := NewRecord(ev)
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("Ledger queue full, dropping round", "room", rec.RoomID, "round", rec.Round)
	}
}

// Run writes queued records until ctx is done, then flushes what is left
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case rec := <-r.queue:
			r.write(context.Background(), rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("Failed to record round", "room", rec.RoomID, "round", rec.Round, "error", err)
		return
	}
	r.logger.Debug("Recorded round", "room", rec.RoomID, "round", rec.Round, "players", len(rec.Players))
}

// History returns the recorded rounds for a room
func (r *Recorder) History(ctx context.Context, roomID string) ([]Record, error) {
	return r.store.History(ctx, roomID)
}
