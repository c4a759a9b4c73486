package game

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/blackjack/internal/deck"
)

// DefaultMaxPlayersLimit caps the seats a room may be created with
const DefaultMaxPlayersLimit = 7

// Engine is the room repository and the command API over it. Lookups take
// the repository lock briefly; commands then run under the room's own lock.
type Engine struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	defaults        RoomConfig
	maxPlayersLimit int
	jokers          bool

	rngMu sync.Mutex
	rng   *rand.Rand

	clock  quartz.Clock
	bus    *EventBus
	logger *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for activity stamps and the idle reaper
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSeed makes shuffling deterministic
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = deck.NewRand(seed) }
}

// WithRoomDefaults sets the table rules new rooms start from. MaxPlayers is
// taken from each CreateRoom call.
func WithRoomDefaults(cfg RoomConfig) Option {
	return func(e *Engine) { e.defaults = cfg }
}

// WithMaxPlayersLimit caps the seats a room may be created with
func WithMaxPlayersLimit(n int) Option {
	return func(e *Engine) { e.maxPlayersLimit = n }
}

// WithJokers adds two jokers per set to locally built shoes
func WithJokers(enabled bool) Option {
	return func(e *Engine) { e.jokers = enabled }
}

// NewEngine creates an empty engine
func NewEngine(logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		rooms:           make(map[string]*Room),
		defaults:        DefaultRoomConfig(),
		maxPlayersLimit: DefaultMaxPlayersLimit,
		clock:           quartz.NewReal(),
		bus:             NewEventBus(),
		logger:          logger.WithPrefix("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = deck.NewRand(e.clock.Now().UnixNano())
	}
	return e
}

// Events returns the bus room events are published on
func (e *Engine) Events() *EventBus {
	return e.bus
}

func (e *Engine) room(roomID string) (*Room, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
	}
	return r, nil
}

func (e *Engine) remove(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms, roomID)
}

func (e *Engine) publish(t EventType, command string, snap Snapshot, outcomes map[string]Outcome) {
	e.bus.Publish(RoomEvent{
		Type:     t,
		RoomID:   snap.RoomID,
		Command:  command,
		Snapshot: snap,
		Outcomes: outcomes,
		Time:     e.clock.Now(),
	})
}

// localDeck builds and shuffles a shoe with the engine's random source
func (e *Engine) localDeck(sets int) (*deck.Deck, error) {
	d, err := deck.New(sets, e.jokers)
	if err != nil {
		return nil, err
	}
	e.rngMu.Lock()
	d.Shuffle(e.rng)
	e.rngMu.Unlock()
	return d, nil
}

// CreateRoom opens a new room with the host seated
func (e *Engine) CreateRoom(roomID, hostID string, maxPlayers int) (Snapshot, error) {
	if maxPlayers < 1 || maxPlayers > e.maxPlayersLimit {
		return Snapshot{}, fmt.Errorf("%w: max players must be between 1 and %d, got %d", ErrInvalidArgument, e.maxPlayersLimit, maxPlayers)
	}

	cfg := e.defaults
	cfg.MaxPlayers = maxPlayers

	r, err := NewRoom(roomID, hostID, cfg, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	if _, exists := e.rooms[roomID]; exists {
		e.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrAlreadyExists, roomID)
	}
	e.rooms[roomID] = r
	e.mu.Unlock()

	e.logger.Info("Room created", "room", roomID, "host", hostID, "maxPlayers", maxPlayers)

	snap := r.Snapshot()
	e.publish(EventTypeRoomCreated, "create_room", snap, nil)
	return snap, nil
}

// JoinRoom seats a player in a room that has not started its round
func (e *Engine) JoinRoom(roomID, playerID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.Join(playerID, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Info("Player joined", "room", roomID, "player", playerID, "players", len(snap.Players))
	e.publish(EventTypeRoomUpdated, "join_room", snap, nil)
	return snap, nil
}

// LeaveRoom removes a player between rounds. The room closes when the host
// leaves or the last player goes.
func (e *Engine) LeaveRoom(roomID, playerID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, closing, err := r.Leave(playerID, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Info("Player left", "room", roomID, "player", playerID)
	if closing {
		e.remove(roomID)
		e.logger.Info("Room closed", "room", roomID, "reason", "host or last player left")
		e.publish(EventTypeRoomClosed, "leave_room", snap, nil)
		return snap, nil
	}

	e.publish(EventTypeRoomUpdated, "leave_room", snap, nil)
	return snap, nil
}

// StartRound opens betting with a freshly shuffled local shoe
func (e *Engine) StartRound(roomID, requesterID string) (Snapshot, error) {
	return e.startRound(roomID, requesterID, e.localDeck)
}

// StartRoundWithDeck opens betting with a shoe prepared by the caller, such
// as one fetched from a remote deck service
func (e *Engine) StartRoundWithDeck(roomID, requesterID string, d *deck.Deck) (Snapshot, error) {
	if d == nil {
		return Snapshot{}, fmt.Errorf("%w: deck is required", ErrInvalidArgument)
	}
	return e.startRound(roomID, requesterID, func(int) (*deck.Deck, error) { return d, nil })
}

func (e *Engine) startRound(roomID, requesterID string, src DeckSource) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.StartRound(requesterID, src, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Info("Round started", "room", roomID, "round", snap.Round, "by", requesterID, "deck", snap.DeckRemaining)
	e.publish(EventTypeRoomUpdated, "start_round", snap, nil)
	return snap, nil
}

// DeckSetsNeeded reports how many 52-card sets the room's next shoe needs
func (e *Engine) DeckSetsNeeded(roomID string) (int, error) {
	r, err := e.room(roomID)
	if err != nil {
		return 0, err
	}
	return r.SetsNeeded(), nil
}

// PlaceBet moves chips from the player's purse to their bet
func (e *Engine) PlaceBet(roomID, playerID string, amount int) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.PlaceBet(playerID, amount, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Debug("Bet placed", "room", roomID, "player", playerID, "amount", amount)
	e.publish(EventTypeRoomUpdated, "place_bet", snap, nil)
	return snap, nil
}

// AllBetsIn reports whether every player in a betting room has staked
func (e *Engine) AllBetsIn(roomID string) bool {
	r, err := e.room(roomID)
	if err != nil {
		return false
	}
	return r.AllBetsIn()
}

// DealInitial deals the opening two cards to each betting player and the dealer
func (e *Engine) DealInitial(roomID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.DealInitial(e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Info("Cards dealt", "room", roomID, "dealerUp", snap.Dealer.Cards, "turn", snap.Turn)
	e.publish(EventTypeRoomUpdated, "deal", snap, nil)
	return snap, nil
}

// PlayerAction applies a hit or stand from the player whose turn it is
func (e *Engine) PlayerAction(roomID, playerID string, action Action) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.Act(playerID, action, e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	if p, ok := snap.Player(playerID); ok {
		e.logger.Debug("Player acted", "room", roomID, "player", playerID, "action", action, "score", p.Score, "status", p.Status)
	}
	e.publish(EventTypeRoomUpdated, "player_action", snap, nil)
	return snap, nil
}

// DealerPlay plays out the dealer's hand
func (e *Engine) DealerPlay(roomID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.DealerPlay(e.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}

	e.logger.Info("Dealer played", "room", roomID, "hand", Hand(snap.Dealer.Cards), "score", snap.Dealer.Score)
	e.publish(EventTypeRoomUpdated, "dealer_play", snap, nil)
	return snap, nil
}

// Settle resolves the round, pays out and returns the room to pre-game
func (e *Engine) Settle(roomID string) (map[string]Outcome, Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return nil, Snapshot{}, err
	}

	outcomes, snap, err := r.Settle(e.clock.Now())
	if err != nil {
		return nil, Snapshot{}, err
	}

	e.logger.Info("Round settled", "room", roomID, "round", snap.Round, "outcomes", outcomes)
	e.publish(EventTypeRoundSettled, "settle", snap, outcomes)
	return outcomes, snap, nil
}

// GetRoom returns a snapshot of the room
func (e *Engine) GetRoom(roomID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// ListRooms returns snapshots of all open rooms ordered by room ID
func (e *Engine) ListRooms() []Snapshot {
	e.mu.RLock()
	rooms := make([]*Room, 0, len(e.rooms))
	for _, r := range e.rooms {
		rooms = append(rooms, r)
	}
	e.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })

	snaps := make([]Snapshot, len(rooms))
	for i, r := range rooms {
		snaps[i] = r.Snapshot()
	}
	return snaps
}

// CloseRoom ends the session. Only the host may close a room.
func (e *Engine) CloseRoom(roomID, requesterID string) (Snapshot, error) {
	r, err := e.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := r.Close(requesterID)
	if err != nil {
		return Snapshot{}, err
	}

	e.remove(roomID)
	e.logger.Info("Room closed", "room", roomID, "reason", "host closed")
	e.publish(EventTypeRoomClosed, "close_room", snap, nil)
	return snap, nil
}

// ReapIdle closes rooms that have waited in pre-game for longer than maxIdle
// and returns their IDs
func (e *Engine) ReapIdle(maxIdle time.Duration) []string {
	cutoff := e.clock.Now().Add(-maxIdle)

	e.mu.RLock()
	rooms := make([]*Room, 0, len(e.rooms))
	for _, r := range e.rooms {
		rooms = append(rooms, r)
	}
	e.mu.RUnlock()

	var reaped []string
	for _, r := range rooms {
		snap, closed := r.closeIfIdle(cutoff)
		if !closed {
			continue
		}
		e.remove(r.ID())
		reaped = append(reaped, r.ID())
		e.logger.Info("Room closed", "room", r.ID(), "reason", "idle", "maxIdle", maxIdle)
		e.publish(EventTypeRoomClosed, "reap", snap, nil)
	}
	sort.Strings(reaped)
	return reaped
}

// RunReaper calls ReapIdle every interval until ctx is done
func (e *Engine) RunReaper(ctx context.Context, interval, maxIdle time.Duration) error {
	w := e.clock.TickerFunc(ctx, interval, func() error {
		e.ReapIdle(maxIdle)
		return nil
	}, "reaper")

	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
