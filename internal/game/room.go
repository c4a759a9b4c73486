package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/blackjack/internal/deck"
)

// The longest hand that can still be live in a single deck is
// A A A A 2 2 2 2 3 3 3. Deck sizing uses it as the per-hand upper bound.
const maxCardsPerHand = 11

// RoomConfig holds the table rules for one room
type RoomConfig struct {
	MaxPlayers    int // Seats at the table, host included
	StartingPurse int // Chips given to each player on joining
	MinBet        int // Smallest total bet per round
	MaxBet        int // Largest total bet per round, 0 for no limit
	Decks         int // Minimum number of 52-card sets in the shoe
}

// DefaultRoomConfig returns the rules used when the engine is not told otherwise
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MaxPlayers:    7,
		StartingPurse: 1000,
		MinBet:        1,
		Decks:         1,
	}
}

// Validate checks the table rules
func (c RoomConfig) Validate() error {
	if c.MaxPlayers < 1 {
		return fmt.Errorf("%w: max players must be at least 1", ErrInvalidArgument)
	}
	if c.StartingPurse < 0 {
		return fmt.Errorf("%w: starting purse cannot be negative", ErrInvalidArgument)
	}
	if c.MinBet < 1 {
		return fmt.Errorf("%w: minimum bet must be at least 1", ErrInvalidArgument)
	}
	if c.MaxBet != 0 && c.MaxBet < c.MinBet {
		return fmt.Errorf("%w: maximum bet %d below minimum %d", ErrInvalidArgument, c.MaxBet, c.MinBet)
	}
	if c.Decks < 1 {
		return fmt.Errorf("%w: deck count must be at least 1", ErrInvalidArgument)
	}
	return nil
}

// DeckSource produces the shoe for a round given the number of 52-card sets
// the room needs
type DeckSource func(sets int) (*deck.Deck, error)

// Seat is one enrolled player's state at the table
type Seat struct {
	PlayerID    string
	Hand        Hand
	Bet         int
	Purse       int
	Status      PlayerStatus
	LastOutcome Outcome
}

// Room is a blackjack table: the aggregate that owns the deck, the hands,
// the bets and the purses. All methods are safe for concurrent use; each
// holds the room lock for its full duration.
type Room struct {
	mu sync.Mutex

	id     string
	table  string // Unique per NewRoom, so a reused ID starts a new table
	hostID string
	cfg    RoomConfig

	order []string
	seats map[string]*Seat

	status       Status
	round        int
	deck         *deck.Deck
	dealer       Hand
	holeRevealed bool
	turn         int // index into order, -1 when nobody is acting

	version      uint64 // Bumped by every state change
	lastActivity time.Time
}

// NewRoom creates a room in pre-game with the host enrolled
func NewRoom(id, hostID string, cfg RoomConfig, now time.Time) (*Room, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: room id is required", ErrInvalidArgument)
	}
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id is required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("room %s table id: %w", id, err)
	}

	r := &Room{
		id:           id,
		table:        table.String(),
		hostID:       hostID,
		cfg:          cfg,
		seats:        make(map[string]*Seat, cfg.MaxPlayers),
		status:       StatusPreGame,
		turn:         -1,
		lastActivity: now,
	}
	r.enroll(hostID)
	r.version = 1
	return r, nil
}

// ID returns the room identifier
func (r *Room) ID() string { return r.id }

// Table returns the identifier of this room instance. Room IDs may be reused
// once a room closes; table IDs are not, and they sort by creation time.
func (r *Room) Table() string { return r.table }

// HostID returns the host's player identifier
func (r *Room) HostID() string { return r.hostID }

// Status returns the room's current lifecycle state
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastActivity returns when the room last accepted a command
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Snapshot returns the room as players see it
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Room) enroll(playerID string) {
	r.order = append(r.order, playerID)
	r.seats[playerID] = &Seat{
		PlayerID: playerID,
		Purse:    r.cfg.StartingPurse,
		Status:   PlayerWaiting,
	}
}

// touch records a state change made by a player command
func (r *Room) touch(now time.Time) {
	r.version++
	r.lastActivity = now
}

func (r *Room) requireStatus(want Status) error {
	if r.status != want {
		return fmt.Errorf("%w: room %s is in %s, want %s", ErrInvalidState, r.id, r.status, want)
	}
	return nil
}

func (r *Room) seat(playerID string) (*Seat, error) {
	s, ok := r.seats[playerID]
	if !ok {
		return nil, fmt.Errorf("%w: player %s is not in room %s", ErrNotFound, playerID, r.id)
	}
	return s, nil
}

// Join enrolls a player. Only allowed before a round starts.
func (r *Room) Join(playerID string, now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if playerID == "" {
		return Snapshot{}, fmt.Errorf("%w: player id is required", ErrInvalidArgument)
	}
	if _, ok := r.seats[playerID]; ok {
		return Snapshot{}, fmt.Errorf("%w: %s in room %s", ErrAlreadyEnrolled, playerID, r.id)
	}
	if err := r.requireStatus(StatusPreGame); err != nil {
		return Snapshot{}, err
	}
	if len(r.order) >= r.cfg.MaxPlayers {
		return Snapshot{}, fmt.Errorf("%w: room %s has %d of %d seats taken", ErrRoomFull, r.id, len(r.order), r.cfg.MaxPlayers)
	}

	r.enroll(playerID)
	r.touch(now)
	return r.snapshot(), nil
}

// Leave removes a player before a round starts. It reports whether the room
// should be closed: the host left, or nobody is left.
func (r *Room) Leave(playerID string, now time.Time) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.seat(playerID); err != nil {
		return Snapshot{}, false, err
	}
	if err := r.requireStatus(StatusPreGame); err != nil {
		return Snapshot{}, false, err
	}

	delete(r.seats, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.touch(now)

	closing := playerID == r.hostID || len(r.order) == 0
	if closing {
		r.status = StatusClosed
	}
	return r.snapshot(), closing, nil
}

// Close moves the room to its terminal state. Only the host may close it.
func (r *Room) Close(requesterID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requesterID != r.hostID {
		return Snapshot{}, fmt.Errorf("%w: %s cannot close room %s", ErrNotHost, requesterID, r.id)
	}
	if r.status == StatusClosed {
		return Snapshot{}, fmt.Errorf("%w: room %s is already closed", ErrInvalidState, r.id)
	}

	r.status = StatusClosed
	r.turn = -1
	r.version++
	return r.snapshot(), nil
}

// closeIfIdle closes a room that has sat in pre-game since before cutoff
func (r *Room) closeIfIdle(cutoff time.Time) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPreGame || !r.lastActivity.Before(cutoff) {
		return Snapshot{}, false
	}
	r.status = StatusClosed
	r.version++
	return r.snapshot(), true
}

// SetsNeeded returns how many 52-card sets the next round's shoe should hold
func (r *Room) SetsNeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setsNeeded()
}

// setsNeeded gives every hand at the table, dealer included, room for
// maxCardsPerHand cards.
func (r *Room) setsNeeded() int {
	needed := (len(r.order) + 1) * maxCardsPerHand
	sets := (needed + deck.CardsPerSet - 1) / deck.CardsPerSet
	return max(sets, r.cfg.Decks)
}

// StartRound opens betting with a fresh shoe from src. The host may always
// start; any enrolled player may start once every seat is taken.
func (r *Room) StartRound(requesterID string, src DeckSource, now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, enrolled := r.seats[requesterID]
	full := len(r.order) == r.cfg.MaxPlayers
	if requesterID != r.hostID && !(enrolled && full) {
		return Snapshot{}, fmt.Errorf("%w: %s cannot start a round in room %s", ErrNotHost, requesterID, r.id)
	}
	if err := r.requireStatus(StatusPreGame); err != nil {
		return Snapshot{}, err
	}

	d, err := src(r.setsNeeded())
	if err != nil {
		return Snapshot{}, fmt.Errorf("preparing deck for room %s: %w", r.id, err)
	}

	r.deck = d
	r.dealer = nil
	r.holeRevealed = false
	r.turn = -1
	r.round++
	for _, s := range r.seats {
		s.Hand = nil
		s.Bet = 0
		s.Status = PlayerWaiting
		s.LastOutcome = OutcomeNone
	}
	r.status = StatusBetting
	r.touch(now)
	return r.snapshot(), nil
}

// PlaceBet moves chips from a player's purse onto the table. Repeated bets in
// the same round add to the stake.
func (r *Room) PlaceBet(playerID string, amount int, now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.seat(playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.requireStatus(StatusBetting); err != nil {
		return Snapshot{}, err
	}
	if amount <= 0 {
		return Snapshot{}, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidBet, amount)
	}
	if amount > s.Purse {
		return Snapshot{}, fmt.Errorf("%w: %s bet %d with %d in purse", ErrInsufficientFunds, playerID, amount, s.Purse)
	}

	total := s.Bet + amount
	if total < r.cfg.MinBet {
		return Snapshot{}, fmt.Errorf("%w: total bet %d below table minimum %d", ErrInvalidBet, total, r.cfg.MinBet)
	}
	if r.cfg.MaxBet > 0 && total > r.cfg.MaxBet {
		return Snapshot{}, fmt.Errorf("%w: total bet %d above table maximum %d", ErrInvalidBet, total, r.cfg.MaxBet)
	}

	s.Purse -= amount
	s.Bet = total
	r.touch(now)
	return r.snapshot(), nil
}

// AllBetsIn reports whether every enrolled player has a bet down
func (r *Room) AllBetsIn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusBetting {
		return false
	}
	for _, s := range r.seats {
		if s.Bet == 0 {
			return false
		}
	}
	return true
}

// DealInitial deals two cards to each betting player and to the dealer,
// one card per pass in enrollment order with the dealer last. Players
// without a bet sit the round out.
func (r *Room) DealInitial(now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireStatus(StatusBetting); err != nil {
		return Snapshot{}, err
	}

	var bettors []*Seat
	for _, id := range r.order {
		if s := r.seats[id]; s.Bet > 0 {
			bettors = append(bettors, s)
		}
	}
	if len(bettors) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no bets placed in room %s", ErrInvalidState, r.id)
	}

	need := 2 * (len(bettors) + 1)
	if r.deck.Remaining() < need {
		return Snapshot{}, fmt.Errorf("dealing room %s: %w: want %d, have %d", r.id, ErrEmptyDeck, need, r.deck.Remaining())
	}
	cards, err := r.deck.Draw(need)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dealing room %s: %w", r.id, err)
	}

	r.status = StatusDealing
	for _, s := range r.seats {
		if s.Bet == 0 {
			s.Status = PlayerSittingOut
		}
	}

	// One card per pass to each bettor, then the dealer
	for pass := 0; pass < 2; pass++ {
		for _, s := range bettors {
			s.Hand = append(s.Hand, cards[0])
			cards = cards[1:]
		}
		r.dealer = append(r.dealer, cards[0])
		cards = cards[1:]
	}

	for _, s := range bettors {
		s.Status = PlayerPlaying
		if s.Hand.Score() == BlackjackScore {
			s.Status = PlayerStood
		}
	}

	r.turn = -1
	r.advanceTurn()
	r.touch(now)
	return r.snapshot(), nil
}

// advanceTurn moves the turn to the next player still playing, or hands
// over to the dealer when nobody is left. The hole card is turned over as
// soon as the dealer's turn begins.
func (r *Room) advanceTurn() {
	for i := r.turn + 1; i < len(r.order); i++ {
		if r.seats[r.order[i]].Status == PlayerPlaying {
			r.turn = i
			r.status = StatusPlayerTurns
			return
		}
	}
	r.turn = -1
	r.status = StatusDealerTurn
	r.holeRevealed = true
}

// CurrentTurn returns the player whose turn it is, or "" if nobody is acting
func (r *Room) CurrentTurn() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTurn()
}

func (r *Room) currentTurn() string {
	if r.turn < 0 || r.turn >= len(r.order) {
		return ""
	}
	return r.order[r.turn]
}

// Act applies a hit or stand for the player whose turn it is
func (r *Room) Act(playerID string, action Action, now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireStatus(StatusPlayerTurns); err != nil {
		return Snapshot{}, err
	}
	if current := r.currentTurn(); playerID != current {
		return Snapshot{}, fmt.Errorf("%w: waiting on %s in room %s", ErrNotYourTurn, current, r.id)
	}

	s := r.seats[playerID]
	switch action {
	case Hit:
		c, err := r.deck.DrawOne()
		if err != nil {
			return Snapshot{}, fmt.Errorf("hit for %s in room %s: %w", playerID, r.id, err)
		}
		s.Hand = append(s.Hand, c)
		switch score := s.Hand.Score(); {
		case score > BlackjackScore:
			s.Status = PlayerBusted
			r.advanceTurn()
		case score == BlackjackScore:
			s.Status = PlayerStood
			r.advanceTurn()
		}
	case Stand:
		s.Status = PlayerStood
		r.advanceTurn()
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, action)
	}

	r.touch(now)
	return r.snapshot(), nil
}

// DealerPlay reveals the hole card and draws under the dealer policy. The
// draws are made against a copy of the shoe so a failure leaves the room as
// it was.
func (r *Room) DealerPlay(now time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireStatus(StatusDealerTurn); err != nil {
		return Snapshot{}, err
	}

	shoe := r.deck.Clone()
	hand, err := PlayDealer(r.dealer, shoe)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dealer play in room %s: %w", r.id, err)
	}

	r.deck = shoe
	r.dealer = hand
	r.holeRevealed = true
	r.status = StatusSettlement
	r.touch(now)
	return r.snapshot(), nil
}

// Settle resolves every betting player against the dealer, pays out, and
// returns the room to pre-game. All purses change under one lock hold.
func (r *Room) Settle(now time.Time) (map[string]Outcome, Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireStatus(StatusSettlement); err != nil {
		return nil, Snapshot{}, err
	}

	dealer := ResultOf(r.dealer)
	outcomes := make(map[string]Outcome, len(r.order))
	for _, id := range r.order {
		s := r.seats[id]
		if s.Bet == 0 {
			continue
		}

		var o Outcome
		if s.Status == PlayerBusted {
			o = OutcomeBust
		} else {
			o = Resolve(ResultOf(s.Hand), dealer)
		}

		s.Purse += o.Payout(s.Bet)
		s.Bet = 0
		s.LastOutcome = o
		outcomes[id] = o
	}

	r.status = StatusPreGame
	r.touch(now)
	return outcomes, r.snapshot(), nil
}
