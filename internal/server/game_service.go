package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
)

// ErrDeckUnavailable wraps failures of the remote deck source
var ErrDeckUnavailable = errors.New("deck source unavailable")

// DeckFetcher supplies shoes from outside the engine
type DeckFetcher interface {
	NewShuffledDeck(ctx context.Context, count int, jokers bool) (*deck.Deck, error)
}

// HistorySource returns recorded rounds for a room
type HistorySource interface {
	History(ctx context.Context, roomID string) ([]ledger.Record, error)
}

// Broadcaster delivers messages to the players enrolled in a room
type Broadcaster interface {
	BroadcastToRoom(snap game.Snapshot, msg *Message, exceptPlayer string)
}

// GameService runs player commands against the engine, advances rounds when
// auto-advance is on and tells the other players in the room what changed.
// Every method returns the room as it stands after the command for the
// caller's reply.
type GameService struct {
	engine      *game.Engine
	decks       DeckFetcher
	history     HistorySource
	broadcaster Broadcaster
	autoAdvance bool
	jokers      bool
	deckTimeout time.Duration
	maxPlayers  int
	logger      *log.Logger
}

// NewGameService creates a service over engine. decks and history may be nil.
func NewGameService(engine *game.Engine, cfg *Config, decks DeckFetcher, history HistorySource, broadcaster Broadcaster, logger *log.Logger) *GameService {
	gs := &GameService{
		engine:      engine,
		decks:       decks,
		history:     history,
		broadcaster: broadcaster,
		autoAdvance: cfg.AutoAdvance(),
		jokers:      cfg.Deck.Jokers,
		deckTimeout: cfg.DeckTimeout(),
		maxPlayers:  cfg.Table.MaxPlayers,
		logger:      logger.WithPrefix("game"),
	}
	engine.Events().Subscribe(gs)
	return gs
}

// OnEvent tells players when the reaper closes their room
func (gs *GameService) OnEvent(ev game.RoomEvent) {
	if ev.Type == game.EventTypeRoomClosed && ev.Command == "reap" {
		gs.broadcastClosed(ev.Snapshot, "idle", "")
	}
}

func (gs *GameService) broadcastState(snap game.Snapshot, actor string) {
	msg, err := NewMessage(MessageTypeRoomState, snap)
	if err != nil {
		gs.logger.Error("Failed to create room state message", "error", err)
		return
	}
	gs.broadcaster.BroadcastToRoom(snap, msg, actor)
}

func (gs *GameService) broadcastClosed(snap game.Snapshot, reason, actor string) {
	msg, err := NewMessage(MessageTypeRoomClosed, RoomClosedData{RoomID: snap.RoomID, Reason: reason})
	if err != nil {
		gs.logger.Error("Failed to create room closed message", "error", err)
		return
	}
	gs.broadcaster.BroadcastToRoom(snap, msg, actor)
}

func (gs *GameService) broadcastSettled(snap game.Snapshot, outcomes map[string]game.Outcome) {
	msg, err := NewMessage(MessageTypeRoundSettled, RoundSettledData{
		RoomID:   snap.RoomID,
		Round:    snap.Round,
		Outcomes: outcomes,
		Room:     snap,
	})
	if err != nil {
		gs.logger.Error("Failed to create round settled message", "error", err)
		return
	}
	gs.broadcaster.BroadcastToRoom(snap, msg, "")
}

// requireMember returns the room if player is enrolled in it
func (gs *GameService) requireMember(roomID, player string) (game.Snapshot, error) {
	snap, err := gs.engine.GetRoom(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	if _, ok := snap.Player(player); !ok {
		return game.Snapshot{}, fmt.Errorf("%w: player %s is not in room %s", game.ErrNotFound, player, roomID)
	}
	return snap, nil
}

// CreateRoom opens a room hosted by player. An empty room ID is generated.
func (gs *GameService) CreateRoom(player string, data CreateRoomData) (game.Snapshot, error) {
	roomID := data.RoomID
	if roomID == "" {
		roomID = "room-" + uuid.NewString()[:8]
	}
	maxPlayers := data.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = gs.maxPlayers
	}
	return gs.engine.CreateRoom(roomID, player, maxPlayers)
}

// JoinRoom seats player in a room
func (gs *GameService) JoinRoom(player, roomID string) (game.Snapshot, error) {
	snap, err := gs.engine.JoinRoom(roomID, player)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastState(snap, player)
	return snap, nil
}

// LeaveRoom removes player from a room between rounds
func (gs *GameService) LeaveRoom(player, roomID string) (game.Snapshot, error) {
	snap, err := gs.engine.LeaveRoom(roomID, player)
	if err != nil {
		return game.Snapshot{}, err
	}
	if snap.Status == game.StatusClosed {
		gs.broadcastClosed(snap, "host left", player)
	} else {
		gs.broadcastState(snap, player)
	}
	return snap, nil
}

// StartRound opens betting. With a remote deck source the shoe is fetched
// before the room is locked.
func (gs *GameService) StartRound(ctx context.Context, player, roomID string) (game.Snapshot, error) {
	var (
		snap game.Snapshot
		err  error
	)
	if gs.decks == nil {
		snap, err = gs.engine.StartRound(roomID, player)
	} else {
		snap, err = gs.startWithRemoteDeck(ctx, player, roomID)
	}
	if err != nil {
		return game.Snapshot{}, err
	}

	gs.broadcastState(snap, player)
	return snap, nil
}

func (gs *GameService) startWithRemoteDeck(ctx context.Context, player, roomID string) (game.Snapshot, error) {
	current, err := gs.requireMember(roomID, player)
	if err != nil {
		return game.Snapshot{}, err
	}
	if current.Status != game.StatusPreGame {
		return game.Snapshot{}, fmt.Errorf("%w: room %s is in %s", game.ErrInvalidState, roomID, current.Status)
	}

	sets, err := gs.engine.DeckSetsNeeded(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	if gs.deckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gs.deckTimeout)
		defer cancel()
	}

	d, err := gs.decks.NewShuffledDeck(ctx, sets, gs.jokers)
	if err != nil {
		gs.logger.Error("Failed to fetch remote deck", "room", roomID, "sets", sets, "error", err)
		return game.Snapshot{}, fmt.Errorf("%w: %v", ErrDeckUnavailable, err)
	}
	return gs.engine.StartRoundWithDeck(roomID, player, d)
}

// PlaceBet stakes chips for player. With auto-advance the cards are dealt
// as soon as everyone has bet.
func (gs *GameService) PlaceBet(player string, data PlaceBetData) (game.Snapshot, error) {
	snap, err := gs.engine.PlaceBet(data.RoomID, player, data.Amount)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastState(snap, player)

	if gs.autoAdvance && gs.engine.AllBetsIn(data.RoomID) {
		snap = gs.advance(data.RoomID, player, snap, gs.engine.DealInitial)
	}
	return snap, nil
}

// Deal deals the opening cards
func (gs *GameService) Deal(player, roomID string) (game.Snapshot, error) {
	if _, err := gs.requireMember(roomID, player); err != nil {
		return game.Snapshot{}, err
	}
	snap, err := gs.engine.DealInitial(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastState(snap, player)
	return gs.maybeFinish(roomID, player, snap), nil
}

// PlayerAction applies a hit or stand
func (gs *GameService) PlayerAction(player string, data PlayerActionData) (game.Snapshot, error) {
	action, err := game.ParseAction(data.Action)
	if err != nil {
		return game.Snapshot{}, err
	}
	snap, err := gs.engine.PlayerAction(data.RoomID, player, action)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastState(snap, player)
	return gs.maybeFinish(data.RoomID, player, snap), nil
}

// DealerPlay plays out the dealer's hand
func (gs *GameService) DealerPlay(player, roomID string) (game.Snapshot, error) {
	if _, err := gs.requireMember(roomID, player); err != nil {
		return game.Snapshot{}, err
	}
	snap, err := gs.engine.DealerPlay(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastState(snap, player)

	if gs.autoAdvance {
		snap = gs.advanceSettle(roomID, snap)
	}
	return snap, nil
}

// Settle resolves the round and pays out
func (gs *GameService) Settle(player, roomID string) (game.Snapshot, error) {
	if _, err := gs.requireMember(roomID, player); err != nil {
		return game.Snapshot{}, err
	}
	outcomes, snap, err := gs.engine.Settle(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastSettled(snap, outcomes)
	return snap, nil
}

// GetRoom returns the room's snapshot
func (gs *GameService) GetRoom(roomID string) (game.Snapshot, error) {
	return gs.engine.GetRoom(roomID)
}

// ListRooms summarises every open room
func (gs *GameService) ListRooms() []RoomInfo {
	snaps := gs.engine.ListRooms()
	rooms := make([]RoomInfo, len(snaps))
	for i, snap := range snaps {
		rooms[i] = RoomInfoFromSnapshot(snap)
	}
	return rooms
}

// CloseRoom ends a room. Host only.
func (gs *GameService) CloseRoom(player, roomID string) (game.Snapshot, error) {
	snap, err := gs.engine.CloseRoom(roomID, player)
	if err != nil {
		return game.Snapshot{}, err
	}
	gs.broadcastClosed(snap, "closed by host", player)
	return snap, nil
}

// History returns the settled rounds recorded for a room
func (gs *GameService) History(ctx context.Context, roomID string) ([]ledger.Record, bool, error) {
	if gs.history == nil {
		return nil, false, nil
	}
	records, err := gs.history.History(ctx, roomID)
	return records, true, err
}

// Disconnect removes a departed player from rooms that are between rounds.
// Rooms mid-round keep the seat so the round can still be finished.
func (gs *GameService) Disconnect(player string) {
	for _, snap := range gs.engine.ListRooms() {
		if _, ok := snap.Player(player); !ok || snap.Status != game.StatusPreGame {
			continue
		}
		if _, err := gs.LeaveRoom(player, snap.RoomID); err != nil {
			gs.logger.Debug("Could not remove disconnected player", "player", player, "room", snap.RoomID, "error", err)
		}
	}
}

// maybeFinish runs the dealer and settlement once no player is left to act
func (gs *GameService) maybeFinish(roomID, actor string, snap game.Snapshot) game.Snapshot {
	if !gs.autoAdvance || snap.Status != game.StatusDealerTurn {
		return snap
	}
	snap = gs.advance(roomID, actor, snap, gs.engine.DealerPlay)
	return gs.advanceSettle(roomID, snap)
}

// advance runs one automatic step and, after a deal, finishes the round if
// every hand was a natural. A step that loses a race with another player's
// command is not an error.
func (gs *GameService) advance(roomID, actor string, current game.Snapshot, step func(string) (game.Snapshot, error)) game.Snapshot {
	snap, err := step(roomID)
	if err != nil {
		gs.logAdvanceError(roomID, err)
		return current
	}
	gs.broadcastState(snap, actor)

	if current.Status == game.StatusBetting {
		return gs.maybeFinish(roomID, actor, snap)
	}
	return snap
}

func (gs *GameService) advanceSettle(roomID string, current game.Snapshot) game.Snapshot {
	if current.Status != game.StatusSettlement {
		return current
	}
	outcomes, snap, err := gs.engine.Settle(roomID)
	if err != nil {
		gs.logAdvanceError(roomID, err)
		return current
	}
	gs.broadcastSettled(snap, outcomes)
	return snap
}

func (gs *GameService) logAdvanceError(roomID string, err error) {
	if errors.Is(err, game.ErrInvalidState) {
		gs.logger.Debug("Auto-advance skipped", "room", roomID, "error", err)
		return
	}
	gs.logger.Error("Auto-advance failed", "room", roomID, "error", err)
}
