package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() RoomConfig {
	cfg := DefaultRoomConfig()
	cfg.StartingPurse = 100
	return cfg
}

func TestEngineSingleRoundPush(t *testing.T) {
	e := NewTestEngine(WithRoomDefaults(testDefaults()))

	_, err := e.CreateRoom("r1", "alice", 1)
	require.NoError(t, err)

	_, err = e.StartRoundWithDeck("r1", "alice", StackedDeck("Kh 9s 3d 7c 8h 5s"))
	require.NoError(t, err)

	_, err = e.PlaceBet("r1", "alice", 10)
	require.NoError(t, err)
	assert.True(t, e.AllBetsIn("r1"))

	snap, err := e.DealInitial("r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Turn)
	assert.Equal(t, 9, snap.Dealer.Score)

	snap, err = e.PlayerAction("r1", "alice", Hit)
	require.NoError(t, err)
	alice, _ := snap.Player("alice")
	assert.Equal(t, 21, alice.Score)
	assert.Equal(t, PlayerStood, alice.Status)
	assert.Equal(t, StatusDealerTurn, snap.Status)

	snap, err = e.DealerPlay("r1")
	require.NoError(t, err)
	assert.Equal(t, 21, snap.Dealer.Score)

	outcomes, snap, err := e.Settle("r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]Outcome{"alice": OutcomePush}, outcomes)
	alice, _ = snap.Player("alice")
	assert.Equal(t, 100, alice.Purse)
	assert.Equal(t, StatusPreGame, snap.Status)
}

func TestEngineCreateRoom(t *testing.T) {
	e := NewTestEngine()

	_, err := e.CreateRoom("r1", "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.CreateRoom("r1", "alice", DefaultMaxPlayersLimit+1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	snap, err := e.CreateRoom("r1", "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.MaxPlayers)
	assert.Equal(t, "alice", snap.HostID)

	_, err = e.CreateRoom("r1", "bob", 3)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestEngineUnknownRoom(t *testing.T) {
	e := NewTestEngine()

	_, err := e.GetRoom("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.JoinRoom("nope", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.StartRound("nope", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = e.Settle("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, e.AllBetsIn("nope"))
}

func TestEngineListRoomsSorted(t *testing.T) {
	e := NewTestEngine()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := e.CreateRoom(id, "host-"+id, 2)
		require.NoError(t, err)
	}

	var ids []string
	for _, snap := range e.ListRooms() {
		ids = append(ids, snap.RoomID)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, ids)
}

func TestEngineCloseRoom(t *testing.T) {
	e := NewTestEngine()
	_, err := e.CreateRoom("r1", "alice", 2)
	require.NoError(t, err)
	_, err = e.JoinRoom("r1", "bob")
	require.NoError(t, err)

	_, err = e.CloseRoom("r1", "bob")
	assert.ErrorIs(t, err, ErrNotHost)

	snap, err := e.CloseRoom("r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, snap.Status)

	_, err = e.GetRoom("r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, e.ListRooms())
}

func TestEngineLeaveRoom(t *testing.T) {
	e := NewTestEngine()
	_, err := e.CreateRoom("r1", "alice", 3)
	require.NoError(t, err)
	_, err = e.JoinRoom("r1", "bob")
	require.NoError(t, err)

	snap, err := e.LeaveRoom("r1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, snap.PlayerIDs())

	_, err = e.LeaveRoom("r1", "alice")
	require.NoError(t, err)
	_, err = e.GetRoom("r1")
	assert.ErrorIs(t, err, ErrNotFound, "room is removed when the host leaves")
}

func TestEngineStartRoundShufflesLocalShoe(t *testing.T) {
	e := NewTestEngine()
	_, err := e.CreateRoom("r1", "alice", 2)
	require.NoError(t, err)

	sets, err := e.DeckSetsNeeded("r1")
	require.NoError(t, err)
	assert.Equal(t, 1, sets)

	snap, err := e.StartRound("r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 52, snap.DeckRemaining)
	assert.Equal(t, StatusBetting, snap.Status)

	_, err = e.StartRoundWithDeck("r1", "alice", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEngineSeedIsDeterministic(t *testing.T) {
	deal := func() []string {
		e := NewTestEngine(WithSeed(7))
		_, err := e.CreateRoom("r1", "alice", 1)
		require.NoError(t, err)
		_, err = e.StartRound("r1", "alice")
		require.NoError(t, err)
		_, err = e.PlaceBet("r1", "alice", 1)
		require.NoError(t, err)
		snap, err := e.DealInitial("r1")
		require.NoError(t, err)

		alice, _ := snap.Player("alice")
		var codes []string
		for _, c := range append(alice.Hand, snap.Dealer.Cards...) {
			codes = append(codes, c.Code())
		}
		return codes
	}

	assert.Equal(t, deal(), deal())
}

func TestEngineEvents(t *testing.T) {
	e := NewTestEngine(WithRoomDefaults(testDefaults()))

	var mu sync.Mutex
	var events []RoomEvent
	unsubscribe := e.Events().Subscribe(EventSubscriberFunc(func(ev RoomEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))

	_, err := e.CreateRoom("r1", "alice", 1)
	require.NoError(t, err)
	_, err = e.StartRoundWithDeck("r1", "alice", StackedDeck("Kh 9s 3d 7c 8h 5s"))
	require.NoError(t, err)
	_, err = e.PlaceBet("r1", "alice", 10)
	require.NoError(t, err)
	_, err = e.DealInitial("r1")
	require.NoError(t, err)

	// Failed commands publish nothing
	_, err = e.PlayerAction("r1", "bob", Hit)
	require.Error(t, err)

	_, err = e.PlayerAction("r1", "alice", Hit)
	require.NoError(t, err)
	_, err = e.DealerPlay("r1")
	require.NoError(t, err)
	_, _, err = e.Settle("r1")
	require.NoError(t, err)

	unsubscribe()
	_, err = e.CloseRoom("r1", "alice")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	var commands []string
	for _, ev := range events {
		assert.Equal(t, "r1", ev.RoomID)
		commands = append(commands, ev.Command)
	}
	assert.Equal(t, []string{"create_room", "start_round", "place_bet", "deal", "player_action", "dealer_play", "settle"}, commands)

	assert.Equal(t, EventTypeRoomCreated, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, EventTypeRoundSettled, last.Type)
	assert.Equal(t, map[string]Outcome{"alice": OutcomePush}, last.Outcomes)
}

func TestEngineReapIdle(t *testing.T) {
	mClock := quartz.NewMock(t)
	e := NewTestEngine(WithClock(mClock))

	_, err := e.CreateRoom("idle", "alice", 2)
	require.NoError(t, err)
	_, err = e.CreateRoom("busy", "bob", 2)
	require.NoError(t, err)
	_, err = e.CreateRoom("playing", "carol", 2)
	require.NoError(t, err)
	_, err = e.StartRound("playing", "carol")
	require.NoError(t, err)

	var closed []string
	e.Events().Subscribe(EventSubscriberFunc(func(ev RoomEvent) {
		if ev.Type == EventTypeRoomClosed {
			closed = append(closed, ev.RoomID)
		}
	}))

	ctx := context.Background()
	mClock.Advance(4 * time.Minute).MustWait(ctx)
	_, err = e.JoinRoom("busy", "dave")
	require.NoError(t, err)
	mClock.Advance(2 * time.Minute).MustWait(ctx)

	reaped := e.ReapIdle(5 * time.Minute)
	assert.Equal(t, []string{"idle"}, reaped)
	assert.Equal(t, []string{"idle"}, closed)

	var open []string
	for _, snap := range e.ListRooms() {
		open = append(open, snap.RoomID)
	}
	assert.Equal(t, []string{"busy", "playing"}, open, "rooms mid-round are never reaped")
}

func TestEngineRunReaper(t *testing.T) {
	mClock := quartz.NewMock(t)
	e := NewTestEngine(WithClock(mClock))

	_, err := e.CreateRoom("r1", "alice", 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.RunReaper(ctx, time.Minute, 5*time.Minute)
	}()

	require.Eventually(t, func() bool {
		mClock.Advance(time.Minute).MustWait(ctx)
		_, err := e.GetRoom("r1")
		return err != nil
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestEngineConcurrentRooms(t *testing.T) {
	e := NewTestEngine(WithRoomDefaults(testDefaults()))

	const rooms = 16
	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()

			roomID := fmt.Sprintf("room-%02d", i)
			players := []string{"host-" + roomID, "guest-" + roomID}

			_, err := e.CreateRoom(roomID, players[0], 2)
			if !assert.NoError(t, err) {
				return
			}
			_, err = e.JoinRoom(roomID, players[1])
			assert.NoError(t, err)
			_, err = e.StartRound(roomID, players[0])
			assert.NoError(t, err)

			// Bets on the same room race each other
			var bets sync.WaitGroup
			for _, p := range players {
				bets.Add(1)
				go func() {
					defer bets.Done()
					_, err := e.PlaceBet(roomID, p, 10)
					assert.NoError(t, err)
				}()
			}
			bets.Wait()
			assert.True(t, e.AllBetsIn(roomID))

			snap, err := e.DealInitial(roomID)
			if !assert.NoError(t, err) {
				return
			}
			for snap.Status == StatusPlayerTurns {
				snap, err = e.PlayerAction(roomID, snap.Turn, Stand)
				if !assert.NoError(t, err) {
					return
				}
			}

			_, err = e.DealerPlay(roomID)
			assert.NoError(t, err)
			outcomes, _, err := e.Settle(roomID)
			assert.NoError(t, err)
			assert.Len(t, outcomes, 2)
		}()
	}
	wg.Wait()

	assert.Len(t, e.ListRooms(), rooms)
	for _, snap := range e.ListRooms() {
		assert.Equal(t, StatusPreGame, snap.Status)
		assert.Equal(t, 1, snap.Round)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var a, b int
	unsubA := bus.Subscribe(EventSubscriberFunc(func(RoomEvent) { a++ }))
	bus.Subscribe(EventSubscriberFunc(func(RoomEvent) { b++ }))

	bus.Publish(RoomEvent{Type: EventTypeRoomUpdated})
	unsubA()
	unsubA()
	bus.Publish(RoomEvent{Type: EventTypeRoomUpdated})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}
