package tui

import (
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func testRoom(status game.Status, turn string) game.Snapshot {
	return game.Snapshot{
		RoomID:     "t1",
		HostID:     "alice",
		Status:     status,
		Round:      1,
		MaxPlayers: 4,
		Players: []game.PlayerView{
			{ID: "alice", Hand: deck.MustParseCards("Kh 7c"), Score: 17, Status: game.PlayerPlaying, Purse: 990, Bet: 10},
			{ID: "bob", Hand: deck.MustParseCards("9s 9d"), Score: 18, Status: game.PlayerPlaying, Purse: 980, Bet: 20},
		},
		Dealer: game.DealerView{Cards: deck.MustParseCards("Th"), HiddenCards: 1, Score: 10},
		Turn:   turn,
	}
}

func TestTUITestMode(t *testing.T) {
	logger := testLogger()

	t.Run("test mode captures log entries", func(t *testing.T) {
		tui := NewTUIModelWithOptions(logger, "alice", true)

		assert.True(t, tui.IsTestMode())
		assert.Empty(t, tui.GetCapturedLog())

		tui.AddLogEntry("alice joins")
		tui.AddBoldLogEntry("Round 1")

		assert.Equal(t, []string{"alice joins", "Round 1"}, tui.GetCapturedLog())
	})

	t.Run("production mode does not capture logs", func(t *testing.T) {
		tui := NewTUIModel(logger, "alice")
		assert.False(t, tui.IsTestMode())

		tui.AddLogEntry("Some log entry")
		assert.Nil(t, tui.GetCapturedLog())
	})

	t.Run("action injection works in test mode", func(t *testing.T) {
		tui := NewTUIModelWithOptions(logger, "alice", true)
		require.NoError(t, tui.InjectAction("bet", []string{"20"}))

		action, args, cont, err := tui.WaitForAction()
		require.NoError(t, err)
		assert.Equal(t, "bet", action)
		assert.Equal(t, []string{"20"}, args)
		assert.True(t, cont)
	})

	t.Run("action injection fails in production mode", func(t *testing.T) {
		tui := NewTUIModel(logger, "alice")
		assert.ErrorContains(t, tui.InjectAction("hit", nil), "test mode")
	})
}

func TestTUIEnterSendsAction(t *testing.T) {
	tui := NewTUIModelWithOptions(testLogger(), "alice", true)
	tui.actionInput.SetValue("  Bet 25 ")

	tui.Update(tea.KeyMsg{Type: tea.KeyEnter})

	action, args, cont, err := tui.WaitForAction()
	require.NoError(t, err)
	assert.Equal(t, "bet", action)
	assert.Equal(t, []string{"25"}, args)
	assert.True(t, cont)
	assert.Empty(t, tui.actionInput.Value())
}

func TestTUIRoomUpdates(t *testing.T) {
	tui := NewTUIModelWithOptions(testLogger(), "alice", true)

	tui.Update(RoomStateMsg{Room: testRoom(game.StatusBetting, "")})
	tui.Update(RoomStateMsg{Room: testRoom(game.StatusPlayerTurns, "alice")})

	room, ok := tui.Room()
	require.True(t, ok)
	assert.Equal(t, game.StatusPlayerTurns, room.Status)

	log := tui.GetCapturedLog()
	require.Len(t, log, 3)
	assert.Equal(t, "Room t1 (2/4 players)", log[0])
	assert.Contains(t, log[1], "player-turns")
	assert.Contains(t, log[2], "Your turn")

	actions := tui.availableActions()
	require.Len(t, actions, 2)
	assert.Contains(t, actions[0], "hit")
	assert.Contains(t, actions[1], "stand")
}

func TestTUIDropsOutOfOrderRoomStates(t *testing.T) {
	at := func(status game.Status, turn, table string, version uint64) game.Snapshot {
		snap := testRoom(status, turn)
		snap.Table = table
		snap.Version = version
		return snap
	}

	tui := NewTUIModelWithOptions(testLogger(), "bob", true)

	// bob's deal overtakes the broadcast of alice's bet
	tui.Update(RoomStateMsg{Room: at(game.StatusPlayerTurns, "bob", "table-1", 6)})
	tui.Update(RoomStateMsg{Room: at(game.StatusBetting, "", "table-1", 5)})

	room, ok := tui.Room()
	require.True(t, ok)
	assert.Equal(t, game.StatusPlayerTurns, room.Status)
	assert.Equal(t, uint64(6), room.Version)
	assert.Contains(t, tui.availableActions()[0], "hit")

	// A late settlement of the same table is dropped too
	tui.Update(RoundSettledMsg{Data: server.RoundSettledData{RoomID: "t1", Round: 1, Room: at(game.StatusPreGame, "", "table-1", 4)}})
	room, _ = tui.Room()
	assert.Equal(t, uint64(6), room.Version)

	// A new table under the same room ID starts over at a low version
	tui.Update(RoomStateMsg{Room: at(game.StatusPreGame, "", "table-2", 1)})
	room, _ = tui.Room()
	assert.Equal(t, "table-2", room.Table)
	assert.Equal(t, game.StatusPreGame, room.Status)
}

func TestTUIAvailableActions(t *testing.T) {
	tests := []struct {
		name   string
		player string
		status game.Status
		turn   string
		want   string
	}{
		{"host before round", "alice", game.StatusPreGame, "", "[start]"},
		{"guest before round", "bob", game.StatusPreGame, "", "[leave]"},
		{"betting", "bob", game.StatusBetting, "", "[bet <amount>]"},
		{"someone else's turn", "bob", game.StatusPlayerTurns, "alice", "waiting for alice"},
		{"dealer", "bob", game.StatusDealerTurn, "", "[dealer]"},
		{"settlement", "bob", game.StatusSettlement, "", "[settle]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tui := NewTUIModelWithOptions(testLogger(), tt.player, true)
			tui.Update(RoomStateMsg{Room: testRoom(tt.status, tt.turn)})
			assert.Equal(t, tt.want, tui.availableActions()[0])
		})
	}
}

func TestTUIRoundSettledAndClosed(t *testing.T) {
	tui := NewTUIModelWithOptions(testLogger(), "alice", true)
	tui.Update(RoomStateMsg{Room: testRoom(game.StatusPlayerTurns, "alice")})

	settled := testRoom(game.StatusPreGame, "")
	tui.Update(RoundSettledMsg{Data: server.RoundSettledData{
		RoomID:   "t1",
		Round:    1,
		Outcomes: map[string]game.Outcome{"alice": game.OutcomeLoss, "bob": game.OutcomePush},
		Room:     settled,
	}})

	log := tui.GetCapturedLog()
	assert.Contains(t, log, "Round 1 settled")

	tui.Update(RoomClosedMsg{Data: server.RoomClosedData{RoomID: "t1", Reason: "idle"}})
	_, ok := tui.Room()
	assert.False(t, ok)
	assert.Equal(t, "[list]", tui.availableActions()[0])
}

func TestTUIView(t *testing.T) {
	tui := NewTUIModel(testLogger(), "alice")
	assert.Equal(t, "Loading...", tui.View())

	tui.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	tui.Update(RoomStateMsg{Room: testRoom(game.StatusPlayerTurns, "alice")})

	view := tui.View()
	assert.Contains(t, view, "t1")
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, "??")
}
