package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	engine := game.NewTestEngine(game.WithRoomDefaults(cfg.RoomConfig()))
	srv := NewServer(cfg, engine, testLogger(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, data any, requestID string) {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg.Reply(requestID)))
}

// readUntil reads messages until one matches, failing after a few seconds
func readUntil(t *testing.T, conn *websocket.Conn, match func(*Message) bool) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if match(&msg) {
			return &msg
		}
	}
}

func request(t *testing.T, conn *websocket.Conn, msgType MessageType, data any, requestID string) *Message {
	t.Helper()
	send(t, conn, msgType, data, requestID)
	return readUntil(t, conn, func(m *Message) bool { return m.RequestID == requestID })
}

func ofType(msgType MessageType) func(*Message) bool {
	return func(m *Message) bool { return m.Type == msgType }
}

func authenticate(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	reply := request(t, conn, MessageTypeAuth, AuthData{PlayerName: name}, "auth-"+name)
	require.Equal(t, MessageTypeAuthResponse, reply.Type)
	require.True(t, decode[AuthResponseData](t, reply).Success)
}

func TestServerHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServerRoomEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.engine.CreateRoom("t1", "alice", 3)
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var rooms []game.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
		require.Len(t, rooms, 1)
		assert.Equal(t, "t1", rooms[0].RoomID)
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/t1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var snap game.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, 3, snap.MaxPlayers)
		assert.Equal(t, game.StatusPreGame, snap.Status)
	})

	t.Run("unknown", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/nope", nil))
		require.Equal(t, http.StatusNotFound, w.Code)

		var body ErrorData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "not_found", body.Code)
	})

	t.Run("history disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/t1/history", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServerHistoryEndpoint(t *testing.T) {
	records := []ledger.Record{{RoomID: "t1", Round: 1, DealerScore: 19}}
	srv, _ := newTestServer(t, WithHistory(fixedHistory{records: records}))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/t1/history", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []ledger.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 19, got[0].DealerScore)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/missing/history", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServerRequiresAuth(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	reply := request(t, conn, MessageTypeListRooms, struct{}{}, "r1")
	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, CodeNotAuthenticated, decode[ErrorData](t, reply).Code)

	reply = request(t, conn, MessageTypeAuth, AuthData{}, "r2")
	require.Equal(t, MessageTypeAuthResponse, reply.Type)
	assert.False(t, decode[AuthResponseData](t, reply).Success)
}

func TestServerProtocolErrors(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	authenticate(t, conn, "alice")

	tests := []struct {
		name     string
		msgType  MessageType
		data     any
		wantCode string
	}{
		{"unknown type", MessageType("split"), struct{}{}, CodeUnknownMessageType},
		{"bad payload", MessageTypeCreateRoom, "not an object", CodeInvalidMessage},
		{"unknown room", MessageTypeJoinRoom, RoomRequestData{RoomID: "nope"}, "not_found"},
		{"bad action", MessageTypePlayerAction, PlayerActionData{RoomID: "nope", Action: "double"}, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := request(t, conn, tt.msgType, tt.data, tt.name)
			require.Equal(t, MessageTypeError, reply.Type)
			assert.Equal(t, tt.wantCode, decode[ErrorData](t, reply).Code)
		})
	}
}

func TestServerNameTaken(t *testing.T) {
	_, ts := newTestServer(t)
	first := dial(t, ts)
	authenticate(t, first, "alice")

	second := dial(t, ts)
	reply := request(t, second, MessageTypeAuth, AuthData{PlayerName: "alice"}, "dup")
	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, CodeNameTaken, decode[ErrorData](t, reply).Code)
}

func TestServerPlaysRound(t *testing.T) {
	srv, ts := newTestServer(t, WithDeckFetcher(&stackedDecks{cards: twoPlayerShoe}))

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	bob := dial(t, ts)
	authenticate(t, bob, "bob")

	reply := request(t, alice, MessageTypeCreateRoom, CreateRoomData{RoomID: "t1", MaxPlayers: 2}, "create")
	require.Equal(t, MessageTypeRoomState, reply.Type)
	assert.Equal(t, "t1", decode[game.Snapshot](t, reply).RoomID)

	reply = request(t, bob, MessageTypeJoinRoom, RoomRequestData{RoomID: "t1"}, "join")
	require.Equal(t, MessageTypeRoomState, reply.Type)

	// Alice hears about the join without a request ID
	update := readUntil(t, alice, ofType(MessageTypeRoomState))
	assert.Empty(t, update.RequestID)
	assert.Equal(t, []string{"alice", "bob"}, decode[game.Snapshot](t, update).PlayerIDs())

	reply = request(t, alice, MessageTypeStartRound, RoomRequestData{RoomID: "t1"}, "start")
	require.Equal(t, MessageTypeRoomState, reply.Type)
	assert.Equal(t, game.StatusBetting, decode[game.Snapshot](t, reply).Status)

	reply = request(t, alice, MessageTypePlaceBet, PlaceBetData{RoomID: "t1", Amount: 10}, "bet-a")
	require.Equal(t, MessageTypeRoomState, reply.Type)
	reply = request(t, bob, MessageTypePlaceBet, PlaceBetData{RoomID: "t1", Amount: 10}, "bet-b")
	snap := decode[game.Snapshot](t, reply)
	require.Equal(t, game.StatusPlayerTurns, snap.Status)
	assert.Equal(t, "alice", snap.Turn)
	assert.Equal(t, 1, snap.Dealer.HiddenCards)

	reply = request(t, bob, MessageTypePlayerAction, PlayerActionData{RoomID: "t1", Action: "stand"}, "early")
	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, "not_your_turn", decode[ErrorData](t, reply).Code)

	reply = request(t, alice, MessageTypePlayerAction, PlayerActionData{RoomID: "t1", Action: "stand"}, "stand-a")
	require.Equal(t, MessageTypeRoomState, reply.Type)
	reply = request(t, bob, MessageTypePlayerAction, PlayerActionData{RoomID: "t1", Action: "stand"}, "stand-b")
	require.Equal(t, MessageTypeRoomState, reply.Type)
	assert.Equal(t, game.StatusPreGame, decode[game.Snapshot](t, reply).Status)

	settled := decode[RoundSettledData](t, readUntil(t, alice, ofType(MessageTypeRoundSettled)))
	assert.Equal(t, map[string]game.Outcome{"alice": game.OutcomeLoss, "bob": game.OutcomePush}, settled.Outcomes)

	room, err := srv.engine.GetRoom("t1")
	require.NoError(t, err)
	assert.Equal(t, 1, room.Round)
}

func TestServerDisconnectLeavesPreGameRooms(t *testing.T) {
	srv, ts := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	bob := dial(t, ts)
	authenticate(t, bob, "bob")

	request(t, alice, MessageTypeCreateRoom, CreateRoomData{RoomID: "t1"}, "create")
	request(t, bob, MessageTypeJoinRoom, RoomRequestData{RoomID: "t1"}, "join")
	require.NoError(t, bob.Close())

	assert.Eventually(t, func() bool {
		snap, err := srv.engine.GetRoom("t1")
		return err == nil && len(snap.Players) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The name is free again
	assert.Eventually(t, func() bool {
		for _, p := range srv.GetConnectedPlayers() {
			if p == "bob" {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerUnregisterKeepsReconnectedPlayerSeated(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.engine.CreateRoom("t1", "alice", 3)
	require.NoError(t, err)
	_, err = srv.engine.JoinRoom("t1", "bob")
	require.NoError(t, err)

	stale := &Connection{}
	stale.setPlayer("bob")
	fresh := &Connection{}
	fresh.setPlayer("bob")
	srv.register(stale)
	srv.register(fresh)
	require.True(t, srv.claimName(fresh, "bob"))

	// bob already reconnected on fresh when stale's cleanup runs
	srv.unregister(stale)

	snap, err := srv.engine.GetRoom("t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, snap.PlayerIDs())
	assert.Contains(t, srv.GetConnectedPlayers(), "bob")

	// The owning connection's cleanup releases the seat and the name
	srv.unregister(fresh)

	snap, err = srv.engine.GetRoom("t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, snap.PlayerIDs())
	assert.NotContains(t, srv.GetConnectedPlayers(), "bob")
}

func TestServerServeShutsDown(t *testing.T) {
	cfg := DefaultConfig()
	srv := NewServer(cfg, game.NewTestEngine(), testLogger())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
