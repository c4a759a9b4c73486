package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/client"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
)

var errNotSeated = errors.New("not in a room, create or join one first")

// Sender delivers messages into the running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// RoomClient is the part of the websocket client the TUI drives
type RoomClient interface {
	ListRooms(ctx context.Context) ([]server.RoomInfo, error)
	CreateRoom(ctx context.Context, roomID string, maxPlayers int) (game.Snapshot, error)
	JoinRoom(ctx context.Context, roomID string) (game.Snapshot, error)
	LeaveRoom(ctx context.Context, roomID string) (game.Snapshot, error)
	StartRound(ctx context.Context, roomID string) (game.Snapshot, error)
	PlaceBet(ctx context.Context, roomID string, amount int) (game.Snapshot, error)
	Deal(ctx context.Context, roomID string) (game.Snapshot, error)
	Act(ctx context.Context, roomID string, action game.Action) (game.Snapshot, error)
	DealerPlay(ctx context.Context, roomID string) (game.Snapshot, error)
	Settle(ctx context.Context, roomID string) (game.Snapshot, error)
	GetRoom(ctx context.Context, roomID string) (game.Snapshot, error)
	CloseRoom(ctx context.Context, roomID string) (game.Snapshot, error)
}

// SetupNetworkHandlers forwards messages the server pushes into the program
func SetupNetworkHandlers(c *client.Client, out Sender) {
	c.AddEventHandler(server.MessageTypeRoomState, func(msg *server.Message) {
		if snap, err := client.Decode[game.Snapshot](msg); err == nil {
			out.Send(RoomStateMsg{Room: snap})
		}
	})
	c.AddEventHandler(server.MessageTypeRoundSettled, func(msg *server.Message) {
		if data, err := client.Decode[server.RoundSettledData](msg); err == nil {
			out.Send(RoundSettledMsg{Data: data})
		}
	})
	c.AddEventHandler(server.MessageTypeRoomClosed, func(msg *server.Message) {
		if data, err := client.Decode[server.RoomClosedData](msg); err == nil {
			out.Send(RoomClosedMsg{Data: data})
		}
	})
	c.AddEventHandler(server.MessageTypeError, func(msg *server.Message) {
		if data, err := client.Decode[server.ErrorData](msg); err == nil {
			out.Send(ErrorMsg{Err: &client.ServerError{Code: data.Code, Message: data.Message}})
		}
	})
}

// CommandHandler turns typed commands into client requests
type CommandHandler struct {
	client     RoomClient
	out        Sender
	logger     *log.Logger
	defaultBet int
	roomID     string
}

// NewCommandHandler creates a handler that bets defaultBet when no amount
// is given
func NewCommandHandler(c RoomClient, out Sender, logger *log.Logger, defaultBet int) *CommandHandler {
	return &CommandHandler{
		client:     c,
		out:        out,
		logger:     logger.WithPrefix("commands"),
		defaultBet: defaultBet,
	}
}

// Run handles input from the model until the user quits or ctx ends
func (h *CommandHandler) Run(ctx context.Context, tui *TUIModel) {
	for {
		action, args, shouldContinue, err := tui.WaitForAction()
		if err != nil {
			continue
		}
		if !shouldContinue || ctx.Err() != nil {
			return
		}
		if h.Handle(ctx, action, args) {
			h.out.Send(QuitMsg{})
			return
		}
	}
}

// Handle runs one command and reports whether the user asked to quit
func (h *CommandHandler) Handle(ctx context.Context, action string, args []string) bool {
	h.logger.Debug("Handling command", "action", action, "args", args)

	var (
		snap game.Snapshot
		err  error
	)

	switch action {
	case "quit", "/quit", "exit":
		return true

	case "help", "?":
		h.out.Send(LogMsg{Text: "Commands: list, create [room] [max], join <room>, leave, start, bet [amount], " +
			"deal, hit, stand, dealer, settle, room, close, quit"})
		return false

	case "list":
		rooms, err := h.client.ListRooms(ctx)
		if err != nil {
			h.out.Send(ErrorMsg{Err: err})
			return false
		}
		h.out.Send(RoomListMsg{Rooms: rooms})
		return false

	case "create":
		var roomID string
		maxPlayers := 0
		if len(args) > 0 {
			roomID = args[0]
		}
		if len(args) > 1 {
			if maxPlayers, err = strconv.Atoi(args[1]); err != nil {
				h.out.Send(ErrorMsg{Err: fmt.Errorf("invalid max players %q", args[1])})
				return false
			}
		}
		snap, err = h.client.CreateRoom(ctx, roomID, maxPlayers)

	case "join":
		if len(args) == 0 {
			h.out.Send(ErrorMsg{Err: errors.New("usage: join <room>")})
			return false
		}
		snap, err = h.client.JoinRoom(ctx, args[0])

	case "leave", "close":
		if h.roomID == "" {
			h.out.Send(ErrorMsg{Err: errNotSeated})
			return false
		}
		roomID, reason := h.roomID, "you left"
		if action == "leave" {
			_, err = h.client.LeaveRoom(ctx, roomID)
		} else {
			_, err = h.client.CloseRoom(ctx, roomID)
			reason = "closed by you"
		}
		if err != nil {
			h.out.Send(ErrorMsg{Err: err})
			return false
		}
		h.roomID = ""
		h.out.Send(RoomClosedMsg{Data: server.RoomClosedData{RoomID: roomID, Reason: reason}})
		return false

	case "bet", "b":
		amount := h.defaultBet
		if len(args) > 0 {
			if amount, err = strconv.Atoi(args[0]); err != nil {
				h.out.Send(ErrorMsg{Err: fmt.Errorf("invalid bet amount %q", args[0])})
				return false
			}
		}
		snap, err = h.inRoom(func(roomID string) (game.Snapshot, error) {
			return h.client.PlaceBet(ctx, roomID, amount)
		})

	case "hit", "h", "stand", "s", "stay":
		act, _ := game.ParseAction(action)
		snap, err = h.inRoom(func(roomID string) (game.Snapshot, error) {
			return h.client.Act(ctx, roomID, act)
		})

	case "start", "deal", "dealer", "settle", "room":
		snap, err = h.inRoom(func(roomID string) (game.Snapshot, error) {
			return h.roomCommand(ctx, action, roomID)
		})

	default:
		h.out.Send(ErrorMsg{Err: fmt.Errorf("unknown command %q, type help for a list", action)})
		return false
	}

	if err != nil {
		h.out.Send(ErrorMsg{Err: err})
		return false
	}

	h.roomID = snap.RoomID
	h.out.Send(RoomStateMsg{Room: snap})
	return false
}

func (h *CommandHandler) roomCommand(ctx context.Context, action, roomID string) (game.Snapshot, error) {
	switch action {
	case "start":
		return h.client.StartRound(ctx, roomID)
	case "deal":
		return h.client.Deal(ctx, roomID)
	case "dealer":
		return h.client.DealerPlay(ctx, roomID)
	case "settle":
		return h.client.Settle(ctx, roomID)
	default:
		return h.client.GetRoom(ctx, roomID)
	}
}

func (h *CommandHandler) inRoom(fn func(roomID string) (game.Snapshot, error)) (game.Snapshot, error) {
	if h.roomID == "" {
		return game.Snapshot{}, errNotSeated
	}
	return fn(h.roomID)
}

// RoomID returns the room commands are addressed to
func (h *CommandHandler) RoomID() string {
	return h.roomID
}
