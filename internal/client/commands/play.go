package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lox/blackjack/internal/tui"
)

// PlayCommand starts the TUI, optionally creating or joining a room first
type PlayCommand struct {
	Room       string `arg:"" optional:"" help:"Room ID to join"`
	Create     bool   `help:"Create the room instead of joining it"`
	MaxPlayers int    `help:"Seats in a created room (server default when 0)"`
}

func (cmd *PlayCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsClient, cfg, logger, cleanup, err := SetupClientWithFileLogging(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("Starting Blackjack Client TUI",
		"server", cfg.Server.URL,
		"player", cfg.Player.Name,
		"room", cmd.Room)

	tui.ConfigureColors(cfg.UI.Theme)
	model := tui.NewTUIModel(logger, cfg.Player.Name)
	program := tea.NewProgram(model, tea.WithAltScreen())

	tui.SetupNetworkHandlers(wsClient, program)
	handler := tui.NewCommandHandler(wsClient, program, logger, cfg.Player.DefaultBet)

	go func() {
		switch {
		case cmd.Create:
			args := []string{cmd.Room}
			if cmd.MaxPlayers > 0 {
				args = append(args, fmt.Sprint(cmd.MaxPlayers))
			}
			handler.Handle(ctx, "create", args)
		case cmd.Room != "":
			handler.Handle(ctx, "join", []string{cmd.Room})
		default:
			handler.Handle(ctx, "list", nil)
		}
		handler.Run(ctx, model)
	}()

	go func() {
		select {
		case <-wsClient.Done():
			program.Send(tui.LogMsg{Text: "Disconnected from server", Bold: true})
		case <-ctx.Done():
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
