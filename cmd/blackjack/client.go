package main

import (
	"github.com/lox/blackjack/internal/client/commands"
)

// ClientCmd groups the player-facing commands. Its flags are bound for the
// subcommands' Run methods.
type ClientCmd struct {
	commands.GlobalFlags `embed:""`

	Play commands.PlayCommand      `cmd:"" default:"withargs" help:"Open the table view (default)"`
	List commands.ListRoomsCommand `cmd:"" help:"List open rooms and exit"`
}
