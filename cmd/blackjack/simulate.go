package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/simulator"
)

// SimulateCmd plays scripted rounds against a local engine
type SimulateCmd struct {
	Players   int           `short:"p" default:"3" help:"Scripted players at the table"`
	Rounds    int           `short:"r" default:"1000" help:"Rounds to play"`
	Seed      int64         `short:"s" default:"0" help:"Shuffle seed (0 for random)"`
	Strategy  string        `default:"basic" help:"Player strategy: dealer, basic, stand, hit, random or mixed"`
	Bet       int           `short:"b" default:"10" help:"Chips each player bets per round"`
	Purse     int           `default:"1000" help:"Starting purse per player"`
	Decks     int           `default:"1" help:"Minimum 52-card sets per shoe"`
	Timeout   time.Duration `default:"5m" help:"Give up after this long"`
	Ledger    string        `help:"Record settled rounds with this ledger backend: file or badger"`
	LedgerDir string        `default:"simulation-ledger" help:"Directory for the ledger"`
	Verbose   bool          `short:"V" help:"Log every command"`
}

func (c *SimulateCmd) Run() error {
	level := "warn"
	if c.Verbose {
		level = "debug"
	}
	logger, err := shared.SetupLogger(os.Stderr, level)
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	fmt.Printf("Simulating %d rounds, %d players (%s), seed %d\n", c.Rounds, c.Players, c.Strategy, seed)

	table := game.DefaultRoomConfig()
	table.StartingPurse = c.Purse
	table.Decks = c.Decks

	config := simulator.Config{
		Rounds:   c.Rounds,
		Players:  c.Players,
		Strategy: strings.ToLower(c.Strategy),
		Bet:      c.Bet,
		Seed:     seed,
		Timeout:  c.Timeout,
		Table:    table,
		Logger:   logger,
	}

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	if c.Ledger != "" {
		store, err := ledger.Open(c.Ledger, c.LedgerDir, logger)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer func() { _ = store.Close() }()

		// Rounds are written as they settle
		config.Subscriber = game.EventSubscriberFunc(func(ev game.RoomEvent) {
			if ev.Type != game.EventTypeRoundSettled {
				return
			}
			if err := store.Append(ctx, ledger.NewRecord(ev)); err != nil {
				logger.Error("Failed to record round", "round", ev.Snapshot.Round, "error", err)
			}
		})
	}

	result, err := simulator.New(config).Run(ctx)
	if err != nil {
		return err
	}

	simulator.PrintSummary(os.Stdout, result, config.Strategy)
	if c.Ledger != "" {
		fmt.Printf("\nRounds recorded to %s ledger in %s (room %q)\n", c.Ledger, c.LedgerDir, simulator.RoomID)
	}
	return nil
}
