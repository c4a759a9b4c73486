package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/deckapi"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/server"
)

// ServerCmd runs the table server
type ServerCmd struct {
	Config   string `short:"c" long:"config" default:"blackjack-server.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Address to listen on as host:port (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	JSONLogs bool   `long:"json-logs" help:"Write logs as JSON"`
	Seed     *int64 `help:"Deterministic shuffle seed (optional)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Apply command line overrides
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogger := shared.SetupLogger
	if c.JSONLogs {
		setupLogger = shared.SetupStructuredLogger
	}
	logger, err := setupLogger(os.Stderr, cfg.Server.LogLevel)
	if err != nil {
		return err
	}

	engineOpts := []game.Option{
		game.WithRoomDefaults(cfg.RoomConfig()),
		game.WithMaxPlayersLimit(max(cfg.Table.MaxPlayers, game.DefaultMaxPlayersLimit)),
		game.WithJokers(cfg.Deck.Jokers),
	}
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", *c.Seed)
		engineOpts = append(engineOpts, game.WithSeed(*c.Seed))
	}
	engine := game.NewEngine(logger, engineOpts...)

	var serverOpts []server.Option
	if cfg.Deck.Source == server.DeckSourceRemote {
		serverOpts = append(serverOpts, server.WithDeckFetcher(deckapi.New(cfg.Deck.APIURL, cfg.DeckTimeout(), logger)))
	}

	if cfg.Ledger.Backend != "" {
		store, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Dir, logger)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close ledger", "error", err)
			}
		}()

		recorder := ledger.NewRecorder(store, logger)
		unsubscribe := engine.Events().Subscribe(recorder)
		defer unsubscribe()

		serverOpts = append(serverOpts, server.WithHistory(recorder), server.WithBackground(recorder.Run))
	}

	srv := server.NewServer(cfg, engine, logger, serverOpts...)

	logger.Info("Starting blackjack server",
		"address", cfg.GetServerAddress(),
		"maxPlayers", cfg.Table.MaxPlayers,
		"minBet", cfg.Table.MinBet,
		"purse", cfg.Table.StartingPurse,
		"decks", cfg.Table.Decks,
		"deckSource", cfg.Deck.Source,
		"autoAdvance", cfg.AutoAdvance(),
		"ledger", ledgerDescription(cfg))

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func ledgerDescription(cfg *server.Config) string {
	if cfg.Ledger.Backend == "" {
		return "disabled"
	}
	return fmt.Sprintf("%s:%s", cfg.Ledger.Backend, cfg.Ledger.Dir)
}
