package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/blackjack/internal/deckapi"
	"github.com/lox/blackjack/internal/game"
)

// Config represents the complete server configuration. Every block is
// optional; missing blocks and fields take their defaults.
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Table  *TableSettings  `hcl:"table,block"`
	Deck   *DeckSettings   `hcl:"deck,block"`
	Ledger *LedgerSettings `hcl:"ledger,block"`
}

// ServerSettings contains listener and logging configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// TableSettings are the rules applied to every room the server creates
type TableSettings struct {
	MaxPlayers    int    `hcl:"max_players,optional"`
	StartingPurse int    `hcl:"starting_purse,optional"`
	MinBet        int    `hcl:"min_bet,optional"`
	MaxBet        int    `hcl:"max_bet,optional"`
	Decks         int    `hcl:"decks,optional"`
	AutoAdvance   *bool  `hcl:"auto_advance,optional"`
	IdleTimeout   string `hcl:"idle_timeout,optional"`
	ReapInterval  string `hcl:"reap_interval,optional"`
}

// DeckSettings chooses where shoes come from
type DeckSettings struct {
	Source  string `hcl:"source,optional"` // "local" or "remote"
	APIURL  string `hcl:"api_url,optional"`
	Timeout string `hcl:"timeout,optional"`
	Jokers  bool   `hcl:"jokers,optional"`
}

// LedgerSettings configures round history persistence. An empty backend
// disables the ledger.
type LedgerSettings struct {
	Backend string `hcl:"backend,optional"` // "", "file" or "badger"
	Dir     string `hcl:"dir,optional"`
}

const (
	DeckSourceLocal  = "local"
	DeckSourceRemote = "remote"

	maxTableSeats = 10
)

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads configuration from an HCL file. A missing file yields the
// defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Table == nil {
		c.Table = &TableSettings{}
	}
	if c.Deck == nil {
		c.Deck = &DeckSettings{}
	}
	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}

	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	defaults := game.DefaultRoomConfig()
	if c.Table.MaxPlayers == 0 {
		c.Table.MaxPlayers = defaults.MaxPlayers
	}
	if c.Table.StartingPurse == 0 {
		c.Table.StartingPurse = defaults.StartingPurse
	}
	if c.Table.MinBet == 0 {
		c.Table.MinBet = defaults.MinBet
	}
	if c.Table.Decks == 0 {
		c.Table.Decks = defaults.Decks
	}
	if c.Table.AutoAdvance == nil {
		enabled := true
		c.Table.AutoAdvance = &enabled
	}
	if c.Table.IdleTimeout == "" {
		c.Table.IdleTimeout = "30m"
	}
	if c.Table.ReapInterval == "" {
		c.Table.ReapInterval = "1m"
	}

	if c.Deck.Source == "" {
		c.Deck.Source = DeckSourceLocal
	}
	if c.Deck.APIURL == "" {
		c.Deck.APIURL = deckapi.DefaultBaseURL
	}
	if c.Deck.Timeout == "" {
		c.Deck.Timeout = "5s"
	}

	if c.Ledger.Backend != "" && c.Ledger.Dir == "" {
		c.Ledger.Dir = "ledger"
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.Table.MaxPlayers < 1 || c.Table.MaxPlayers > maxTableSeats {
		return fmt.Errorf("table: max players must be between 1 and %d", maxTableSeats)
	}
	if err := c.RoomConfig().Validate(); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	for name, value := range map[string]string{
		"idle_timeout":  c.Table.IdleTimeout,
		"reap_interval": c.Table.ReapInterval,
		"deck timeout":  c.Deck.Timeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if c.IdleTimeout() > 0 && c.ReapInterval() <= 0 {
		return fmt.Errorf("reap_interval must be positive when idle_timeout is set")
	}

	switch c.Deck.Source {
	case DeckSourceLocal, DeckSourceRemote:
	default:
		return fmt.Errorf("deck: invalid source %q", c.Deck.Source)
	}

	switch c.Ledger.Backend {
	case "", "file", "badger":
	default:
		return fmt.Errorf("ledger: invalid backend %q", c.Ledger.Backend)
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomConfig returns the table rules for new rooms
func (c *Config) RoomConfig() game.RoomConfig {
	return game.RoomConfig{
		MaxPlayers:    c.Table.MaxPlayers,
		StartingPurse: c.Table.StartingPurse,
		MinBet:        c.Table.MinBet,
		MaxBet:        c.Table.MaxBet,
		Decks:         c.Table.Decks,
	}
}

// AutoAdvance reports whether the server deals and settles on its own
func (c *Config) AutoAdvance() bool {
	return c.Table.AutoAdvance != nil && *c.Table.AutoAdvance
}

// IdleTimeout is how long a room may sit in pre-game. Zero disables reaping.
func (c *Config) IdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Table.IdleTimeout)
	return d
}

// ReapInterval is how often idle rooms are looked for
func (c *Config) ReapInterval() time.Duration {
	d, _ := time.ParseDuration(c.Table.ReapInterval)
	return d
}

// DeckTimeout bounds each remote deck request
func (c *Config) DeckTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Deck.Timeout)
	return d
}
