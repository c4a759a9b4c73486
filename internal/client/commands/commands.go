package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/client"
)

// GlobalFlags holds common configuration for all client commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"blackjack-client.hcl" help:"Path to HCL configuration file"`
	URL      string `short:"u" long:"url" help:"Server URL to connect to (overrides config)"`
	Name     string `short:"n" long:"name" help:"Player name (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	LogFile  string `long:"log-file" help:"Log file path (overrides config)"`
}

// LoadConfig loads the client config and applies flag overrides
func (f *GlobalFlags) LoadConfig() (*client.ClientConfig, error) {
	cfg, err := client.LoadClientConfig(f.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if f.URL != "" {
		cfg.Server.URL = f.URL
	}
	if f.Name != "" {
		cfg.Player.Name = f.Name
	}
	if f.LogLevel != "" {
		cfg.UI.LogLevel = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.UI.LogFile = f.LogFile
	}
	return cfg, nil
}

// SetupClient creates, connects and authenticates a client that logs to stderr
func SetupClient(ctx context.Context, flags *GlobalFlags) (*client.Client, *client.ClientConfig, error) {
	cfg, err := flags.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	c, _, err := setupClientConfigured(ctx, cfg, os.Stderr)
	return c, cfg, err
}

// SetupClientWithFileLogging is SetupClient for full-screen commands: logs go
// to the configured log file. The cleanup function disconnects and closes it.
func SetupClientWithFileLogging(ctx context.Context, flags *GlobalFlags) (*client.Client, *client.ClientConfig, *log.Logger, func(), error) {
	cfg, err := flags.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// Overwrite each time
	logFile, err := os.OpenFile(cfg.UI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	wsClient, logger, err := setupClientConfigured(ctx, cfg, logFile)
	if err != nil {
		_ = logFile.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		_ = wsClient.Disconnect()
		_ = logFile.Close()
	}
	return wsClient, cfg, logger, cleanup, nil
}

func setupClientConfigured(ctx context.Context, cfg *client.ClientConfig, logWriter io.Writer) (*client.Client, *log.Logger, error) {
	if cfg.Player.Name == "" {
		fmt.Print("Enter your player name: ")
		var input string
		_, _ = fmt.Scanln(&input)
		cfg.Player.Name = strings.TrimSpace(input)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(logWriter)
	level, err := log.ParseLevel(cfg.UI.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)

	wsClient := client.NewClient(cfg.Server.URL, logger, client.WithRequestTimeout(cfg.RequestTimeout()))

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := wsClient.Connect(connectCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	if err := wsClient.Auth(ctx, cfg.Player.Name); err != nil {
		_ = wsClient.Disconnect()
		return nil, nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	return wsClient, logger, nil
}
