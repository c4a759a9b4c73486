package shared

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// SetupLogger creates a timestamped logger writing to w at the named level
func SetupLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// SetupStructuredLogger is SetupLogger with JSON output, for running under a
// log collector
func SetupStructuredLogger(w io.Writer, level string) (*log.Logger, error) {
	logger, err := SetupLogger(w, level)
	if err != nil {
		return nil, err
	}
	logger.SetFormatter(log.JSONFormatter)
	logger.SetTimeFormat(time.RFC3339Nano)
	return logger, nil
}
