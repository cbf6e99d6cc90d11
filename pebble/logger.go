package pebble

import (
	"fmt"
	"log/slog"
	"os"
)

// pebbleLogger routes pebble's messages to slog. Routine output such as WAL
// replays is logged at debug level so a CLI run stays quiet.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
	os.Exit(1)
}
