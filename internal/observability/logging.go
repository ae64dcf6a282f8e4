package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	outMu    sync.RWMutex
	out      io.Writer = os.Stdout
	outLevel           = ParseLogLevel(os.Getenv("SWAP_LOG_LEVEL"))
)

// ConfigureLogging sets the writer and level used by NewLogger. Format
// "console" renders human-readable lines; anything else is JSON.
func ConfigureLogging(level, format string) {
	outMu.Lock()
	defer outMu.Unlock()
	if level != "" {
		outLevel = ParseLogLevel(level)
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	} else {
		out = os.Stdout
	}
}

// NewLogger returns a logger tagged with component. The level comes from
// ConfigureLogging, else SWAP_LOG_LEVEL, else info.
func NewLogger(component string) zerolog.Logger {
	outMu.RLock()
	defer outMu.RUnlock()
	return NewLoggerTo(out, component, outLevel)
}

// NewLoggerTo writes to w; tests pass a buffer or io.Discard.
func NewLoggerTo(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLogLevel maps a config string to a zerolog level.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
