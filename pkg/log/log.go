package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared process logger. The zero value discards every
// event, which keeps library tests quiet; commands call Init first.
var Logger zerolog.Logger

// Config selects the output shape of the process logger.
type Config struct {
	// Level filters events below the named severity (debug, info,
	// warn, error). Unknown or empty names fall back to info.
	Level string

	// JSON emits one JSON object per line instead of the console form.
	JSON bool

	// Output defaults to stderr, keeping stdout free for the wire.
	Output io.Writer
}

// Init configures the global logger. Called once at startup, before
// any component derives a child logger.
func Init(cfg Config) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent derives a child logger tagged with a component field.
// Each service holds one, so events filter per subsystem.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// Warn logs a plain warning on the global logger.
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Errorf logs err under a fixed message.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
