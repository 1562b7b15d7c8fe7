// Package logging holds the process-wide zerolog logger used by txagg and
// the structured completion events emitted by long-running phases.
package logging

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger atomic.Pointer[zerolog.Logger]
	pretty atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Store(&l)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. debug lowers the level to Debug;
// human switches to a console writer and turns on the "_h" companion
// fields of completion events.
func Init(debug, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	SetPrettyMode(human)

	var l zerolog.Logger
	if human {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stderr)
	}
	l = l.With().Timestamp().Logger()
	logger.Store(&l)
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger.Load()
}

// WithPhase returns a logger tagged with the pipeline phase.
func WithPhase(phase string) zerolog.Logger {
	return L().With().Str("phase", phase).Logger()
}

// SetLogger replaces the global logger. Tests use it to capture output.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}

// IsPrettyMode reports whether human-readable companion fields are added
// to completion events.
func IsPrettyMode() bool {
	return pretty.Load()
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	pretty.Store(on)
}
