// Package logx is the logger collaborator (spec §6: "a simple logger").
//
// It wraps zerolog rather than stdlib log/slog: the teacher (maeshinshin/mdns)
// used slog, but the corpus carries a real third-party structured logger
// (micro-go-micro/plugins/logger/zerolog) for this exact concern.
package logx

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// L returns the current process-wide logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &logger
}

// SetLevel adjusts the global log level. Equivalent to the teacher's
// SetDebug(), generalized to any zerolog.Level.
func SetLevel(lvl zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(lvl)
}

// SetDebug matches the teacher's SetDebug() entry point.
func SetDebug() {
	SetLevel(zerolog.DebugLevel)
}

// Component returns a child logger tagged with a component name, so each
// internal package (wire, statemachine, dispatch, ...) logs with context
// without threading a logger through every constructor.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
