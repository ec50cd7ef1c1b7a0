// Package logging wires the engine's subsystems to a single structured
// logger. Its users are pkg/pakdb (database opened), pkg/alloc (arena
// growth, at debug level), pkg/txn (history hook failures during commit and
// rollback) and cmd/pkdbd (startup and shutdown).
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is a thin alias so callers don't need to import zerolog directly.
type Logger = zerolog.Logger

var (
	mu   sync.Mutex
	base = zerolog.New(defaultWriter()).With().Timestamp().Logger()
)

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
}

// SetOutput redirects every future For() logger to w, writing JSON lines
// instead of the default console format.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	base = zerolog.New(w).With().Timestamp().Logger()
}

// For returns a logger tagged with subsystem, e.g. logging.For("txn").
func For(subsystem string) Logger {
	mu.Lock()
	defer mu.Unlock()

	return base.With().Str("subsystem", subsystem).Logger()
}
