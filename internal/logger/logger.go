package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so pipeline packages depend on this package
// rather than on the logging module directly.
type Logger = zerolog.Logger

// New builds the process logger. Output goes to stderr; stdout is reserved
// for PROGRESS lines read by the supervising process.
func New(verbose bool) Logger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, verbose bool) Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	if verbose {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// Nop discards everything. Tests use it.
func Nop() Logger {
	return zerolog.Nop()
}
