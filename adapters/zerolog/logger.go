// Package zerolog adapts a zerolog.Logger to the session Logger
// interface.
package zerolog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger behind the printf style session logger.
type Logger struct {
	log zerolog.Logger
}

// New wraps an existing zerolog logger.
func New(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

// NewDefault builds a timestamped stdout logger tagged for the session
// component.
func NewDefault() *Logger {
	return NewWithOutput(os.Stdout)
}

// NewWithOutput builds a logger writing to the given sink.
func NewWithOutput(w io.Writer) *Logger {
	log := zerolog.New(w).With().
		Timestamp().
		Str("component", "session").
		Logger()
	return &Logger{log: log}
}

func (l *Logger) Debug(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
