// Package logger wraps zerolog behind the fluent field API used across the
// service packages.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger emits structured log records tagged with a component name.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing JSON records to w.
func New(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a logger writing to stderr.
func NewDefault(component string) *Logger {
	return New(component, os.Stderr)
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().AnErr("error", err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }
