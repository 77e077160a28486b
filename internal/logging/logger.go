// Package logging provides the zerolog console logger used by every command.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog so progress bars and log lines can share a terminal.
type Logger struct {
	zlog zerolog.Logger
}

// Options selects level and format.
type Options struct {
	Level string
	JSON  bool
}

// New creates a logger writing to w. Logs go to stdout in the CLI so that
// stderr stays free for progress bars.
func New(w io.Writer, opts Options) *Logger {
	var zlog zerolog.Logger
	if opts.JSON {
		zlog = zerolog.New(w)
	} else {
		zlog = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		})
	}
	return &Logger{zlog: zlog.With().Timestamp().Logger().Level(parseLevel(opts.Level))}
}

// NewDefault creates an info-level console logger on stdout.
func NewDefault() *Logger {
	return New(os.Stdout, Options{Level: "info"})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
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

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Child returns a logger carrying the given string field on every event.
func (l *Logger) Child(key, value string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(key, value).Logger()}
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}
