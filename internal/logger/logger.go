// Package logger provides structured logging for the chat proxy.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a few proxy specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for development
	Output io.Writer
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "medchat-proxy").
		Logger()

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.  Tests use it.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Fatal logs at fatal level and exits once the event is sent.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// Component returns a child logger tagged with the given component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(method, path string, status int, duration time.Duration) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	}
	event.
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration_ms", duration).
		Msg("request completed")
}

// LogDbOperation logs database operation with structured fields
func (l *Logger) LogDbOperation(operation string, duration time.Duration, recordCount int, err error) {
	event := l.zlog.Debug().
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("record_count", recordCount)

	if err != nil {
		event = l.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("database operation completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(addr, driver, model string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("database", driver).
		Str("model", model).
		Msg("chat proxy starting")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("chat proxy shutting down")
}
