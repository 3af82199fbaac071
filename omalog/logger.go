// Package omalog generalizes the teacher's repo.Logger interface (itself a
// mimic of log/slog) into the logging seam every omacore component takes a
// dependency on.
package omalog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging interface every component accepts. It mirrors the
// teacher's repo.Logger shape so call sites read identically.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// zerologAdapter backs Logger with a zerolog.Logger, pairing the args
// (treated as alternating key/value pairs, like slog) onto the event.
type zerologAdapter struct {
	l zerolog.Logger
}

// New returns the default production Logger: zerolog writing to stderr.
func New() Logger {
	return &zerologAdapter{l: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// NewWithWriter wraps a caller-supplied zerolog.Logger, letting callers
// redirect log output.
func NewWithWriter(w zerolog.Logger) Logger {
	return &zerologAdapter{l: w}
}

func fields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (a *zerologAdapter) Debug(msg string, args ...any) { fields(a.l.Debug(), args).Msg(msg) }
func (a *zerologAdapter) Info(msg string, args ...any)  { fields(a.l.Info(), args).Msg(msg) }
func (a *zerologAdapter) Warn(msg string, args ...any)  { fields(a.l.Warn(), args).Msg(msg) }
func (a *zerologAdapter) Error(msg string, args ...any) { fields(a.l.Error(), args).Msg(msg) }
