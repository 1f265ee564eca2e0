// Package logger builds the slog loggers used across streamline: colorized
// output for the CLI, JSON for log files, and a Nop logger for components
// constructed without one.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	format Format
	level  slog.Level
	source bool
	writer io.Writer
}

// New builds a *slog.Logger. Without options it writes text records at info
// level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		format: FormatText,
		level:  slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.writer == nil {
		c.writer = os.Stdout
	}

	return slog.New(c.handler())
}

func (c *config) handler() slog.Handler {
	switch c.format {
	case FormatPretty:
		return charmlog.NewWithOptions(c.writer, charmlog.Options{
			Level:           charmLevel(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
	case FormatJSON:
		return slog.NewJSONHandler(c.writer, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	default:
		return slog.NewTextHandler(c.writer, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	}
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l <= slog.LevelInfo:
		return charmlog.InfoLevel
	case l <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}

// Nop returns a logger that drops every record.
func Nop() *slog.Logger {
	return slog.New(discard{})
}

// OrNop returns l, or Nop() when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }
