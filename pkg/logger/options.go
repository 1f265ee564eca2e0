package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the handler New builds.
type Format string

const (
	// FormatText is slog's key=value text handler.
	FormatText Format = "text"

	// FormatPretty is the colorized charmbracelet/log handler for terminals.
	FormatPretty Format = "pretty"

	// FormatJSON is slog's JSON handler, one object per line.
	FormatJSON Format = "json"
)

// Formats lists the accepted format names.
func Formats() []string {
	return []string{string(FormatPretty), string(FormatText), string(FormatJSON)}
}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatPretty, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (valid: %s)", s, strings.Join(Formats(), ", "))
	}
}

// Option configures a logger created with New.
type Option func(*config)

// WithFormat selects the output handler. The default is FormatText.
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithDebug is WithLevel(slog.LevelDebug) when debug is set and
// WithLevel(slog.LevelInfo) otherwise.
func WithDebug(debug bool) Option {
	if debug {
		return WithLevel(slog.LevelDebug)
	}
	return WithLevel(slog.LevelInfo)
}

// WithWriter sets the destination. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writer = w
	}
}

// WithSource adds the caller's file:line to each record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
