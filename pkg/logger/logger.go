// Package logger builds the slog logger used across Polystats and holds the
// domain field helpers. Every component receives a *slog.Logger constructed
// here, so output format and level are decided in one place.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION
// ══════════════════════════════════════════════════════════════════════════════

// Format selects the output encoding.
type Format string

const (
	// FormatJSON - one JSON object per line.
	FormatJSON Format = "json"
	// FormatText - human-readable key=value output.
	FormatText Format = "text"
)

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatJSON,
	}
}

// New creates a logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	hopts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var h slog.Handler
	switch opts.Format {
	case FormatText:
		h = slog.NewTextHandler(opts.Output, hopts)
	default:
		h = slog.NewJSONHandler(opts.Output, hopts)
	}
	return slog.New(h)
}

// Default creates a logger with default options.
func Default() *slog.Logger {
	return New(DefaultOptions())
}

// ParseLevel maps a config string to a slog level. Unknown strings fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Domain logging helpers for Polystats. The raw user token is never a field;
// only its hash is.

func TrackID(id string) slog.Attr       { return slog.String("track_id", id) }
func TokenHash(hash string) slog.Attr   { return slog.String("token_hash", hash) }
func SessionID(id string) slog.Attr     { return slog.String("session_id", id) }
func Attempt(n int) slog.Attr           { return slog.Int("attempt", n) }
func RankPosition(pos int) slog.Attr    { return slog.Int("rank_position", pos) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Err wraps an error for structured output; nil-safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}
