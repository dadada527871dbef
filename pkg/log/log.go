package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Components never write
// through it directly; each derives a child via WithComponent at
// construction time so every line names the subsystem it came from.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Config selects the root logger's verbosity and output encoding.
type Config struct {
	Level      string    // "debug", "info", "warn", "error"; unrecognized values mean "info"
	JSONOutput bool      // JSON lines when true, human-readable console encoding otherwise
	Output     io.Writer // defaults to stdout
}

// Init replaces the root logger. Call it once at startup, before any
// component derives its child logger; children derived earlier keep
// the configuration they were born with.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithComponent derives the per-subsystem child logger every package
// holds for its lifetime ("blockstore", "journal", "model", "txn",
// "bridge", "replication").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// Mutation records a successfully journaled mutation at debug level,
// carrying the identifiers an auditor needs to find it again: the
// operation name, its journal sequence, and the primary block it
// touched (0 when the operation spans multiple blocks).
func Mutation(l zerolog.Logger, op string, sequence, blockID uint64) {
	l.Debug().
		Str("op", op).
		Uint64("sequence", sequence).
		Uint64("block_id", blockID).
		Msg("mutation journaled")
}

// Rejection records a recoverable rejection at warn level with its
// machine-readable reason code, mirroring the code the caller gets in
// the error blob.
func Rejection(l zerolog.Logger, reasonCode, msg string) {
	l.Warn().Str("reason_code", reasonCode).Msg(msg)
}
