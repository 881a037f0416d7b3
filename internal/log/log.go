// Package log provides structured, leveled logging for the QNet core.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for each major part of the system (§2 components).
var (
	Crypto     zerolog.Logger
	Reputation zerolog.Logger
	P2P        zerolog.Logger
	Storage    zerolog.Logger
	Selection  zerolog.Logger
	Pipeline   zerolog.Logger
	Consensus  zerolog.Logger
	Failover   zerolog.Logger
	RPC        zerolog.Logger
	Node       zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration. When file is
// non-empty, logs are written to both the console (colored or JSON per
// jsonOutput) and the file (always JSON for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		lvl := parseLevel(level)

		var consoleWriter io.Writer
		if jsonOutput {
			consoleWriter = os.Stdout
		} else {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "15:04:05",
				NoColor:    false,
			}
		}

		multi := zerolog.MultiLevelWriter(consoleWriter, f)
		Logger = zerolog.New(multi).
			Level(lvl).
			With().
			Timestamp().
			Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}

	lvl := parseLevel(level)
	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	lvl := parseLevel(level)
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Crypto = Logger.With().Str("component", "crypto").Logger()
	Reputation = Logger.With().Str("component", "reputation").Logger()
	P2P = Logger.With().Str("component", "p2p").Logger()
	Storage = Logger.With().Str("component", "storage").Logger()
	Selection = Logger.With().Str("component", "selection").Logger()
	Pipeline = Logger.With().Str("component", "pipeline").Logger()
	Consensus = Logger.With().Str("component", "consensus").Logger()
	Failover = Logger.With().Str("component", "failover").Logger()
	RPC = Logger.With().Str("component", "rpc").Logger()
	Node = Logger.With().Str("component", "node").Logger()
}

// WithComponent returns a logger tagged with an arbitrary component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithNodeID returns a logger tagged with the local node_id.
func WithNodeID(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}

// Recover logs and swallows a panic recovered in a background task so it
// never brings the process down (§7 propagation policy).
func Recover(component string) {
	if r := recover(); r != nil {
		WithComponent(component).Error().
			Interface("panic", r).
			Msg("recovered panic in background task")
	}
}

// Benchmark returns a closure that logs elapsed time when called; used to
// time expensive operations (signing, sampling, compaction).
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
