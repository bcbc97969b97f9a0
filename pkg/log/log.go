package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)


var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger with node_id field
func WithNodeID(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}

// WithPeerID creates a child logger with peer_id field
func WithPeerID(peerID string) zerolog.Logger {
	return Logger.With().Str("peer_id", peerID).Logger()
}

// WithRecordID creates a child logger with record_id field
func WithRecordID(recordID string) zerolog.Logger {
	return Logger.With().Str("record_id", recordID).Logger()
}

// WithBundleID creates a child logger with bundle_id field
func WithBundleID(bundleID string) zerolog.Logger {
	return Logger.With().Str("bundle_id", bundleID).Logger()
}

// WithSampledComponent creates a component logger that only emits
// every nth event. The mesh relay loop and the sync debounce timer
// can both fire many times a second on a busy node; logging every
// occurrence at Debug would dominate a field node's log file. No
// package in this module calls it; it is there for such hot paths.
func WithSampledComponent(component string, every uint32) zerolog.Logger {
	if every == 0 {
		every = 1
	}
	sampled := Logger.Sample(&zerolog.BasicSampler{N: every})
	return sampled.With().Str("component", component).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
