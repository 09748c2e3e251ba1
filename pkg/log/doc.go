/*
Package log provides structured logging for PRISM using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

PRISM's logging system provides structured JSON logging with minimal overhead:

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
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("consensus")                │          │
	│  │  - WithReplicaID("node-abc123")              │          │
	│  │  - WithTerm(7)                                │          │
	│  │  - WithHash("blake3:...")                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "consensus",                │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "leader elected"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF leader elected component=consensus │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all PRISM packages
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
  - WithReplicaID: Add replica ID context
  - WithTerm: Add Raft term context
  - WithHash: Add content hash context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "anti-entropy round starting with 3 peers"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "leader elected: node-1 (term 7)"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "peer unreachable at registration"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "blob integrity check failed: hash mismatch"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to initialize Raft: %v"

# Usage

Initializing the Logger:

	import "github.com/prism-io/prism/pkg/log"

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
	file, _ := os.OpenFile("/var/log/prismd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("cluster bootstrapped")
	log.Debug("checking peer status")
	log.Warn("anti-entropy round exceeded deadline")
	log.Error("failed to dial peer")
	log.Fatal("cannot start without data directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("replica_id", "node-1").
		Uint64("term", 7).
		Msg("leader elected")

	log.Logger.Error().
		Err(err).
		Str("peer", "node-2").
		Msg("peer health check failed")

Component Loggers:

	// Create component-specific logger
	consensusLog := log.WithComponent("consensus")
	consensusLog.Info().Msg("starting election")
	consensusLog.Debug().Uint64("term", 7).Msg("requesting votes")

	// Multiple context fields
	syncLog := log.WithComponent("crdtkernel").
		With().Str("replica_id", "node-1").
		Str("peer", "node-2").Logger()
	syncLog.Info().Msg("starting anti-entropy round")

Context Logger Helpers:

	// Replica-specific logs
	replicaLog := log.WithReplicaID("node-abc123")
	replicaLog.Info().Msg("replica joined cluster")

	// Term-specific logs
	termLog := log.WithTerm(42)
	termLog.Info().Msg("term advanced")

	// Hash-specific logs
	hashLog := log.WithHash("b3:9af2...")
	hashLog.Info().Msg("blob stored")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/prism-io/prism/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("prismd starting")

		// Component-specific logging
		consensusLog := log.WithComponent("consensus")
		consensusLog.Info().
			Str("replica_id", "node-1").
			Int("term", 5).
			Msg("leader elected")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "transport").
			Msg("failed to dial peer")

		log.Info("prismd stopped")
	}

# Integration Points

This package integrates with:

  - pkg/consensus: Logs leader elections, term changes, snapshot activity
  - pkg/blobstore: Logs blob store writes and garbage collection
  - pkg/crdtkernel: Logs CRDT merges and anti-entropy sync rounds
  - pkg/coordinator: Logs cross-component orchestration
  - pkg/transport: Logs peer dial/accept errors

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"consensus","time":"2024-10-13T10:30:00Z","message":"leader elected"}
	{"level":"info","component":"crdtkernel","replica_id":"node-1","time":"2024-10-13T10:30:01Z","message":"anti-entropy sync complete"}
	{"level":"error","component":"transport","peer":"node-2","error":"connection refused","time":"2024-10-13T10:30:02Z","message":"dial failed"}

Console Format (Development):

	2024-10-13T10:30:00Z INF leader elected component=consensus
	2024-10-13T10:30:01Z INF anti-entropy sync complete component=crdtkernel replica_id=node-1
	2024-10-13T10:30:02Z ERR dial failed error="connection refused" component=transport peer=node-2

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
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path
  - Check: Log statements in tight loops
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

PRISM doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/prismd
	/var/log/prismd/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u prismd -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"consensus" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="consensus"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "consensus"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:prismd component:consensus status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check prismd process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "blob integrity check failed"
  - Description: Corrupt or tampered blob detected during GC
  - Action: Check disk integrity, compare against a peer's blob store

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, API keys
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (replica ID, term, blob hash)

Don't:
  - Log sensitive data (secrets, passwords)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
