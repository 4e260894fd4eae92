/*
Package log provides structured logging for CAVE using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Defaulted at package init, reconfigured  │          │
	│  │    via log.Init() in cmd/cave               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, stderr, or custom writer │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("wal"|"executor"|"rls"|...) │          │
	│  │  - WithSandboxID("4c1f...-uuid")             │          │
	│  │  - WithTable("users")                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "kernel",                   │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "sandbox started"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF sandbox started component=kernel │        │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Log Levels

Debug Level:
  - Purpose: detailed tracing (WAL frame offsets, planner decisions)
  - Usage: development and troubleshooting
  - Example: "evaluating RLS predicate: column=tenant_id claim=tenant"

Info Level:
  - Purpose: general informational messages, the default production level
  - Example: "sandbox created: namespace=acme name=build-1"

Warn Level:
  - Purpose: potential issues that do not abort the caller's operation
  - Example: "audit append failed, continuing without audit record"

Error Level:
  - Purpose: operation failures that need investigation
  - Example: "failed to mount overlay: namespace=acme id=..."

Fatal Level:
  - Purpose: unrecoverable startup errors only
  - Behavior: logs the message and exits the process (os.Exit(1))
  - Example: "failed to open metadata store: %v"

# Usage

Initializing the logger:

	import "github.com/cuemby/cave/pkg/log"

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

Before Init runs, the package defaults to a console logger on stderr at
info level, so packages (and tests) that log during package init or
before cmd/cave's cobra.OnInitialize hook fires still produce output.

Simple logging:

	log.Info("metadata store opened")
	log.Debug("replaying WAL from offset 0")
	log.Warn("execution exceeded timeout, sandbox killed")
	log.Error("overlay mount failed")
	log.Fatal("cannot start without a workspace root") // exits process

Component loggers:

	walLog := log.WithComponent("wal")
	walLog.Info().Int("frames", n).Msg("recovery complete")

	sbLog := log.WithComponent("kernel").With().
		Str("sandbox_id", id).Logger()
	sbLog.Info().Msg("sandbox started")

Context logger helpers:

	// Sandbox-scoped logs
	sbLog := log.WithSandboxID(sandboxID)
	sbLog.Info().Msg("exec completed")

	// Table-scoped logs
	tblLog := log.WithTable("users")
	tblLog.Warn().Msg("row rejected by row-level security policy")
*/
package log
