/*
Package elog provides structured logging for the ember storage engine using
zerolog.

The elog package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helper functions
for common patterns. All logs include timestamps and support filtering by
severity for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via elog.Init()              │          │
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
	│  │  - WithComponent("buffer"|"wal"|"lockmgr")  │          │
	│  │  - WithPartition(partitionNum)              │          │
	│  │  - WithXct(tid)                             │          │
	│  │  - WithPage(pageID)                         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "wal",                      │          │
	│  │    "partition": 3,                          │          │
	│  │    "time": "2026-07-29T10:30:00Z",          │          │
	│  │    "message": "partition rotated"           │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF partition rotated component=wal partition=3 │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via elog.Init()
  - Accessible from every engine component (C1-C8)
  - Thread-safe concurrent writes

Component loggers:

Every long-lived component (the log manager, the lock manager, the buffer
pool's cleaner, the checkpoint thread, a transaction context) takes a
zerolog.Logger at construction time, obtained from one of the With*
helpers. This keeps log fields consistent without threading a context
value through every call.

# Usage

	elog.Init(elog.Config{Level: elog.InfoLevel, JSONOutput: true})
	walLogger := elog.WithComponent("wal")
	walLogger.Info().Int64("partition", 4).Msg("partition rotated")

# Design notes

The package intentionally stays thin: it is a thin convenience layer over
zerolog, not an abstraction meant to allow swapping logging backends.
Every engine component depends on zerolog directly through this package's
returned zerolog.Logger values.
*/
package elog
