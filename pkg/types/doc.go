/*
Package types defines the core data structures shared across CAVE.

This package holds the domain model used by both hard-core subsystems:
the sandbox kernel (Sandbox, ResourceLimits, Execution) and the embedded
table engine (ScalarValue, Row, RLSPolicy, ChangeEvent), plus the
authentication primitives (TokenClaims, APIKey) consumed by both.

# Core Types

Sandbox lifecycle:
  - Sandbox: a provisioned isolation unit and its current state
  - SandboxStatus: Provisioned, Preparing, Running, Stopped, Failed, Deleted
  - ResourceLimits: CPU/memory/timeout/process-count bounds for executions
  - Execution: the audit record of a single exec call

Table engine:
  - ScalarValue / ScalarKind: the closed set of column value types
  - Row: a single table row, column name to ScalarValue
  - RLSPolicy: a row-level-security predicate attached to a table
  - ChangeEvent: a realtime notification published after a commit

Auth:
  - TokenClaims: an authenticated caller's subject and scope
  - APIKey: the persisted (hashed, never raw) record of an issued key

All types are designed to be JSON-serializable and safe to pass by value
or store directly in the metadata store.
*/
package types
