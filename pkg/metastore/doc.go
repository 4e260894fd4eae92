/*
Package metastore provides BoltDB-backed persistence for CAVE's control
plane metadata.

	┌──────────────────── METASTORE (cave.db) ─────────────────┐
	│  sandboxes   (Sandbox ID -> Sandbox)                     │
	│  executions  (Execution ID -> Execution, SandboxID index │
	│               via linear scan — execution volume is low) │
	│  policies    (Policy ID -> RLSPolicy)                     │
	│  api_keys    (Key ID -> APIKey)                           │
	└────────────────────────────────────────────────────────────┘

Deleting a sandbox cascades to its executions by hand, since BoltDB has
no foreign keys to do it for us.
*/
package metastore
