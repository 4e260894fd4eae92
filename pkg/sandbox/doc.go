// Package sandbox is the CAVE kernel: it owns the sandbox lifecycle
// state machine (provisioned -> preparing -> running -> stopped, any ->
// failed, deleted terminal), the per-sandbox workspace directory, and
// routes Exec calls to a pkg/isolation-wrapped host process.
//
// Sandbox metadata and execution history persist through pkg/metastore;
// every lifecycle transition and exec call is also mirrored to
// pkg/audit. The kernel keeps at most one running *instance per sandbox
// ID in memory — restarting the daemon loses running instances but
// never the metadata describing them, matching the "no cross-restart
// process resurrection" behavior of the Rust original this is grounded
// on.
package sandbox
