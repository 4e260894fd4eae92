// Package audit implements CAVE's tamper-evident sandbox audit log.
//
// Every sandbox lifecycle transition and exec call is appended as one
// JSON line to an append-only file, guarded by a single mutex so writers
// never interleave. When an HMAC key is configured, each line carries a
// base64url signature over its event payload; VerifySignedLine recomputes that MAC
// and compares it in constant time, so a line can be proven unmodified
// since it was written without trusting the file's origin.
//
// Append failures are logged and otherwise swallowed: losing an audit
// record must never abort the sandbox operation it describes.
package audit
