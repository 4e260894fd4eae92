/*
Package wal implements CAVE's table-engine write-ahead log.

Every mutating statement the executor runs is framed and appended to a
single append-only file before the in-memory table cache is updated, so
a crash between the two can always be repaired by replaying the log.

# Frame format

	┌──────────────┬──────────────────┬─────────────────┐
	│ length (u32) │ checksum (u32)    │ payload (JSON)   │
	│ big-endian   │ low 32 bits of    │ length bytes     │
	│              │ xxhash64(payload) │                 │
	└──────────────┴──────────────────┴─────────────────┘

Frames are appended in strict order by a single writer (Append takes the
log's mutex for its whole duration) and fsynced before Append returns, so
sequence numbers assigned to callers are durable once observed.

# Recovery

Replay performs a forward scan from the start of the file. The first
frame that is incomplete (truncated length/checksum/payload, as happens
when a crash lands mid-write) or whose checksum doesn't match its
payload ends recovery — every well-formed frame before it is replayed,
and the file is truncated at that offset so a subsequent Append resumes
cleanly instead of leaving a corrupt tail at the end of the log.
*/
package wal
