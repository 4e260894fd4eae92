// Package realtime fans out table change events to subscribers.
//
// Each table has its own named channel; a publisher (the executor, after
// a mutating statement commits) never blocks on a slow subscriber. When
// a subscriber's bounded buffer is full, it is marked lagged and the
// next value it receives is ErrLagged instead of a skipped event —
// adapted from the teacher's pkg/events broker, which drops events
// silently on a full buffer with no signal to the subscriber at all.
package realtime
