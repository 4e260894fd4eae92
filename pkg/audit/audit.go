package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/metrics"
)

// EventKind identifies which lifecycle transition or exec an Event
// records. The serialized field name matches the "type" tag used by the
// JSON encoding below.
type EventKind string

const (
	KindCreated EventKind = "sandbox_created"
	KindStarted EventKind = "sandbox_started"
	KindExec    EventKind = "sandbox_exec"
	KindStopped EventKind = "sandbox_stopped"
	KindDeleted EventKind = "sandbox_deleted"
)

// Event is one audit record. Fields not relevant to Kind are omitted on
// serialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	SandboxID string    `json:"sandbox_id"`
	Namespace string    `json:"namespace"`
	Kind      EventKind `json:"type"`

	// Created
	Name    string            `json:"name,omitempty"`
	Runtime string            `json:"runtime,omitempty"`
	Limits  map[string]int64  `json:"limits,omitempty"`

	// Exec
	Command    string `json:"command,omitempty"`
	Args       []string `json:"args,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

func Created(sandboxID, namespace, name, runtime string, limits map[string]int64) Event {
	return Event{Timestamp: time.Now().UTC(), SandboxID: sandboxID, Namespace: namespace,
		Kind: KindCreated, Name: name, Runtime: runtime, Limits: limits}
}

func Started(sandboxID, namespace string) Event {
	return Event{Timestamp: time.Now().UTC(), SandboxID: sandboxID, Namespace: namespace, Kind: KindStarted}
}

func Exec(sandboxID, namespace, command string, args []string, exitCode int, durationMS int64, timedOut bool) Event {
	code := exitCode
	return Event{Timestamp: time.Now().UTC(), SandboxID: sandboxID, Namespace: namespace, Kind: KindExec,
		Command: command, Args: args, ExitCode: &code, DurationMS: durationMS, TimedOut: timedOut}
}

func Stopped(sandboxID, namespace string) Event {
	return Event{Timestamp: time.Now().UTC(), SandboxID: sandboxID, Namespace: namespace, Kind: KindStopped}
}

func Deleted(sandboxID, namespace string) Event {
	return Event{Timestamp: time.Now().UTC(), SandboxID: sandboxID, Namespace: namespace, Kind: KindDeleted}
}

// Config configures a Writer.
type Config struct {
	Enabled bool
	LogPath string
	HMACKey []byte // empty disables signing
}

// line is the on-disk JSON shape: the event's own fields, flattened,
// plus an optional signature.
type line struct {
	Event
	Signature string `json:"signature,omitempty"`
}

// Writer appends audit events to a single JSONL file under a mutex, so
// concurrent callers never interleave partial lines.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	hmacKey []byte
}

// NewWriter opens (creating if absent) the audit log at cfg.LogPath. A
// disabled config returns a nil Writer; the Writer's methods accept a nil
// receiver and do nothing in that case.
func NewWriter(cfg Config) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &Writer{file: f, hmacKey: cfg.HMACKey}, nil
}

// Append writes event as one JSON line, signing it if a key was
// configured. Callers should treat failures as non-fatal: the caller's
// action already happened and must not be rolled back over a logging
// failure.
func (w *Writer) Append(event Event) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	l := line{Event: event}
	if len(w.hmacKey) > 0 {
		mac := hmac.New(sha256.New, w.hmacKey)
		mac.Write(payload)
		l.Signature = base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	}

	out, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("audit: marshal line: %w", err)
	}
	out = append(out, '\n')

	if _, err := w.file.Write(out); err != nil {
		return fmt.Errorf("audit: write line: %w", err)
	}
	return nil
}

// AppendNonFatal appends event and logs (instead of propagating) any
// failure, matching the kernel's "audit loss must not abort the caller"
// contract.
func (w *Writer) AppendNonFatal(event Event) {
	if err := w.Append(event); err != nil {
		log.WithComponent("audit").Warn().Err(err).Msg("failed to append audit record, continuing")
		metrics.AuditAppendFailuresTotal.Inc()
	}
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	return w.file.Close()
}

// VerifySignedLine validates a previously-written JSON line against key,
// returning the parsed event on success. It errors if key is empty or
// the line carries no signature.
func VerifySignedLine(rawLine []byte, key []byte) (Event, error) {
	if len(key) == 0 {
		return Event{}, fmt.Errorf("audit: cannot verify without an hmac key")
	}

	var l line
	if err := json.Unmarshal(rawLine, &l); err != nil {
		return Event{}, fmt.Errorf("audit: invalid line: %w", err)
	}
	if l.Signature == "" {
		return Event{}, fmt.Errorf("audit: line has no signature")
	}

	wantSig, err := base64.RawURLEncoding.DecodeString(l.Signature)
	if err != nil {
		return Event{}, fmt.Errorf("audit: invalid signature encoding: %w", err)
	}

	payload, err := json.Marshal(l.Event)
	if err != nil {
		return Event{}, fmt.Errorf("audit: re-marshal event: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	gotSig := mac.Sum(nil)

	if !hmac.Equal(gotSig, wantSig) {
		return Event{}, fmt.Errorf("audit: signature mismatch")
	}
	return l.Event, nil
}
