package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sandbox represents a provisioned isolation unit: a namespaced workspace
// plus the runtime configuration used to spawn executions inside it.
type Sandbox struct {
	ID            string
	Namespace     string
	Name          string
	Runtime       string // e.g. "process" (bubblewrap-isolated host process)
	Status        SandboxStatus
	Limits        *ResourceLimits
	WorkspacePath string
	Labels        map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastStartedAt time.Time
	LastStoppedAt time.Time
}

// SandboxStatus is a state in the sandbox lifecycle state machine.
type SandboxStatus string

const (
	SandboxProvisioned SandboxStatus = "provisioned"
	SandboxPreparing   SandboxStatus = "preparing"
	SandboxRunning     SandboxStatus = "running"
	SandboxStopped     SandboxStatus = "stopped"
	SandboxFailed      SandboxStatus = "failed"
	SandboxDeleted     SandboxStatus = "deleted"
)

// ResourceLimits bounds the resources a sandbox's executions may consume.
type ResourceLimits struct {
	CPUMillis    int64 // 0 means unconstrained ("max" cpu.max quota)
	MemoryBytes  int64 // 0 means unconstrained
	DiskBytes    int64 // recorded on the record; not enforced by the process-backend isolation layer
	TimeoutSecs  int64 // wall-clock timeout applied per exec, default 30
	MaxProcesses int64 // derived pids.max unless explicitly set
}

// Execution is the audit-trailed record of a single exec call against a
// sandbox. The sandbox kernel appends one of these per call, regardless of
// whether the process exited cleanly, failed, or was killed for timeout.
type Execution struct {
	ID         string
	SandboxID  string
	Command    string
	Args       []string
	ExitCode   int
	Stdout     string
	Stderr     string
	TimedOut   bool
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMS int64
}

// Duration reports e's wall-clock runtime, FinishedAt minus StartedAt.
func (e *Execution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// ScalarKind tags the concrete type held by a ScalarValue.
type ScalarKind string

const (
	KindNull   ScalarKind = "null"
	KindInt    ScalarKind = "int"
	KindFloat  ScalarKind = "float"
	KindBool   ScalarKind = "bool"
	KindString ScalarKind = "string"
)

// ScalarValue is the closed set of column value types the table engine
// understands. Comparisons between mismatched kinds (Int vs Float
// included) are a query error, never an implicit coercion.
type ScalarValue struct {
	Kind ScalarKind
	Int  int64
	Flt  float64
	Bool bool
	Str  string
}

func NullValue() ScalarValue           { return ScalarValue{Kind: KindNull} }
func IntValue(v int64) ScalarValue     { return ScalarValue{Kind: KindInt, Int: v} }
func FloatValue(v float64) ScalarValue { return ScalarValue{Kind: KindFloat, Flt: v} }
func BoolValue(v bool) ScalarValue     { return ScalarValue{Kind: KindBool, Bool: v} }

// jsonScalar is the wire form of a ScalarValue: {"kind":"int","value":5}.
type jsonScalar struct {
	Kind  ScalarKind  `json:"kind"`
	Value interface{} `json:"value,omitempty"`
}

func (v ScalarValue) MarshalJSON() ([]byte, error) {
	js := jsonScalar{Kind: v.Kind}
	switch v.Kind {
	case KindInt:
		js.Value = v.Int
	case KindFloat:
		js.Value = v.Flt
	case KindBool:
		js.Value = v.Bool
	case KindString:
		js.Value = v.Str
	}
	return json.Marshal(js)
}

func (v *ScalarValue) UnmarshalJSON(data []byte) error {
	var js jsonScalar
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}
	switch js.Kind {
	case KindNull, "":
		*v = NullValue()
	case KindInt:
		// Re-decode the value as a json.Number: js.Value holds a float64,
		// whose %v form switches to exponent notation (1e+06) that Int64
		// cannot parse.
		var raw struct {
			Value json.Number `json:"value"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("scalar value: invalid int: %w", err)
		}
		n, err := raw.Value.Int64()
		if err != nil {
			return fmt.Errorf("scalar value: invalid int: %w", err)
		}
		*v = IntValue(n)
	case KindFloat:
		f, err := json.Number(fmt.Sprintf("%v", js.Value)).Float64()
		if err != nil {
			return fmt.Errorf("scalar value: invalid float: %w", err)
		}
		*v = FloatValue(f)
	case KindBool:
		b, ok := js.Value.(bool)
		if !ok {
			return fmt.Errorf("scalar value: invalid bool")
		}
		*v = BoolValue(b)
	case KindString:
		s, ok := js.Value.(string)
		if !ok {
			return fmt.Errorf("scalar value: invalid string")
		}
		*v = StringValue(s)
	default:
		return fmt.Errorf("scalar value: unknown kind %q", js.Kind)
	}
	return nil
}
func StringValue(v string) ScalarValue { return ScalarValue{Kind: KindString, Str: v} }

// Row is a single table row: column name to value.
type Row map[string]ScalarValue

// RLSPolicy is a row-level-security rule attached to a table. Predicate is
// the JSON predicate tree evaluated against a row plus the caller's claims.
type RLSPolicy struct {
	ID        string
	Table     string
	Name      string
	Predicate []byte // raw JSON predicate tree, see pkg/rls
	CreatedAt time.Time
}

// TokenClaims describes an authenticated caller's scope. Scope is either
// "admin" (bypasses RLS and namespace checks) or "namespace:<name>" (all
// claims are evaluated against RLS predicates referencing a claim column).
type TokenClaims struct {
	Subject string
	Scope   string
	Extra   map[string]string
}

// APIKey is the persisted record for an issued API key. BcryptHash
// already embeds its own per-key salt; only it and a display prefix are
// stored, the raw token is never retained.
//
// RevokedAt and LastUsedAt follow the zero-value-means-unset convention
// used elsewhere on this struct; a caller wanting a boolean checks
// !RevokedAt.IsZero().
type APIKey struct {
	ID         string
	Prefix     string
	BcryptHash []byte
	Owner      string
	Scope      string
	RateLimit  uint32
	CreatedAt  time.Time
	LastUsedAt time.Time
	RevokedAt  time.Time
	ExpiresAt  time.Time
}

// ChangeKind identifies the kind of mutation a ChangeEvent describes.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is published on a table's realtime channel after a
// successful mutating statement commits.
type ChangeEvent struct {
	Table     string
	Kind      ChangeKind
	Row       Row
	Timestamp time.Time
}
