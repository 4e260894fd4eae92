package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/audit"
	"github.com/cuemby/cave/pkg/isolation"
	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/metrics"
	"github.com/cuemby/cave/pkg/types"
)

const defaultRuntimeKind = "process"

// IsolationSettings controls which pkg/isolation primitives the kernel
// applies to spawned executions.
type IsolationSettings struct {
	EnableNamespaces bool
	EnableCgroups    bool
	EnableOverlayfs  bool
	EnableSeccomp    bool
	BubblewrapPath   string
	SeccompExtra     []string
	FallbackToPlain  bool
	// Bwrap carries the host-configurable bwrap knobs (unshare set,
	// dropped capabilities, extra bind paths, uid/gid mapping, proc
	// path) through to pkg/isolation.BuildBubblewrapCommand.
	Bwrap isolation.BwrapOptions
}

// DefaultIsolationSettings mirrors the original's Linux-on defaults.
func DefaultIsolationSettings() IsolationSettings {
	linux := runtime.GOOS == "linux"
	return IsolationSettings{
		EnableNamespaces: true,
		EnableCgroups:    true,
		EnableOverlayfs:  linux,
		EnableSeccomp:    linux,
		FallbackToPlain:  true,
	}
}

// Config is the kernel's static configuration.
type Config struct {
	WorkspaceRoot  string
	DefaultLimits  types.ResourceLimits
	DefaultRuntime string
	// CgroupRoot overrides the cgroup v2 filesystem root; empty uses
	// "/sys/fs/cgroup".
	CgroupRoot string
	Isolation  IsolationSettings
}

// WorkspaceFor computes the on-disk directory for a (namespace, id) pair.
func (c Config) WorkspaceFor(namespace, id string) string {
	return filepath.Join(c.WorkspaceRoot, sanitizeComponent(namespace), id)
}

// Kernel is CAVE's sandbox orchestrator: it creates, starts, execs,
// stops and deletes sandboxes, persisting metadata via a metastore.Store
// and mirroring every transition to an audit.Writer.
type Kernel struct {
	store  *metastore.Store
	config Config
	auditW *audit.Writer

	mu        sync.RWMutex
	instances map[string]*instance

	bwrapPath      string
	seccompProfile *isolation.SeccompProfile
}

// New builds a Kernel. When cfg.Isolation.EnableNamespaces is set but
// bwrap isn't installed, New either disables namespace isolation (when
// FallbackToPlain) or returns an error.
func New(store *metastore.Store, cfg Config, auditW *audit.Writer) (*Kernel, error) {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "./.cave_workspaces"
	}
	if cfg.DefaultRuntime == "" {
		cfg.DefaultRuntime = defaultRuntimeKind
	}

	k := &Kernel{
		store:     store,
		config:    cfg,
		auditW:    auditW,
		instances: make(map[string]*instance),
	}

	if cfg.Isolation.EnableNamespaces {
		path := cfg.Isolation.BubblewrapPath
		if path == "" {
			path = isolation.WhichBubblewrap()
		}
		if path == "" {
			if !cfg.Isolation.FallbackToPlain {
				return nil, fmt.Errorf("sandbox: bubblewrap not found and fallback disabled")
			}
			log.WithComponent("sandbox").Warn().Msg("bubblewrap not found; falling back to plain process execution")
			k.config.Isolation.EnableNamespaces = false
		} else {
			k.bwrapPath = path
		}
	}

	if cfg.Isolation.EnableSeccomp {
		k.seccompProfile = isolation.BuildSeccompProfile(cfg.Isolation.SeccompExtra)
	}

	return k, nil
}

// CreateSandboxRequest is the payload for provisioning a new sandbox.
type CreateSandboxRequest struct {
	Namespace string
	Name      string
	Runtime   string
	Limits    *types.ResourceLimits
	Labels    map[string]string
}

// CreateSandbox persists a new sandbox record. Namespace uniqueness of
// (namespace, name) is enforced by the metastore.
func (k *Kernel) CreateSandbox(req CreateSandboxRequest) (*types.Sandbox, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SandboxCreateDuration)

	limits := req.Limits
	if limits == nil {
		defaults := k.config.DefaultLimits
		limits = &defaults
	}
	runtime := req.Runtime
	if runtime == "" {
		runtime = k.config.DefaultRuntime
	}

	now := time.Now().UTC()
	sb := &types.Sandbox{
		ID:        uuid.NewString(),
		Namespace: req.Namespace,
		Name:      req.Name,
		Runtime:   runtime,
		Status:    types.SandboxProvisioned,
		Limits:    limits,
		Labels:    req.Labels,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := k.store.CreateSandbox(sb); err != nil {
		return nil, err
	}

	log.WithSandboxID(sb.ID).Info().Str("namespace", sb.Namespace).Msg("sandbox created")
	k.auditW.AppendNonFatal(audit.Created(sb.ID, sb.Namespace, sb.Name, sb.Runtime, limitsToMap(limits)))
	return sb, nil
}

func limitsToMap(l *types.ResourceLimits) map[string]int64 {
	if l == nil {
		return nil
	}
	return map[string]int64{
		"cpu_millis":    l.CPUMillis,
		"memory_bytes":  l.MemoryBytes,
		"disk_bytes":    l.DiskBytes,
		"timeout_secs":  l.TimeoutSecs,
		"max_processes": l.MaxProcesses,
	}
}

// StartSandbox transitions a sandbox to Preparing then Running, creating
// its workspace and spawning the backing instance. On failure the
// sandbox is marked Failed.
func (k *Kernel) StartSandbox(id string) (*types.Sandbox, error) {
	sb, err := k.store.GetSandbox(id)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	if _, running := k.instances[id]; running {
		k.mu.Unlock()
		return nil, caveerr.NewConflict("sandbox.StartSandbox", fmt.Errorf("sandbox %s is already running", id))
	}
	k.mu.Unlock()

	if sb.Status != types.SandboxProvisioned && sb.Status != types.SandboxStopped {
		return nil, caveerr.NewConflict("sandbox.StartSandbox", fmt.Errorf("sandbox %s is in status %s, must be provisioned or stopped to start", id, sb.Status))
	}

	sb.Status = types.SandboxPreparing
	sb.UpdatedAt = time.Now().UTC()
	if err := k.store.UpdateSandbox(sb); err != nil {
		return nil, err
	}

	workspace := k.config.WorkspaceFor(sb.Namespace, sb.ID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		sb.Status = types.SandboxFailed
		sb.UpdatedAt = time.Now().UTC()
		_ = k.store.UpdateSandbox(sb)
		return nil, caveerr.NewRuntimeFailure("sandbox.StartSandbox", fmt.Errorf("creating workspace %s: %w", workspace, err))
	}

	inst, err := k.spawn(sb, workspace)
	if err != nil {
		sb.Status = types.SandboxFailed
		sb.UpdatedAt = time.Now().UTC()
		_ = k.store.UpdateSandbox(sb)
		log.WithSandboxID(id).Warn().Err(err).Msg("sandbox failed to start")
		return nil, caveerr.NewRuntimeFailure("sandbox.StartSandbox", err)
	}

	k.mu.Lock()
	k.instances[id] = inst
	k.mu.Unlock()

	now := time.Now().UTC()
	sb.Status = types.SandboxRunning
	sb.LastStartedAt = now
	sb.UpdatedAt = now
	if err := k.store.UpdateSandbox(sb); err != nil {
		return nil, err
	}

	log.WithSandboxID(id).Info().Msg("sandbox running")
	k.auditW.AppendNonFatal(audit.Started(sb.ID, sb.Namespace))
	return sb, nil
}

// ExecRequest routes a command to a running sandbox's instance.
type ExecRequest struct {
	Command string
	Args    []string
	Stdin   string
	Timeout time.Duration
}

// ExecOutcome is the result of one Exec call.
type ExecOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Exec runs req inside sandbox id's instance and appends an execution
// record plus an audit entry regardless of whether the command
// succeeded, failed, or was killed for timeout.
func (k *Kernel) Exec(id string, req ExecRequest) (*ExecOutcome, error) {
	sb, err := k.store.GetSandbox(id)
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	inst, ok := k.instances[id]
	k.mu.RUnlock()
	if !ok {
		return nil, caveerr.NewConflict("sandbox.Exec", fmt.Errorf("sandbox %s is not running", id))
	}

	if req.Timeout == 0 {
		timeout := sb.Limits.TimeoutSecs
		if timeout <= 0 {
			timeout = 30
		}
		req.Timeout = time.Duration(timeout) * time.Second
	}

	timer := metrics.NewTimer()
	startedAt := time.Now().UTC()
	outcome, err := inst.exec(req)
	if err != nil {
		timer.ObserveDurationVec(metrics.ExecDuration, "error")
		metrics.ExecsTotal.WithLabelValues("error").Inc()
		return nil, caveerr.NewRuntimeFailure("sandbox.Exec", err)
	}
	finishedAt := time.Now().UTC()

	execOutcome := "ok"
	if outcome.TimedOut {
		execOutcome = "timeout"
	}
	timer.ObserveDurationVec(metrics.ExecDuration, execOutcome)
	metrics.ExecsTotal.WithLabelValues(execOutcome).Inc()

	execRecord := &types.Execution{
		ID:         uuid.NewString(),
		SandboxID:  sb.ID,
		Command:    req.Command,
		Args:       req.Args,
		ExitCode:   outcome.ExitCode,
		Stdout:     outcome.Stdout,
		Stderr:     outcome.Stderr,
		TimedOut:   outcome.TimedOut,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		DurationMS: outcome.Duration.Milliseconds(),
	}
	if err := k.store.AppendExecution(execRecord); err != nil {
		return nil, err
	}

	k.auditW.AppendNonFatal(audit.Exec(sb.ID, sb.Namespace, req.Command, req.Args,
		outcome.ExitCode, outcome.Duration.Milliseconds(), outcome.TimedOut))

	return outcome, nil
}

// StopSandbox terminates the backing instance and marks the sandbox Stopped.
func (k *Kernel) StopSandbox(id string) error {
	sb, err := k.store.GetSandbox(id)
	if err != nil {
		return err
	}

	k.mu.Lock()
	inst, ok := k.instances[id]
	if ok {
		delete(k.instances, id)
	}
	k.mu.Unlock()
	if !ok {
		return caveerr.NewConflict("sandbox.StopSandbox", fmt.Errorf("sandbox %s is not running", id))
	}

	if err := inst.stop(); err != nil {
		return caveerr.NewRuntimeFailure("sandbox.StopSandbox", err)
	}

	now := time.Now().UTC()
	sb.Status = types.SandboxStopped
	sb.LastStoppedAt = now
	sb.UpdatedAt = now
	if err := k.store.UpdateSandbox(sb); err != nil {
		return err
	}

	log.WithSandboxID(id).Info().Msg("sandbox stopped")
	k.auditW.AppendNonFatal(audit.Stopped(sb.ID, sb.Namespace))
	return nil
}

// DeleteSandbox removes the sandbox's record and workspace. The sandbox
// must not be running.
func (k *Kernel) DeleteSandbox(id string) error {
	k.mu.RLock()
	_, running := k.instances[id]
	k.mu.RUnlock()
	if running {
		return caveerr.NewConflict("sandbox.DeleteSandbox", fmt.Errorf("sandbox %s is already running", id))
	}

	sb, err := k.store.GetSandbox(id)
	if err != nil {
		return err
	}

	workspace := k.config.WorkspaceFor(sb.Namespace, sb.ID)
	if err := os.RemoveAll(workspace); err != nil {
		return caveerr.NewRuntimeFailure("sandbox.DeleteSandbox", fmt.Errorf("removing workspace %s: %w", workspace, err))
	}

	if err := k.store.DeleteSandbox(id); err != nil {
		return err
	}

	log.WithSandboxID(id).Info().Msg("sandbox deleted")
	k.auditW.AppendNonFatal(audit.Deleted(sb.ID, sb.Namespace))
	return nil
}

// GetSandbox returns the current metadata snapshot.
func (k *Kernel) GetSandbox(id string) (*types.Sandbox, error) {
	return k.store.GetSandbox(id)
}

// ListSandboxes lists sandboxes in namespace, or all namespaces when empty.
func (k *Kernel) ListSandboxes(namespace string) ([]*types.Sandbox, error) {
	return k.store.ListSandboxes(namespace)
}

// RecentExecutions returns up to limit past executions for id, most recent first.
func (k *Kernel) RecentExecutions(id string, limit int) ([]*types.Execution, error) {
	if _, err := k.store.GetSandbox(id); err != nil {
		return nil, err
	}
	return k.store.RecentExecutions(id, limit)
}

// sanitizeComponent replaces anything outside [A-Za-z0-9_-] with an
// underscore so namespace/sandbox names are always safe path components.
func sanitizeComponent(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
