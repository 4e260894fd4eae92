package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/cuemby/cave/pkg/isolation"
	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/types"
)

// instance is one running sandbox's runtime state: its workspace, the
// isolation primitives prepared for it, and a lock serializing execs so
// overlapping Exec calls against the same sandbox never race over the
// same workspace.
type instance struct {
	sandboxID string
	workspace string
	limits    types.ResourceLimits

	kernel *Kernel

	execLock sync.Mutex
	cgroup   *isolation.Cgroup
}

// spawn prepares a sandbox's cgroup (overlay directories are prepared
// fresh per exec, not per sandbox, since each exec gets its own
// upper/work pair) and returns the instance ready for Exec calls.
func (k *Kernel) spawn(sb *types.Sandbox, workspace string) (*instance, error) {
	inst := &instance{
		sandboxID: sb.ID,
		workspace: workspace,
		limits:    *sb.Limits,
		kernel:    k,
	}

	if k.config.Isolation.EnableCgroups {
		cg, err := isolation.Prepare(k.config.CgroupRoot, sb.ID, sb.Limits)
		if err != nil {
			log.WithSandboxID(sb.ID).Warn().Err(err).Msg("failed to initialize cgroup; continuing without cgroup limits")
		} else {
			inst.cgroup = cg
		}
	}

	return inst, nil
}

// exec runs req inside the instance's workspace, applying namespace,
// overlay and seccomp isolation when enabled. A per-instance lock
// serializes execs: concurrent callers queue rather than race over the
// same workspace and overlay directories.
func (inst *instance) exec(req ExecRequest) (*ExecOutcome, error) {
	inst.execLock.Lock()
	defer inst.execLock.Unlock()

	execID := fmt.Sprintf("%d", time.Now().UnixNano())
	activeWorkspace := inst.workspace
	var overlayDirs *isolation.OverlayDirs

	if inst.kernel.config.Isolation.EnableOverlayfs {
		dirs, err := isolation.PrepareOverlayDirs(inst.workspace, execID)
		if err != nil {
			log.WithSandboxID(inst.sandboxID).Warn().Err(err).Msg("failed to prepare overlay directories; continuing without overlay")
		} else if err := isolation.MountOverlay(dirs); err != nil {
			log.WithSandboxID(inst.sandboxID).Warn().Err(err).Msg("failed to mount overlay; continuing without overlay")
			_ = isolation.CleanupOverlayDirs(dirs)
		} else {
			overlayDirs = dirs
			activeWorkspace = dirs.Merged
		}
	}
	if overlayDirs != nil {
		defer func() {
			if err := isolation.UnmountOverlay(overlayDirs); err != nil {
				log.WithSandboxID(inst.sandboxID).Warn().Err(err).Msg("failed to unmount overlay")
			}
			if err := isolation.CleanupOverlayDirs(overlayDirs); err != nil {
				log.WithSandboxID(inst.sandboxID).Warn().Err(err).Msg("failed to clean up overlay directories")
			}
		}()
	}

	spec := isolation.ExecSpec{
		Command: req.Command,
		Args:    req.Args,
		Env:     []string{"CAVE_SANDBOX_ID=" + inst.sandboxID, "PATH=/usr/bin:/bin:/sbin"},
		WorkDir: activeWorkspace,
	}

	ctx, cancel := context.WithTimeout(context.Background(), req.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	var err error
	if inst.kernel.config.Isolation.EnableNamespaces && inst.kernel.bwrapPath != "" {
		cmd, err = isolation.BuildBubblewrapCommand(inst.kernel.bwrapPath, spec, inst.kernel.seccompProfile, inst.kernel.config.Isolation.Bwrap)
		if err != nil {
			return nil, fmt.Errorf("sandbox: build bubblewrap command: %w", err)
		}
	} else if inst.kernel.seccompProfile != nil {
		cmd, err = isolation.BuildPlainCommandWithSeccomp(spec, inst.kernel.seccompProfile)
		if err != nil {
			return nil, fmt.Errorf("sandbox: build seccomp re-exec command: %w", err)
		}
	} else {
		cmd = isolation.BuildPlainCommand(spec)
	}
	if req.Stdin != "" {
		cmd.Stdin = bytes.NewBufferString(req.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start process: %w", err)
	}

	if inst.cgroup != nil {
		if err := inst.cgroup.AddPID(cmd.Process.Pid); err != nil {
			log.WithSandboxID(inst.sandboxID).Warn().Err(err).Msg("failed to attach process to cgroup")
		}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var timedOut bool
	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-ctx.Done():
		timedOut = true
		log.WithSandboxID(inst.sandboxID).Warn().Msg("execution timed out, terminating process")
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-waitDone
	}

	duration := time.Since(start)
	exitCode := 0
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if waitErr != nil && !timedOut {
		return nil, fmt.Errorf("sandbox: wait for process: %w", waitErr)
	}

	stderrText := stderr.String()
	if timedOut {
		if stderrText != "" {
			stderrText += "\n"
		}
		stderrText += "execution timed out"
	}

	return &ExecOutcome{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderrText,
		Duration: duration,
		TimedOut: timedOut,
	}, nil
}

// stop releases the instance's cgroup. Workspace removal happens in
// Kernel.DeleteSandbox, matching the original's separation between
// "stop the runtime" and "destroy the workspace"; overlays are unmounted
// and removed at the end of each exec.
func (inst *instance) stop() error {
	if err := inst.cgroup.Cleanup(); err != nil {
		return fmt.Errorf("sandbox: cleanup cgroup: %w", err)
	}
	return nil
}
