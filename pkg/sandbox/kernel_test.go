package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/audit"
	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/types"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	store, err := metastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	auditW, err := audit.NewWriter(audit.Config{Enabled: false})
	require.NoError(t, err)

	k, err := New(store, Config{
		WorkspaceRoot: t.TempDir(),
		DefaultLimits: types.ResourceLimits{CPUMillis: 500, MemoryBytes: 64 << 20, TimeoutSecs: 5},
		Isolation:     IsolationSettings{FallbackToPlain: true},
	}, auditW)
	require.NoError(t, err)
	return k
}

func TestCreateStartExecStopDeleteLifecycle(t *testing.T) {
	k := newTestKernel(t)

	sb, err := k.CreateSandbox(CreateSandboxRequest{Namespace: "acme", Name: "build"})
	require.NoError(t, err)
	assert.Equal(t, types.SandboxProvisioned, sb.Status)

	started, err := k.StartSandbox(sb.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SandboxRunning, started.Status)

	outcome, err := k.Exec(sb.ID, ExecRequest{Command: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Contains(t, outcome.Stdout, "hello")
	assert.False(t, outcome.TimedOut)

	execs, err := k.RecentExecutions(sb.ID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "echo", execs[0].Command)

	require.NoError(t, k.StopSandbox(sb.ID))

	stopped, err := k.GetSandbox(sb.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SandboxStopped, stopped.Status)

	require.NoError(t, k.DeleteSandbox(sb.ID))

	_, err = k.GetSandbox(sb.ID)
	assert.ErrorIs(t, err, caveerr.ErrNotFound)
}

func TestStartSandboxTwiceIsConflict(t *testing.T) {
	k := newTestKernel(t)

	sb, err := k.CreateSandbox(CreateSandboxRequest{Namespace: "acme", Name: "build"})
	require.NoError(t, err)

	_, err = k.StartSandbox(sb.ID)
	require.NoError(t, err)

	_, err = k.StartSandbox(sb.ID)
	assert.ErrorIs(t, err, caveerr.ErrConflict)
}

func TestExecTimeoutIsReported(t *testing.T) {
	k := newTestKernel(t)

	sb, err := k.CreateSandbox(CreateSandboxRequest{
		Namespace: "acme",
		Name:      "sleeper",
		Limits:    &types.ResourceLimits{TimeoutSecs: 1},
	})
	require.NoError(t, err)

	_, err = k.StartSandbox(sb.ID)
	require.NoError(t, err)

	outcome, err := k.Exec(sb.ID, ExecRequest{Command: "sleep", Args: []string{"5"}})
	require.NoError(t, err)
	assert.True(t, outcome.TimedOut)
	assert.Contains(t, outcome.Stderr, "timed out")
}

func TestDuplicateNameRejected(t *testing.T) {
	k := newTestKernel(t)

	_, err := k.CreateSandbox(CreateSandboxRequest{Namespace: "acme", Name: "build"})
	require.NoError(t, err)

	_, err = k.CreateSandbox(CreateSandboxRequest{Namespace: "acme", Name: "build"})
	assert.ErrorIs(t, err, caveerr.ErrConflict)
}
