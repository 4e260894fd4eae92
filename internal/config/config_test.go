package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCaveEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAVE_DATA_DIR", "CAVE_WORKSPACE_ROOT",
		"CAVE_DEFAULT_CPU_MILLIS", "CAVE_DEFAULT_MEMORY_MIB", "CAVE_DEFAULT_DISK_MIB", "CAVE_DEFAULT_TIMEOUT_SECONDS",
		"CAVE_DISABLE_ISOLATION", "CAVE_DISABLE_NAMESPACES", "CAVE_ENABLE_NAMESPACES",
		"CAVE_DISABLE_CGROUPS", "CAVE_ENABLE_CGROUPS", "CAVE_ISOLATION_NO_FALLBACK",
		"CAVE_BWRAP_PATH", "CAVE_SECCOMP_EXTRA", "CAVE_CGROUP_ROOT",
		"CAVE_AUDIT_LOG_ENABLED", "CAVE_AUDIT_LOG_PATH", "CAVE_AUDIT_LOG_HMAC_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearCaveEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./cave-data", cfg.DataDir)
	assert.Equal(t, "./cave-workspaces", cfg.WorkspaceRoot)
	assert.Equal(t, int64(1000), cfg.DefaultLimits.CPUMillis)
	assert.Equal(t, int64(256<<20), cfg.DefaultLimits.MemoryBytes)
	assert.True(t, cfg.AuditEnabled)
	assert.True(t, cfg.Isolation.EnableCgroups)
}

func TestLoadOverridesAndDisableIsolation(t *testing.T) {
	clearCaveEnv(t)
	t.Setenv("CAVE_DEFAULT_CPU_MILLIS", "2000")
	t.Setenv("CAVE_DISABLE_ISOLATION", "true")
	t.Setenv("CAVE_AUDIT_LOG_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(2000), cfg.DefaultLimits.CPUMillis)
	assert.False(t, cfg.Isolation.EnableNamespaces)
	assert.False(t, cfg.Isolation.EnableCgroups)
	assert.False(t, cfg.AuditEnabled)
}

func TestLoadDisableWinsOverEnable(t *testing.T) {
	clearCaveEnv(t)
	t.Setenv("CAVE_ENABLE_CGROUPS", "true")
	t.Setenv("CAVE_DISABLE_CGROUPS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Isolation.EnableCgroups)
}

func TestLoadRejectsInvalidHMACKey(t *testing.T) {
	clearCaveEnv(t)
	t.Setenv("CAVE_AUDIT_LOG_HMAC_KEY", "not-valid-base64!!")

	_, err := Load()
	assert.Error(t, err)
}
