// Package config loads CAVE's daemon configuration from the process
// environment, following the CAVE_* variable names the external
// interfaces contract defines. There is no config file format: every
// knob is an environment variable with a sane default, the same "env
// var with fallback" convention the teacher's CLI commands use for
// flag defaults.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/cave/pkg/isolation"
	"github.com/cuemby/cave/pkg/sandbox"
	"github.com/cuemby/cave/pkg/types"
)

// Config is everything cmd/cave needs to construct a sandbox.Kernel and
// an audit.Writer.
type Config struct {
	DataDir       string
	WorkspaceRoot string
	DefaultLimits types.ResourceLimits

	Isolation  sandbox.IsolationSettings
	CgroupRoot string

	AuditEnabled bool
	AuditPath    string
	AuditHMACKey []byte
}

// Load builds a Config from the environment, applying the defaults
// documented for each CAVE_* variable.
func Load() (Config, error) {
	cfg := Config{
		DataDir:       getEnv("CAVE_DATA_DIR", "./cave-data"),
		WorkspaceRoot: getEnv("CAVE_WORKSPACE_ROOT", "./cave-workspaces"),
		DefaultLimits: types.ResourceLimits{
			CPUMillis:   getEnvInt64("CAVE_DEFAULT_CPU_MILLIS", 1000),
			MemoryBytes: getEnvInt64("CAVE_DEFAULT_MEMORY_MIB", 256) << 20,
			DiskBytes:   getEnvInt64("CAVE_DEFAULT_DISK_MIB", 1024) << 20,
			TimeoutSecs: getEnvInt64("CAVE_DEFAULT_TIMEOUT_SECONDS", 30),
		},
		CgroupRoot:   getEnv("CAVE_CGROUP_ROOT", ""),
		AuditEnabled: getEnvBool("CAVE_AUDIT_LOG_ENABLED", true),
		AuditPath:    getEnv("CAVE_AUDIT_LOG_PATH", "./cave-data/audit.log"),
	}

	isolationCfg, err := loadIsolation()
	if err != nil {
		return Config{}, err
	}
	cfg.Isolation = isolationCfg

	if raw := os.Getenv("CAVE_AUDIT_LOG_HMAC_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: CAVE_AUDIT_LOG_HMAC_KEY is not valid base64: %w", err)
		}
		cfg.AuditHMACKey = key
	}

	return cfg, nil
}

// KernelConfig translates the loaded configuration into the shape
// sandbox.New expects.
func (c Config) KernelConfig() sandbox.Config {
	return sandbox.Config{
		WorkspaceRoot:  c.WorkspaceRoot,
		DefaultLimits:  c.DefaultLimits,
		DefaultRuntime: "process",
		CgroupRoot:     c.CgroupRoot,
		Isolation:      c.Isolation,
	}
}

// loadIsolation resolves CAVE_ENABLE_*/CAVE_DISABLE_* into a concrete
// sandbox.IsolationSettings, starting from sandbox.DefaultIsolationSettings
// and layering explicit enable/disable overrides on top of it. A bare
// CAVE_DISABLE_ISOLATION=true turns every primitive off in one step.
func loadIsolation() (sandbox.IsolationSettings, error) {
	settings := sandbox.DefaultIsolationSettings()

	if getEnvBool("CAVE_DISABLE_ISOLATION", false) {
		settings.EnableNamespaces = false
		settings.EnableCgroups = false
		settings.EnableOverlayfs = false
		settings.EnableSeccomp = false
	}

	applyToggle("CAVE_DISABLE_NAMESPACES", "CAVE_ENABLE_NAMESPACES", &settings.EnableNamespaces)
	applyToggle("CAVE_DISABLE_CGROUPS", "CAVE_ENABLE_CGROUPS", &settings.EnableCgroups)

	settings.FallbackToPlain = !getEnvBool("CAVE_ISOLATION_NO_FALLBACK", false)
	settings.BubblewrapPath = getEnv("CAVE_BWRAP_PATH", settings.BubblewrapPath)
	settings.SeccompExtra = splitCSV(os.Getenv("CAVE_SECCOMP_EXTRA"))

	settings.Bwrap = isolation.BwrapOptions{
		Unshare:         splitCSV(os.Getenv("CAVE_BWRAP_UNSHARE")),
		DropCaps:        splitCSV(os.Getenv("CAVE_BWRAP_DROP_CAPS")),
		ExtraROPaths:    splitCSV(os.Getenv("CAVE_BWRAP_RO_PATHS")),
		ExtraDevPaths:   splitCSV(os.Getenv("CAVE_BWRAP_DEV_PATHS")),
		ExtraTmpfsPaths: splitCSV(os.Getenv("CAVE_BWRAP_TMPFS_PATHS")),
		ProcPath:        os.Getenv("CAVE_BWRAP_PROC_PATH"),
	}
	if raw := os.Getenv("CAVE_BWRAP_UID"); raw != "" {
		uid, err := strconv.Atoi(raw)
		if err != nil {
			return sandbox.IsolationSettings{}, fmt.Errorf("config: CAVE_BWRAP_UID: %w", err)
		}
		settings.Bwrap.UID = &uid
	}
	if raw := os.Getenv("CAVE_BWRAP_GID"); raw != "" {
		gid, err := strconv.Atoi(raw)
		if err != nil {
			return sandbox.IsolationSettings{}, fmt.Errorf("config: CAVE_BWRAP_GID: %w", err)
		}
		settings.Bwrap.GID = &gid
	}

	return settings, nil
}

// applyToggle lets a CAVE_DISABLE_<X>/CAVE_ENABLE_<X> pair override a
// default. Disable wins over enable if both are set, since "disable"
// is the safer operator intent to honor under ambiguity.
func applyToggle(disableVar, enableVar string, target *bool) {
	if getEnvBool(enableVar, false) {
		*target = true
	}
	if getEnvBool(disableVar, false) {
		*target = false
	}
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
