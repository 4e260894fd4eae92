package isolation

import (
	"fmt"

	cgroup2 "github.com/containerd/cgroups/v3/cgroup2"
	"github.com/cuemby/cave/pkg/types"
)

const (
	defaultCgroupMountpoint = "/sys/fs/cgroup"
	pidsPerTenSecs          = int64(64) // baseline pids.max unit per 10s of timeout
	cpuPeriodMicros         = uint64(100000)
)

// Cgroup wraps a prepared cgroup v2 group for a single sandbox execution.
type Cgroup struct {
	manager *cgroup2.Manager
	path    string
}

// Prepare creates a fresh cgroup v2 group named for id directly under the
// cgroup v2 root (<mountpoint>/<id>), applying limits. mountpoint is the cgroup v2 filesystem root;
// an empty string uses the standard "/sys/fs/cgroup". On non-Linux or when
// cgroup2 isn't mounted, callers should treat the returned error as
// non-fatal and run unconfined.
func Prepare(mountpoint, id string, limits *types.ResourceLimits) (*Cgroup, error) {
	if mountpoint == "" {
		mountpoint = defaultCgroupMountpoint
	}
	group := fmt.Sprintf("/%s", id)

	resources := &cgroup2.Resources{}
	if limits != nil {
		if limits.MemoryBytes > 0 {
			resources.Memory = &cgroup2.Memory{Max: &limits.MemoryBytes}
		}
		pidsMax := pidsLimit(limits)
		resources.Pids = &cgroup2.Pids{Max: pidsMax}

		if quota := cpuQuotaMicros(limits.CPUMillis); quota != nil {
			period := cpuPeriodMicros
			resources.CPU = &cgroup2.CPU{Max: cgroup2.NewCPUMax(quota, &period)}
		}
	}

	manager, err := cgroup2.NewManager(mountpoint, group, resources)
	if err != nil {
		return nil, fmt.Errorf("isolation: create cgroup %s: %w", group, err)
	}

	return &Cgroup{manager: manager, path: group}, nil
}

// AddPID moves pid into the cgroup.
func (c *Cgroup) AddPID(pid int) error {
	if c == nil {
		return nil
	}
	if err := c.manager.AddProc(uint64(pid)); err != nil {
		return fmt.Errorf("isolation: add pid %d to cgroup %s: %w", pid, c.path, err)
	}
	return nil
}

// Cleanup deletes the cgroup. Safe to call on a nil *Cgroup.
func (c *Cgroup) Cleanup() error {
	if c == nil {
		return nil
	}
	return c.manager.Delete()
}

// pidsLimit derives the baseline process-count ceiling: 64 times the
// number of 10-second windows in the exec timeout, floored at one window
// so a short timeout still gets a usable budget.
func pidsLimit(limits *types.ResourceLimits) int64 {
	if limits.MaxProcesses > 0 {
		return limits.MaxProcesses
	}
	windows := limits.TimeoutSecs / 10
	if windows < 1 {
		windows = 1
	}
	return pidsPerTenSecs * windows
}

// cpuQuotaMicros converts millicores into a cpu.max quota in
// microseconds per cpuPeriodMicros period. Zero means unconstrained
// ("max"), represented here as a nil quota.
func cpuQuotaMicros(cpuMillis int64) *uint64 {
	if cpuMillis <= 0 {
		return nil
	}
	quota := uint64(cpuMillis) * cpuPeriodMicros / 1000
	if quota < 1 {
		quota = 1
	}
	return &quota
}
