package metrics

import (
	"time"

	"github.com/cuemby/cave/pkg/types"
)

// SandboxLister is the subset of *sandbox.Kernel the Collector needs. An
// interface here, rather than a direct dependency on pkg/sandbox, keeps
// metrics free of a back-edge to the package that imports metrics to
// record exec/create metrics inline.
type SandboxLister interface {
	ListSandboxes(namespace string) ([]*types.Sandbox, error)
}

// Collector periodically samples gauge-style metrics that are cheaper to
// poll than to update inline at every call site: the per-status sandbox
// count. Counters and histograms (exec duration, WAL append latency, RLS
// evaluations) are updated inline by their owning packages instead.
type Collector struct {
	kernel SandboxLister
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for kernel.
func NewCollector(kernel SandboxLister) *Collector {
	return &Collector{
		kernel: kernel,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval, matching the
// teacher's collection cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	sandboxes, err := c.kernel.ListSandboxes("")
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, sb := range sandboxes {
		counts[string(sb.Status)]++
	}
	for status, count := range counts {
		SandboxesTotal.WithLabelValues(status).Set(float64(count))
	}
}
