// Package sysinfo probes host memory and CPU availability. The worker
// lifecycle manager uses snapshots to size models and to decide when an
// insufficient-resources condition has cleared.
package sysinfo

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	AvailableMemory uint64    `json:"available_memory"`
	TotalMemory     uint64    `json:"total_memory"`
	CPUThreads      int       `json:"cpu_threads"`
	SampledAt       time.Time `json:"sampled_at"`
}

// Prober produces resource snapshots. The system prober is the only real
// implementation; tests substitute fakes to drive recovery scenarios.
type Prober interface {
	Probe() (Snapshot, error)
}

// SystemProber probes via gopsutil.
type SystemProber struct{}

// Probe samples current memory and logical CPU counts.
func (SystemProber) Probe() (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("probe memory: %w", err)
	}

	threads, err := cpu.Counts(true)
	if err != nil || threads <= 0 {
		// gopsutil can fail on exotic platforms; the Go runtime's view is
		// always available.
		threads = runtime.NumCPU()
	}

	return Snapshot{
		AvailableMemory: vm.Available,
		TotalMemory:     vm.Total,
		CPUThreads:      threads,
		SampledAt:       time.Now(),
	}, nil
}

// FormatBytes renders a byte count as a human-readable MiB/GiB figure.
func FormatBytes(n uint64) string {
	const gib = 1 << 30
	const mib = 1 << 20
	if n >= gib {
		return fmt.Sprintf("%.1f GiB", float64(n)/float64(gib))
	}
	return fmt.Sprintf("%d MiB", n/mib)
}
