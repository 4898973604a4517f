// Package diag samples host resource usage (CPU percent, memory
// used/available, disk usage) once as a pre-flight snapshot before the
// store opens and before the transceiver or engine runs, so an operator
// can correlate a slow run with host load after the fact.
package diag

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time read of host resource usage.
type Snapshot struct {
	NumCPU          int
	CPUUsedPercent  float64
	MemTotalMB      float64
	MemUsedMB       float64
	MemUsedPercent  float64
	DiskUsedPercent float64
}

// Sample gathers a Snapshot, sampling CPU usage over a short window. Any
// individual gopsutil call that fails leaves its fields at zero rather
// than failing the whole snapshot — diagnostics are best-effort and must
// never block a run.
func Sample(path string) Snapshot {
	var snap Snapshot
	snap.NumCPU = runtime.NumCPU()

	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		snap.CPUUsedPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemTotalMB = float64(vm.Total) / 1024 / 1024
		snap.MemUsedMB = float64(vm.Used) / 1024 / 1024
		snap.MemUsedPercent = vm.UsedPercent
	}
	if path == "" {
		path = "."
	}
	if du, err := disk.Usage(path); err == nil {
		snap.DiskUsedPercent = du.UsedPercent
	}
	return snap
}

// Log writes the snapshot to logger at info level as a single structured
// event with flat key-value attributes.
func (s Snapshot) Log(logger *slog.Logger) {
	logger.Info("host resource snapshot",
		"num_cpu", s.NumCPU,
		"cpu_used_percent", s.CPUUsedPercent,
		"mem_total_mb", s.MemTotalMB,
		"mem_used_mb", s.MemUsedMB,
		"mem_used_percent", s.MemUsedPercent,
		"disk_used_percent", s.DiskUsedPercent,
	)
}
