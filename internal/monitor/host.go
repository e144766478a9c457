package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a sample of the kiosk machine's resources. Kiosks run
// unattended for days, so the status surface reports whether the photo
// disk is filling up or memory is leaking.
type HostStats struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	MemoryFree    uint64    `json:"memoryFree"`
	DiskPercent   float64   `json:"diskPercent"`
	DiskFree      uint64    `json:"diskFree"`
	Uptime        uint64    `json:"uptimeSeconds"`
	SampledAt     time.Time `json:"sampledAt"`
}

// SampleHost reads current resource usage. Individual readings that fail
// are left zero; the error of the first failure is returned alongside the
// partial sample.
func SampleHost(ctx context.Context, diskPath string) (HostStats, error) {
	stats := HostStats{SampledAt: time.Now()}
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		keep(err)
	} else if len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		keep(err)
	} else {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryFree = vm.Available
	}

	if diskPath == "" {
		diskPath = "/"
	}
	if du, err := disk.UsageWithContext(ctx, diskPath); err != nil {
		keep(err)
	} else {
		stats.DiskPercent = du.UsedPercent
		stats.DiskFree = du.Free
	}

	if up, err := host.UptimeWithContext(ctx); err != nil {
		keep(err)
	} else {
		stats.Uptime = up
	}

	return stats, firstErr
}
