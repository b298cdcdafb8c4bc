package sensor

import (
	"context"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type (
	percentFunc func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memoryFunc  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskFunc    func(ctx context.Context, path string) (*disk.UsageStat, error)
)

// CPUUsage reports overall CPU utilization since the previous call
type CPUUsage struct {
	percent percentFunc
}

func NewCPUUsage() *CPUUsage {
	return &CPUUsage{percent: cpu.PercentWithContext}
}

func (c *CPUUsage) Name() string {
	return "cpu-usage"
}

func (c *CPUUsage) Read(ctx context.Context) (telemetry.Reading, error) {
	pct, err := c.percent(ctx, 0, false)
	if err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrReadFailed, err)
	}
	if len(pct) == 0 {
		return telemetry.Reading{}, errors.New().New(ErrNoSamples)
	}

	return telemetry.Reading{CPUUsagePct: telemetry.Float(pct[0])}, nil
}

// Memory reports used and total RAM. Used is total minus available, so
// reclaimable page cache does not count.
type Memory struct {
	virtualMemory memoryFunc
}

func NewMemory() *Memory {
	return &Memory{virtualMemory: mem.VirtualMemoryWithContext}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) Read(ctx context.Context) (telemetry.Reading, error) {
	vm, err := m.virtualMemory(ctx)
	if err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrReadFailed, err)
	}

	var used uint64
	if vm.Total > vm.Available {
		used = vm.Total - vm.Available
	}

	return telemetry.Reading{
		MemUsedMB:  telemetry.Float(float64(used) / bytesPerMB),
		MemTotalMB: telemetry.Float(float64(vm.Total) / bytesPerMB),
	}, nil
}

// Disk reports the used percentage of one filesystem
type Disk struct {
	path  string
	usage diskFunc
}

func NewDisk(path string) *Disk {
	return &Disk{path: path, usage: disk.UsageWithContext}
}

func (d *Disk) Name() string {
	return "disk"
}

func (d *Disk) Read(ctx context.Context) (telemetry.Reading, error) {
	usage, err := d.usage(ctx, d.path)
	if err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrReadFailed, err)
	}

	return telemetry.Reading{DiskUsagePct: telemetry.Float(usage.UsedPercent)}, nil
}
