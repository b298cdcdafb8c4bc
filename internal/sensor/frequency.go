package sensor

import (
	"context"
	"path/filepath"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/sysfs"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/shirou/gopsutil/v3/cpu"
)

type infoFunc func(ctx context.Context) ([]cpu.InfoStat, error)

// CPUFrequency reports the mean current frequency over all cores
type CPUFrequency struct {
	sysRoot string
	info    infoFunc
}

// NewCPUFrequency creates a CPU frequency backend reading below sysRoot
func NewCPUFrequency(sysRoot string) *CPUFrequency {
	return newCPUFrequency(sysRoot, cpu.InfoWithContext)
}

func newCPUFrequency(sysRoot string, info infoFunc) *CPUFrequency {
	return &CPUFrequency{sysRoot: sysRoot, info: info}
}

func (c *CPUFrequency) Name() string {
	return "cpu-frequency"
}

func (c *CPUFrequency) Read(ctx context.Context) (telemetry.Reading, error) {
	if mhz, ok := c.fromCpufreq(); ok {
		return telemetry.Reading{CPUFreqMHz: telemetry.Float(mhz)}, nil
	}

	stats, err := c.info(ctx)
	if err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrReadFailed, err)
	}

	var sum float64
	var n int
	for _, s := range stats {
		if s.Mhz > 0 {
			sum += s.Mhz
			n++
		}
	}
	if n == 0 {
		return telemetry.Reading{}, errors.New().New(ErrNoSamples)
	}

	return telemetry.Reading{CPUFreqMHz: telemetry.Float(sum / float64(n))}, nil
}

// fromCpufreq averages scaling_cur_freq, which is in kHz
func (c *CPUFrequency) fromCpufreq() (float64, bool) {
	cpuDir := filepath.Join(c.sysRoot, "devices", "system", "cpu")

	var sum float64
	var n int
	for _, entry := range sysfs.IndexedEntries(cpuDir, "cpu") {
		khz, err := sysfs.ReadFloat(filepath.Join(cpuDir, entry, "cpufreq", "scaling_cur_freq"))
		if err != nil || khz <= 0 {
			continue
		}
		sum += khz
		n++
	}

	if n == 0 {
		return 0, false
	}

	return sum / float64(n) / 1000, true
}
