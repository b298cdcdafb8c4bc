package sensor

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func noSensors(context.Context) ([]host.TemperatureStat, error) {
	return nil, nil
}

func TestCPUThermalPrefersDriverPriority(t *testing.T) {
	sysRoot := t.TempDir()
	hwmon := filepath.Join(sysRoot, "class", "hwmon")
	writeFile(t, filepath.Join(hwmon, "hwmon0", "name"), "acpitz\n")
	writeFile(t, filepath.Join(hwmon, "hwmon0", "temp1_input"), "27800\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "name"), "k10temp\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "temp1_input"), "52125\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "temp1_label"), "Tctl\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "temp3_input"), "44000\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "temp3_label"), "Tccd1\n")

	r, err := newCPUThermal(sysRoot, noSensors).Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CPUTempC)
	assert.InDelta(t, 52.125, *r.CPUTempC, 0.001)
}

func TestCPUThermalAnyHwmonFallback(t *testing.T) {
	sysRoot := t.TempDir()
	hwmon := filepath.Join(sysRoot, "class", "hwmon")
	writeFile(t, filepath.Join(hwmon, "hwmon0", "name"), "amdgpu\n")
	writeFile(t, filepath.Join(hwmon, "hwmon0", "temp1_input"), "61000\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "name"), "cpu_thermal\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "temp1_input"), "39000\n")

	r, err := newCPUThermal(sysRoot, noSensors).Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CPUTempC)
	assert.InDelta(t, 39, *r.CPUTempC, 0.001, "GPU hwmon is skipped")
}

func TestCPUThermalSensorsFallback(t *testing.T) {
	sensors := func(context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{
			{SensorKey: "nvme_composite", Temperature: 35},
			{SensorKey: "coretemp_core_0", Temperature: 48},
			{SensorKey: "coretemp_package_id_0", Temperature: 51},
		}, stderrors.New("partial warnings")
	}

	r, err := newCPUThermal(t.TempDir(), sensors).Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CPUTempC)
	assert.InDelta(t, 51, *r.CPUTempC, 0.001)
}

func TestCPUThermalUnavailable(t *testing.T) {
	_, err := newCPUThermal(t.TempDir(), noSensors).Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNoSensor))

	failing := func(context.Context) ([]host.TemperatureStat, error) {
		return nil, stderrors.New("not supported")
	}
	_, err = newCPUThermal(t.TempDir(), failing).Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrReadFailed))
}

func TestCPUFrequencyFromCpufreq(t *testing.T) {
	sysRoot := t.TempDir()
	cpuDir := filepath.Join(sysRoot, "devices", "system", "cpu")
	writeFile(t, filepath.Join(cpuDir, "cpu0", "cpufreq", "scaling_cur_freq"), "3600000\n")
	writeFile(t, filepath.Join(cpuDir, "cpu1", "cpufreq", "scaling_cur_freq"), "4000000\n")
	writeFile(t, filepath.Join(cpuDir, "cpufreq", "boost"), "1\n")

	info := func(context.Context) ([]cpu.InfoStat, error) {
		t.Fatal("cpufreq available, gopsutil must not be queried")
		return nil, nil
	}

	r, err := newCPUFrequency(sysRoot, info).Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CPUFreqMHz)
	assert.InDelta(t, 3800, *r.CPUFreqMHz, 0.001)
}

func TestCPUFrequencyInfoFallback(t *testing.T) {
	info := func(context.Context) ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{Mhz: 2000}, {Mhz: 0}, {Mhz: 3000}}, nil
	}

	r, err := newCPUFrequency(t.TempDir(), info).Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2500, *r.CPUFreqMHz, 0.001)

	empty := func(context.Context) ([]cpu.InfoStat, error) { return nil, nil }
	_, err = newCPUFrequency(t.TempDir(), empty).Read(context.Background())
	assert.True(t, errors.HasCode(err, ErrNoSamples))
}

func TestCPUUsage(t *testing.T) {
	c := &CPUUsage{percent: func(_ context.Context, interval time.Duration, percpu bool) ([]float64, error) {
		assert.Zero(t, interval)
		assert.False(t, percpu)
		return []float64{23.5}, nil
	}}

	r, err := c.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 23.5, *r.CPUUsagePct, 0.001)

	c.percent = func(context.Context, time.Duration, bool) ([]float64, error) { return nil, nil }
	_, err = c.Read(context.Background())
	assert.True(t, errors.HasCode(err, ErrNoSamples))
}

func TestMemory(t *testing.T) {
	m := &Memory{virtualMemory: func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{
			Total:     16 * 1024 * bytesPerMB,
			Available: 12 * 1024 * bytesPerMB,
		}, nil
	}}

	r, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4096, *r.MemUsedMB, 0.001)
	assert.InDelta(t, 16384, *r.MemTotalMB, 0.001)
	assert.InDelta(t, 25, *r.MemUsagePct(), 0.001)
}

func TestDisk(t *testing.T) {
	d := &Disk{path: "/data", usage: func(_ context.Context, path string) (*disk.UsageStat, error) {
		assert.Equal(t, "/data", path)
		return &disk.UsageStat{UsedPercent: 61.2}, nil
	}}

	r, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 61.2, *r.DiskUsagePct, 0.001)

	d.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, stderrors.New("statfs failed")
	}
	_, err = d.Read(context.Background())
	assert.True(t, errors.HasCode(err, ErrReadFailed))
}

func TestHostBackends(t *testing.T) {
	names := make([]string, 0)
	for _, b := range Host(DefaultSysRoot) {
		names = append(names, b.Name())
	}

	assert.Equal(t, []string{"cpu-thermal", "cpu-frequency", "cpu-usage", "memory", "disk"}, names)
}
