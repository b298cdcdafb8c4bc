package telemetry

import (
	"context"
	"time"
)

// Backend is one source of sensor readings. Read fills the fields it can
// provide and leaves the rest nil. Implementations should honour ctx but the
// Aggregator does not rely on it.
type Backend interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
}

// Sampler produces a snapshot on demand
type Sampler interface {
	Sample(ctx context.Context) Snapshot
}

// Reading holds optional sensor values. A nil field is absent.
type Reading struct {
	CPUTempC     *float64 `json:"cpu_temp_c,omitempty"`
	CPUFreqMHz   *float64 `json:"cpu_freq_mhz,omitempty"`
	CPUUsagePct  *float64 `json:"cpu_usage_pct,omitempty"`
	GPUTempC     *float64 `json:"gpu_temp_c,omitempty"`
	GPUUsagePct  *float64 `json:"gpu_usage_pct,omitempty"`
	GPUFreqMHz   *float64 `json:"gpu_freq_mhz,omitempty"`
	GPUPowerW    *float64 `json:"gpu_power_w,omitempty"`
	GPUFanRPM    *float64 `json:"gpu_fan_rpm,omitempty"`
	MemUsedMB    *float64 `json:"mem_used_mb,omitempty"`
	MemTotalMB   *float64 `json:"mem_total_mb,omitempty"`
	DiskUsagePct *float64 `json:"disk_usage_pct,omitempty"`
}

// Snapshot is the merged reading of one sample tick. It is never modified
// after Sample returns.
type Snapshot struct {
	Reading
	CapturedAt time.Time `json:"captured_at"`
}

// MemUsagePct derives memory usage from used and total memory
func (r Reading) MemUsagePct() *float64 {
	if r.MemUsedMB == nil || r.MemTotalMB == nil || *r.MemTotalMB <= 0 {
		return nil
	}

	pct := *r.MemUsedMB / *r.MemTotalMB * 100
	if pct > 100 {
		pct = 100
	}

	return &pct
}

// Float returns a pointer to v, for building readings
func Float(v float64) *float64 {
	return &v
}
