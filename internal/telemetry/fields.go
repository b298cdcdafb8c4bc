package telemetry

import "math"

const maxMemoryMB = 1 << 24

type fieldSpec struct {
	name     string
	min, max float64
	// exclusiveMin rejects a value equal to min.
	exclusiveMin bool
	get          func(*Reading) **float64
}

var fieldSpecs = []fieldSpec{
	{name: "cpu_temp_c", min: -40, max: 150, get: func(r *Reading) **float64 { return &r.CPUTempC }},
	{name: "cpu_freq_mhz", min: 0, max: 10000, exclusiveMin: true, get: func(r *Reading) **float64 { return &r.CPUFreqMHz }},
	{name: "cpu_usage_pct", min: 0, max: 100, get: func(r *Reading) **float64 { return &r.CPUUsagePct }},
	{name: "gpu_temp_c", min: -40, max: 150, get: func(r *Reading) **float64 { return &r.GPUTempC }},
	{name: "gpu_usage_pct", min: 0, max: 100, get: func(r *Reading) **float64 { return &r.GPUUsagePct }},
	{name: "gpu_freq_mhz", min: 0, max: 10000, exclusiveMin: true, get: func(r *Reading) **float64 { return &r.GPUFreqMHz }},
	{name: "gpu_power_w", min: 0, max: 2000, get: func(r *Reading) **float64 { return &r.GPUPowerW }},
	{name: "gpu_fan_rpm", min: 0, max: 20000, get: func(r *Reading) **float64 { return &r.GPUFanRPM }},
	{name: "mem_used_mb", min: 0, max: maxMemoryMB, get: func(r *Reading) **float64 { return &r.MemUsedMB }},
	{name: "mem_total_mb", min: 0, max: maxMemoryMB, get: func(r *Reading) **float64 { return &r.MemTotalMB }},
	{name: "disk_usage_pct", min: 0, max: 100, get: func(r *Reading) **float64 { return &r.DiskUsagePct }},
}

func (f fieldSpec) plausible(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if v > f.max || v < f.min {
		return false
	}
	if f.exclusiveMin && v == f.min {
		return false
	}

	return true
}

// FieldNames returns the serialized names of all reading fields in a
// stable order
func FieldNames() []string {
	names := make([]string, len(fieldSpecs))
	for i, f := range fieldSpecs {
		names[i] = f.name
	}

	return names
}

// Each calls fn for every field in FieldNames order. v is nil for absent
// fields.
func (r Reading) Each(fn func(name string, v *float64)) {
	for _, f := range fieldSpecs {
		fn(f.name, *f.get(&r))
	}
}

// sanitize drops implausible values and returns the names of the dropped
// fields. Present values are copied so the result shares no pointers with
// the backend.
func sanitize(r Reading) (Reading, []string) {
	var (
		out     Reading
		dropped []string
	)

	for _, f := range fieldSpecs {
		src := *f.get(&r)
		if src == nil {
			continue
		}
		if !f.plausible(*src) {
			dropped = append(dropped, f.name)
			continue
		}
		v := *src
		*f.get(&out) = &v
	}

	return out, dropped
}

// fill copies into dst every field that dst lacks and src has
func fill(dst *Reading, src Reading) {
	for _, f := range fieldSpecs {
		if *f.get(dst) == nil {
			*f.get(dst) = *f.get(&src)
		}
	}
}
