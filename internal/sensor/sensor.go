// Package sensor provides the host telemetry backends: CPU temperature,
// frequency and usage, memory and root filesystem usage. Linux sysfs is read
// directly where it is more precise than gopsutil, with gopsutil as the
// fallback.
package sensor

import (
	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

const (
	DefaultSysRoot = "/sys"

	bytesPerMB = 1024 * 1024
)

const (
	ErrNoSensor   = errors.ErrorCode("sensor_not_found")
	ErrReadFailed = errors.ErrorCode("sensor_read_failed")
	ErrNoSamples  = errors.ErrorCode("sensor_no_samples")
)

func init() {
	errors.RegisterMessage(ErrNoSensor, "No matching sensor found")
	errors.RegisterMessage(ErrReadFailed, "Failed to read sensor")
	errors.RegisterMessage(ErrNoSamples, "Sensor returned no samples")
}

// Host returns the host backends in merge priority order
func Host(sysRoot string) []telemetry.Backend {
	return []telemetry.Backend{
		NewCPUThermal(sysRoot),
		NewCPUFrequency(sysRoot),
		NewCPUUsage(),
		NewMemory(),
		NewDisk("/"),
	}
}
