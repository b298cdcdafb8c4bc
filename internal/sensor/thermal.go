package sensor

import (
	"context"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/sysfs"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/shirou/gopsutil/v3/host"
)

// cpuDrivers lists hwmon driver names that report CPU temperature, best
// first.
var cpuDrivers = []string{"coretemp", "k10temp", "zenpower", "it87", "nct6775", "acpitz"}

// cpuLabels are temperature labels that identify the package or die sensor
var cpuLabels = []string{"package", "tctl", "tdie"}

// gpuDrivers are never used as a CPU temperature source
var gpuDrivers = map[string]bool{
	"amdgpu":  true,
	"radeon":  true,
	"nouveau": true,
	"i915":    true,
	"xe":      true,
}

type sensorsFunc func(ctx context.Context) ([]host.TemperatureStat, error)

// CPUThermal reads the CPU package temperature
type CPUThermal struct {
	sysRoot string
	sensors sensorsFunc
}

// NewCPUThermal creates a CPU temperature backend reading below sysRoot
func NewCPUThermal(sysRoot string) *CPUThermal {
	return newCPUThermal(sysRoot, host.SensorsTemperaturesWithContext)
}

func newCPUThermal(sysRoot string, sensors sensorsFunc) *CPUThermal {
	return &CPUThermal{sysRoot: sysRoot, sensors: sensors}
}

func (c *CPUThermal) Name() string {
	return "cpu-thermal"
}

func (c *CPUThermal) Read(ctx context.Context) (telemetry.Reading, error) {
	if temp, ok := c.fromHwmon(); ok {
		return telemetry.Reading{CPUTempC: telemetry.Float(temp)}, nil
	}

	temp, err := c.fromSensors(ctx)
	if err != nil {
		return telemetry.Reading{}, err
	}

	return telemetry.Reading{CPUTempC: telemetry.Float(temp)}, nil
}

func (c *CPUThermal) fromHwmon() (float64, bool) {
	hwmons := sysfs.Hwmons(filepath.Join(c.sysRoot, "class", "hwmon"))

	for _, driver := range cpuDrivers {
		for _, h := range hwmons {
			if h.Name != driver {
				continue
			}
			if temp, ok := h.Temperature(cpuLabels...); ok {
				return temp, true
			}
		}
	}

	for _, h := range hwmons {
		if gpuDrivers[h.Name] || !h.HasInput("temp1_input") {
			continue
		}
		if temp, ok := h.Temperature(cpuLabels...); ok {
			return temp, true
		}
	}

	return 0, false
}

// fromSensors filters gopsutil's sensor list by the same driver priority.
// Sensor keys look like "coretemp_package_id_0" or "k10temp_tctl".
func (c *CPUThermal) fromSensors(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	temps, err := c.sensors(ctx)
	if len(temps) == 0 {
		if err != nil {
			return 0, errFactory.Wrap(ErrReadFailed, err)
		}
		return 0, errFactory.New(ErrNoSensor)
	}

	for _, driver := range cpuDrivers {
		var fallback *float64
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if !strings.HasPrefix(key, driver) {
				continue
			}
			for _, label := range cpuLabels {
				if strings.Contains(key, label) {
					return t.Temperature, nil
				}
			}
			if fallback == nil {
				v := t.Temperature
				fallback = &v
			}
		}
		if fallback != nil {
			return *fallback, nil
		}
	}

	return 0, errFactory.New(ErrNoSensor)
}
