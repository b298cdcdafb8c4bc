package packet

import (
	"time"

	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

// Field identifies a value a profile can place in a report
type Field int

const (
	FieldCPUTemp Field = iota + 1
	FieldCPUUsage
	FieldCPUFreq
	FieldGPUTemp
	FieldGPUUsage
	FieldGPUFreq
	FieldGPUPower
	FieldGPUFan
	FieldMemUsage
	FieldMemUsed
	FieldDiskUsage

	// Clock fields are taken from the snapshot's capture time
	FieldHour
	FieldMinute
	FieldSecond
	FieldYear
	FieldMonth
	FieldDay
	FieldWeekday

	fieldEnd
)

var fieldNames = map[Field]string{
	FieldCPUTemp:   "cpu_temp",
	FieldCPUUsage:  "cpu_usage",
	FieldCPUFreq:   "cpu_freq",
	FieldGPUTemp:   "gpu_temp",
	FieldGPUUsage:  "gpu_usage",
	FieldGPUFreq:   "gpu_freq",
	FieldGPUPower:  "gpu_power",
	FieldGPUFan:    "gpu_fan",
	FieldMemUsage:  "mem_usage",
	FieldMemUsed:   "mem_used",
	FieldDiskUsage: "disk_usage",
	FieldHour:      "hour",
	FieldMinute:    "minute",
	FieldSecond:    "second",
	FieldYear:      "year",
	FieldMonth:     "month",
	FieldDay:       "day",
	FieldWeekday:   "weekday",
}

// String implements the Stringer interface
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}

	return "unknown"
}

// IsValid returns whether f names a known field
func (f Field) IsValid() bool {
	return f > 0 && f < fieldEnd
}

// value extracts the field from s. ok is false when the field is absent.
func (f Field) value(s telemetry.Snapshot) (float64, bool) {
	switch f {
	case FieldCPUTemp:
		return deref(s.CPUTempC)
	case FieldCPUUsage:
		return deref(s.CPUUsagePct)
	case FieldCPUFreq:
		return deref(s.CPUFreqMHz)
	case FieldGPUTemp:
		return deref(s.GPUTempC)
	case FieldGPUUsage:
		return deref(s.GPUUsagePct)
	case FieldGPUFreq:
		return deref(s.GPUFreqMHz)
	case FieldGPUPower:
		return deref(s.GPUPowerW)
	case FieldGPUFan:
		return deref(s.GPUFanRPM)
	case FieldMemUsage:
		return deref(s.MemUsagePct())
	case FieldMemUsed:
		return deref(s.MemUsedMB)
	case FieldDiskUsage:
		return deref(s.DiskUsagePct)
	}

	return clockValue(f, s.CapturedAt)
}

func clockValue(f Field, t time.Time) (float64, bool) {
	if t.IsZero() {
		return 0, false
	}

	switch f {
	case FieldHour:
		return float64(t.Hour()), true
	case FieldMinute:
		return float64(t.Minute()), true
	case FieldSecond:
		return float64(t.Second()), true
	case FieldYear:
		return float64(t.Year()), true
	case FieldMonth:
		return float64(t.Month()), true
	case FieldDay:
		return float64(t.Day()), true
	case FieldWeekday:
		// Monday is day 0
		return float64((int(t.Weekday()) + 6) % 7), true
	default:
		return 0, false
	}
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}

	return *v, true
}
