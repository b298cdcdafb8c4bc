package packet

import (
	"encoding/binary"
	"time"
)

const (
	// ReportSize is 64 payload bytes plus the report ID
	ReportSize = 65

	gamdiasInitDelay = 50 * time.Millisecond
)

// GamdiasAtlas returns the report layout of the GAMDIAS ATLAS display
func GamdiasAtlas() *Profile {
	le, be := binary.LittleEndian, binary.BigEndian

	return &Profile{
		Name:       "gamdias-atlas",
		ReportSize: ReportSize,
		Fixed:      []byte{0xB0, 0x01, 0x00},
		Slots: []Slot{
			{Field: FieldGPUTemp, Offset: 3, Width: 1},
			{Field: FieldCPUTemp, Offset: 4, Width: 2, Order: le},
			{Field: FieldCPUUsage, Offset: 6, Width: 1},
			{Field: FieldGPUFan, Offset: 9, Width: 2, Order: le},
			{Field: FieldGPUPower, Offset: 11, Width: 2, Order: le},
			{Field: FieldCPUFreq, Offset: 14, Width: 2, Order: be},
			{Field: FieldGPUUsage, Offset: 16, Width: 1},
			{Field: FieldGPUFreq, Offset: 17, Width: 2, Order: be},
			{Field: FieldHour, Offset: 19, Width: 1},
			{Field: FieldMinute, Offset: 20, Width: 1},
			{Field: FieldSecond, Offset: 21, Width: 1},
			{Field: FieldMemUsage, Offset: 22, Width: 1},
			{Field: FieldDiskUsage, Offset: 23, Width: 1},
		},
		InitReports: [][]byte{
			{0xB0, 0x01, 0x00},
			{0x00, 0x38, 0xB5, 0x01, 0x00},
			{0x00, 0x38, 0xB5, 0x01, 0x01},
		},
		InitDelay: gamdiasInitDelay,
	}
}

// HWCX returns the report layout of the HWCX controller
func HWCX() *Profile {
	be := binary.BigEndian

	return &Profile{
		Name:       "hwcx",
		ReportSize: ReportSize,
		Fixed:      []byte{0x00, 0x02},
		Slots: []Slot{
			{Field: FieldCPUTemp, Offset: 2, Width: 1},
			{Field: FieldGPUTemp, Offset: 3, Width: 1},
			{Field: FieldHour, Offset: 4, Width: 1},
			{Field: FieldMinute, Offset: 5, Width: 1},
			{Field: FieldSecond, Offset: 6, Width: 1},
			{Field: FieldYear, Offset: 8, Width: 2, Order: be},
			{Field: FieldMonth, Offset: 10, Width: 1},
			{Field: FieldDay, Offset: 11, Width: 1},
			{Field: FieldWeekday, Offset: 12, Width: 1},
			{Field: FieldCPUUsage, Offset: 13, Width: 1},
			{Field: FieldCPUFreq, Offset: 14, Width: 2, Order: be},
			{Field: FieldGPUUsage, Offset: 16, Width: 1},
			{Field: FieldGPUFreq, Offset: 17, Width: 2, Order: be},
			{Field: FieldMemUsage, Offset: 19, Width: 1},
			{Field: FieldDiskUsage, Offset: 23, Width: 1},
			{Field: FieldGPUFan, Offset: 31, Width: 2, Order: be},
			{Field: FieldGPUPower, Offset: 35, Width: 2, Order: be},
		},
	}
}

// Builtin returns all built-in profiles keyed by name
func Builtin() map[string]*Profile {
	profiles := map[string]*Profile{}
	for _, p := range []*Profile{GamdiasAtlas(), HWCX()} {
		profiles[p.Name] = p
	}

	return profiles
}
