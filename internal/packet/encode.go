package packet

import (
	"encoding/binary"
	"math"

	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

// Encode renders s into a report of exactly p.ReportSize bytes. It is pure:
// the same snapshot and profile always yield the same bytes. Values are
// scaled, truncated toward zero and clamped into the slot. Absent fields
// use the slot placeholder.
//
// Encode panics if p is invalid; profiles are static data validated in
// tests and when the device table is built.
func Encode(s telemetry.Snapshot, p *Profile) []byte {
	if err := p.Validate(); err != nil {
		panic(err)
	}

	report := make([]byte, p.ReportSize)
	copy(report, p.Fixed)

	for _, slot := range p.Slots {
		raw := slot.Placeholder
		if v, ok := slot.Field.value(s); ok {
			raw = quantize(v, slot)
		}
		put(report[slot.Offset:slot.Offset+slot.Width], raw, slot.Order)
	}

	if c := p.Checksum; c != nil {
		report[c.Offset] = checksum(c.Kind, report[c.From:c.To])
	}

	return report
}

func quantize(v float64, slot Slot) uint32 {
	scale := slot.Scale
	if scale == 0 {
		scale = 1
	}

	v = math.Trunc(v * scale)
	if math.IsNaN(v) || v <= 0 {
		return 0
	}

	if limit := float64(maxValue(slot.Width)); v >= limit {
		return uint32(limit)
	}

	return uint32(v)
}

func put(dst []byte, v uint32, order binary.ByteOrder) {
	if order == nil {
		order = binary.BigEndian
	}

	switch len(dst) {
	case 1:
		dst[0] = byte(v)
	case 2:
		order.PutUint16(dst, uint16(v))
	case 4:
		order.PutUint32(dst, v)
	}
}

func checksum(kind ChecksumKind, data []byte) byte {
	var sum byte
	for _, b := range data {
		switch kind {
		case ChecksumSum8:
			sum += b
		case ChecksumXOR8:
			sum ^= b
		}
	}

	return sum
}
