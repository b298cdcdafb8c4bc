// Package packet turns telemetry snapshots into fixed-size HID reports.
// A Profile describes a device's report layout as data; Encode applies it.
package packet

import (
	"encoding/binary"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
)

const (
	ErrInvalidProfile = errors.ErrorCode("packet_invalid_profile")
)

func init() {
	errors.RegisterMessage(ErrInvalidProfile, "Invalid report profile")
}

// Slot places one field in the report
type Slot struct {
	Field  Field
	Offset int
	// Width is 1, 2 or 4 bytes
	Width int
	// Order defaults to big endian; ignored for single bytes
	Order binary.ByteOrder
	// Scale multiplies the value before truncation; 0 means 1
	Scale float64
	// Placeholder is written when the field is absent
	Placeholder uint32
}

// ChecksumKind selects the checksum algorithm
type ChecksumKind int

const (
	ChecksumSum8 ChecksumKind = iota + 1
	ChecksumXOR8
)

// Checksum covers report bytes [From, To) and is stored at Offset
type Checksum struct {
	Kind   ChecksumKind
	From   int
	To     int
	Offset int
}

// Profile is a device's report layout
type Profile struct {
	Name       string
	ReportSize int
	// Fixed is copied to the start of every report (report ID, command)
	Fixed    []byte
	Slots    []Slot
	Checksum *Checksum
	// InitReports are sent once after opening the device, zero padded to
	// ReportSize and InitDelay apart
	InitReports [][]byte
	InitDelay   time.Duration
}

type invalidProfile struct {
	Profile string
	Reason  string
	Offset  int
}

// Validate checks that every byte the profile writes lies inside the report
// and that no two writers share a byte
func (p *Profile) Validate() error {
	errFactory := errors.New()
	invalid := func(reason string, offset int) error {
		return errFactory.WithData(ErrInvalidProfile, invalidProfile{Profile: p.Name, Reason: reason, Offset: offset})
	}

	if p.ReportSize <= 0 {
		return invalid("report size must be positive", 0)
	}

	owner := make([]bool, p.ReportSize)
	claim := func(offset, width int, reason string) error {
		if offset < 0 || width <= 0 || offset+width > p.ReportSize {
			return invalid(reason+" out of bounds", offset)
		}
		for i := offset; i < offset+width; i++ {
			if owner[i] {
				return invalid(reason+" overlaps", i)
			}
			owner[i] = true
		}
		return nil
	}

	if len(p.Fixed) > 0 {
		if err := claim(0, len(p.Fixed), "fixed bytes"); err != nil {
			return err
		}
	}

	for _, slot := range p.Slots {
		if !slot.Field.IsValid() {
			return invalid("unknown field", slot.Offset)
		}
		switch slot.Width {
		case 1, 2, 4:
		default:
			return invalid("slot width must be 1, 2 or 4", slot.Offset)
		}
		if slot.Scale < 0 {
			return invalid("negative scale", slot.Offset)
		}
		if uint64(slot.Placeholder) > maxValue(slot.Width) {
			return invalid("placeholder exceeds slot width", slot.Offset)
		}
		if err := claim(slot.Offset, slot.Width, slot.Field.String()); err != nil {
			return err
		}
	}

	if c := p.Checksum; c != nil {
		if c.Kind != ChecksumSum8 && c.Kind != ChecksumXOR8 {
			return invalid("unknown checksum", c.Offset)
		}
		if c.From < 0 || c.To > p.ReportSize || c.From >= c.To {
			return invalid("checksum range out of bounds", c.From)
		}
		if c.Offset >= c.From && c.Offset < c.To {
			return invalid("checksum stored inside its own range", c.Offset)
		}
		if err := claim(c.Offset, 1, "checksum"); err != nil {
			return err
		}
	}

	for _, report := range p.InitReports {
		if len(report) == 0 || len(report) > p.ReportSize {
			return invalid("init report size", len(report))
		}
	}

	return nil
}

// InitFrames returns the init reports padded to ReportSize
func (p *Profile) InitFrames() [][]byte {
	frames := make([][]byte, len(p.InitReports))
	for i, report := range p.InitReports {
		frame := make([]byte, p.ReportSize)
		copy(frame, report)
		frames[i] = frame
	}

	return frames
}

func maxValue(width int) uint64 {
	return 1<<(8*uint(width)) - 1
}
