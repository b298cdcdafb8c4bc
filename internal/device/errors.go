package device

import "codeberg.org/mutker/lkdisplay/internal/errors"

const (
	ErrDeviceNotFound     = errors.ErrorCode("device_not_found")
	ErrDeviceOpenFailed   = errors.ErrorCode("device_open_failed")
	ErrDeviceIOFailed     = errors.ErrorCode("device_io_failed")
	ErrDeviceNotConnected = errors.ErrorCode("device_not_connected")
	ErrIdentifyFailed     = errors.ErrorCode("device_identify_failed")
	ErrInvalidProfile     = errors.ErrorCode("device_invalid_profile")
)

func init() {
	errors.RegisterMessage(ErrDeviceNotFound, "No supported display found")
	errors.RegisterMessage(ErrDeviceOpenFailed, "Failed to open display")
	errors.RegisterMessage(ErrDeviceIOFailed, "Display write failed")
	errors.RegisterMessage(ErrDeviceNotConnected, "Display not connected")
	errors.RegisterMessage(ErrIdentifyFailed, "Failed to identify HID device")
	errors.RegisterMessage(ErrInvalidProfile, "Display has no usable report profile")
}
