package telemetry

import "codeberg.org/mutker/lkdisplay/internal/errors"

const (
	// Backend Errors
	ErrBackendFailed  = errors.ErrorCode("telemetry_backend_failed")
	ErrBackendPanic   = errors.ErrorCode("telemetry_backend_panic")
	ErrBackendTimeout = errors.ErrorCode("telemetry_backend_timeout")
	ErrBackendBusy    = errors.ErrorCode("telemetry_backend_busy")

	// Value Errors
	ErrImplausibleValue = errors.ErrorCode("telemetry_implausible_value")

	// Lifecycle Errors
	ErrBackendClose = errors.ErrorCode("telemetry_backend_close_failed")
)

func init() {
	errors.RegisterMessage(ErrBackendFailed, "Sensor backend failed")
	errors.RegisterMessage(ErrBackendPanic, "Sensor backend panicked")
	errors.RegisterMessage(ErrBackendTimeout, "Sensor backend exceeded the sample budget")
	errors.RegisterMessage(ErrBackendBusy, "Sensor backend still busy with the previous sample")
	errors.RegisterMessage(ErrImplausibleValue, "Sensor value outside plausible range")
	errors.RegisterMessage(ErrBackendClose, "Failed to close sensor backend")
}
