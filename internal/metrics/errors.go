package metrics

import "codeberg.org/mutker/lkdisplay/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidAddr   = errors.ErrorCode("metrics_invalid_addr")

	// Registration Errors
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")

	// Server Errors
	ErrServeFailed     = errors.ErrorCode("metrics_serve_failed")
	ErrServiceShutdown = errors.ErrShutdownFailed
)

func init() {
	errors.RegisterMessage(ErrInvalidAddr, "Invalid metrics listen address")
	errors.RegisterMessage(ErrRegisterFailed, "Failed to register metrics")
	errors.RegisterMessage(ErrServeFailed, "Metrics endpoint failed")
}
