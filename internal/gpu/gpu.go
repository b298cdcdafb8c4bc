// Package gpu detects the host GPU once at startup and provides a telemetry
// backend for it: NVML or nvidia-smi for NVIDIA, sysfs for AMD and Intel.
package gpu

import (
	"context"

	"codeberg.org/mutker/lkdisplay/internal/logger"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

// ProbeOptions controls GPU detection. Zero values select the real system.
type ProbeOptions struct {
	SysRoot string
	Runner  CommandRunner
	// DisableNVML skips the in-process NVML binding
	DisableNVML bool

	nvml nvmlController
}

// Probe returns the first usable GPU backend in the order NVML, nvidia-smi,
// AMD sysfs, Intel sysfs. It returns nil when no GPU is found.
func Probe(ctx context.Context, opts ProbeOptions) telemetry.Backend {
	if opts.SysRoot == "" {
		opts.SysRoot = "/sys"
	}

	if !opts.DisableNVML {
		controller := opts.nvml
		if controller == nil {
			controller = &nvmlWrapper{}
		}
		backend, err := openNVML(controller)
		if err == nil {
			logger.Info().Str("backend", backend.Name()).Msg("Using NVIDIA GPU")
			return backend
		}
		logger.Debug().Err(err).Msg("NVML unavailable")
	}

	smi := NewSMI(opts.Runner)
	_, err := smi.Read(ctx)
	if err == nil {
		logger.Info().Str("backend", smi.Name()).Msg("Using NVIDIA GPU")
		return smi
	}
	logger.Debug().Err(err).Msg("nvidia-smi unavailable")

	if amd := findAMD(opts.SysRoot); amd != nil {
		logger.Info().Str("backend", amd.Name()).Str("device", amd.device).Msg("Using AMD GPU")
		return amd
	}

	if intel := findIntel(opts.SysRoot); intel != nil {
		logger.Info().Str("backend", intel.Name()).Str("device", intel.device).Msg("Using Intel GPU")
		return intel
	}

	logger.Info().Msg("No GPU detected, GPU fields stay empty")

	return nil
}
