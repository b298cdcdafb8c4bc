package gpu

import (
	"context"
	"sync"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// fanPercentToRPM estimates RPM from NVML's fan duty cycle, assuming a
// typical 3000 RPM maximum
const fanPercentToRPM = 30

const milliWattsToWatts = 1000

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (nvmlDevice, error)
}

// nvmlDevice is the subset of nvml.Device used for telemetry
type nvmlDevice interface {
	GetName() (string, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetClockInfo(clockType nvml.ClockType) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetFanSpeed() (uint32, nvml.Return)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) GetDevice(index int) (nvmlDevice, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

// NVML reads the first NVIDIA GPU through the management library
type NVML struct {
	controller nvmlController
	device     nvmlDevice
	name       string
	mu         sync.Mutex
}

// openNVML initializes NVML and binds device 0. The caller owns the
// returned backend and must Close it.
func openNVML(controller nvmlController) (*NVML, error) {
	errFactory := errors.New()

	if err := controller.Initialize(); err != nil {
		return nil, err
	}

	count, err := controller.GetDeviceCount()
	if err != nil {
		_ = controller.Shutdown()
		return nil, err
	}
	if count == 0 {
		_ = controller.Shutdown()
		return nil, errFactory.New(ErrDeviceNotFound)
	}

	device, err := controller.GetDevice(0)
	if err != nil {
		_ = controller.Shutdown()
		return nil, err
	}

	n := &NVML{controller: controller, device: device}
	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		n.name = name
		logger.Info().Msgf("Detected GPU: %v", name)
	} else {
		logger.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	return n, nil
}

func (n *NVML) Name() string {
	return "nvml"
}

// DeviceName returns the marketing name reported by the driver
func (n *NVML) DeviceName() string {
	return n.name
}

func (n *NVML) Read(_ context.Context) (telemetry.Reading, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.device == nil {
		return telemetry.Reading{}, errors.New().New(ErrNotInitialized)
	}

	var (
		r   telemetry.Reading
		got bool
	)

	if temp, ret := n.device.GetTemperature(nvml.TEMPERATURE_GPU); IsNVMLSuccess(ret) {
		r.GPUTempC = telemetry.Float(float64(temp))
		got = true
	}

	if util, ret := n.device.GetUtilizationRates(); IsNVMLSuccess(ret) {
		r.GPUUsagePct = telemetry.Float(float64(util.Gpu))
		got = true
	}

	if clock, ret := n.device.GetClockInfo(nvml.CLOCK_GRAPHICS); IsNVMLSuccess(ret) {
		r.GPUFreqMHz = telemetry.Float(float64(clock))
		got = true
	}

	if power, ret := n.device.GetPowerUsage(); IsNVMLSuccess(ret) {
		r.GPUPowerW = telemetry.Float(float64(power) / milliWattsToWatts)
		got = true
	}

	if fan, ret := n.device.GetFanSpeed(); IsNVMLSuccess(ret) {
		r.GPUFanRPM = telemetry.Float(float64(fan) * fanPercentToRPM)
		got = true
	}

	if !got {
		return telemetry.Reading{}, errors.New().New(ErrNoReadings)
	}

	return r, nil
}

// Close shuts NVML down. It is safe to call more than once.
func (n *NVML) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.device = nil

	return n.controller.Shutdown()
}
