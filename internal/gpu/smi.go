package gpu

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

const (
	smiBinary  = "nvidia-smi"
	smiQuery   = "--query-gpu=temperature.gpu,utilization.gpu,clocks.gr,power.draw,fan.speed"
	smiFormat  = "--format=csv,noheader,nounits"
	smiTimeout = 2 * time.Second

	smiNotAvailable = "[N/A]"
)

// CommandRunner runs an external command and returns its standard output
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// SMI reads the first NVIDIA GPU by invoking nvidia-smi. Used when NVML
// cannot be loaded in-process.
type SMI struct {
	runner  CommandRunner
	timeout time.Duration
}

// NewSMI creates an nvidia-smi backend. A nil runner executes the real
// binary.
func NewSMI(runner CommandRunner) *SMI {
	if runner == nil {
		runner = execRunner{}
	}

	return &SMI{runner: runner, timeout: smiTimeout}
}

func (s *SMI) Name() string {
	return "nvidia-smi"
}

func (s *SMI) Read(ctx context.Context) (telemetry.Reading, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.runner.Run(ctx, smiBinary, smiQuery, smiFormat)
	if err != nil {
		return telemetry.Reading{}, errFactory.Wrap(ErrQueryFailed, err)
	}

	return parseSMI(out)
}

// parseSMI parses the first line of the CSV query output. "[N/A]" and
// unparsable columns are absent.
func parseSMI(out []byte) (telemetry.Reading, error) {
	errFactory := errors.New()

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	columns := strings.Split(line, ",")
	if len(columns) < 4 {
		return telemetry.Reading{}, errFactory.WithData(ErrParseFailed, line)
	}

	value := func(i int) *float64 {
		if i >= len(columns) {
			return nil
		}
		column := strings.TrimSpace(columns[i])
		if column == "" || column == smiNotAvailable {
			return nil
		}
		v, err := strconv.ParseFloat(column, 64)
		if err != nil {
			return nil
		}
		return &v
	}

	r := telemetry.Reading{
		GPUTempC:    value(0),
		GPUUsagePct: value(1),
		GPUFreqMHz:  value(2),
		GPUPowerW:   value(3),
	}
	if fan := value(4); fan != nil {
		r.GPUFanRPM = telemetry.Float(*fan * fanPercentToRPM)
	}

	if r == (telemetry.Reading{}) {
		return telemetry.Reading{}, errFactory.New(ErrNoReadings)
	}

	return r, nil
}
