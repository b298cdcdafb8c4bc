package gpu

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/sysfs"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

const (
	vendorAMD   = 0x1002
	vendorIntel = 0x8086

	hzPerMHz     = 1_000_000
	microPerWatt = 1_000_000
)

var sclkPattern = regexp.MustCompile(`(?i)(\d+)\s*mhz`)

// drmCard is a DRM card directory with its PCI device
type drmCard struct {
	name   string
	device string
	vendor uint64
}

// drmCards lists <sys>/class/drm/card<N>, skipping connectors such as
// card0-DP-1
func drmCards(sysRoot string) []drmCard {
	drmDir := filepath.Join(sysRoot, "class", "drm")

	var cards []drmCard
	for _, name := range sysfs.IndexedEntries(drmDir, "card") {
		device := filepath.Join(drmDir, name, "device")
		vendor, err := sysfs.ReadHex(filepath.Join(device, "vendor"))
		if err != nil {
			continue
		}
		cards = append(cards, drmCard{name: name, device: device, vendor: vendor})
	}

	return cards
}

// AMD reads an amdgpu card through sysfs
type AMD struct {
	device string
	hwmon  sysfs.Hwmon
}

// findAMD returns the first AMD card that exposes a hwmon directory
func findAMD(sysRoot string) *AMD {
	for _, card := range drmCards(sysRoot) {
		if card.vendor != vendorAMD {
			continue
		}
		hwmons := sysfs.Hwmons(filepath.Join(card.device, "hwmon"))
		if len(hwmons) == 0 {
			continue
		}
		return &AMD{device: card.device, hwmon: hwmons[0]}
	}

	return nil
}

func (a *AMD) Name() string {
	return "amdgpu"
}

func (a *AMD) Read(_ context.Context) (telemetry.Reading, error) {
	var r telemetry.Reading

	if temp, ok := a.hwmon.Temperature("edge"); ok {
		r.GPUTempC = telemetry.Float(temp)
	}

	if busy, err := sysfs.ReadFloat(filepath.Join(a.device, "gpu_busy_percent")); err == nil {
		r.GPUUsagePct = telemetry.Float(busy)
	}

	if mhz, ok := activeSclk(filepath.Join(a.device, "pp_dpm_sclk")); ok {
		r.GPUFreqMHz = telemetry.Float(mhz)
	} else if hz, err := sysfs.ReadFloat(filepath.Join(a.hwmon.Dir, "freq1_input")); err == nil {
		r.GPUFreqMHz = telemetry.Float(hz / hzPerMHz)
	}

	for _, name := range []string{"power1_average", "power1_input"} {
		if uw, err := sysfs.ReadFloat(filepath.Join(a.hwmon.Dir, name)); err == nil && uw > 0 {
			r.GPUPowerW = telemetry.Float(uw / microPerWatt)
			break
		}
	}

	for i := 1; i <= 4; i++ {
		if rpm, err := sysfs.ReadFloat(filepath.Join(a.hwmon.Dir, "fan"+strconv.Itoa(i)+"_input")); err == nil {
			r.GPUFanRPM = telemetry.Float(rpm)
			break
		}
	}

	if r == (telemetry.Reading{}) {
		return r, errors.New().New(ErrNoReadings)
	}

	return r, nil
}

// activeSclk returns the clock of the line marked with '*' in pp_dpm_sclk:
//
//	0: 500Mhz
//	1: 1800Mhz *
func activeSclk(path string) (float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.Contains(line, "*") {
			continue
		}
		match := sclkPattern.FindStringSubmatch(line)
		if match == nil {
			return 0, false
		}
		mhz, err := strconv.ParseFloat(match[1], 64)
		return mhz, err == nil
	}

	return 0, false
}

// Intel reads an i915/xe card through sysfs. Utilization is not exposed
// there and stays absent.
type Intel struct {
	card   string
	device string
}

func findIntel(sysRoot string) *Intel {
	for _, card := range drmCards(sysRoot) {
		if card.vendor == vendorIntel {
			return &Intel{card: filepath.Dir(card.device), device: card.device}
		}
	}

	return nil
}

func (i *Intel) Name() string {
	return "intel-gpu"
}

func (i *Intel) Read(_ context.Context) (telemetry.Reading, error) {
	var r telemetry.Reading

	for _, dir := range []string{i.card, i.device} {
		if mhz, err := sysfs.ReadFloat(filepath.Join(dir, "gt_cur_freq_mhz")); err == nil {
			r.GPUFreqMHz = telemetry.Float(mhz)
			break
		}
	}

	for _, h := range sysfs.Hwmons(filepath.Join(i.device, "hwmon")) {
		if temp, ok := h.Temperature(); ok {
			r.GPUTempC = telemetry.Float(temp)
			break
		}
	}

	if r == (telemetry.Reading{}) {
		return r, errors.New().New(ErrNoReadings)
	}

	return r, nil
}
