package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/config"
	"codeberg.org/mutker/lkdisplay/internal/device"
	"codeberg.org/mutker/lkdisplay/internal/dispatch"
	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/gpu"
	"codeberg.org/mutker/lkdisplay/internal/logger"
	"codeberg.org/mutker/lkdisplay/internal/metrics"
	"codeberg.org/mutker/lkdisplay/internal/netsink"
	"codeberg.org/mutker/lkdisplay/internal/packet"
	"codeberg.org/mutker/lkdisplay/internal/pid"
	"codeberg.org/mutker/lkdisplay/internal/sensor"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cfg     *config.Config
	pidPath string
)

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = logger.Init(logger.Options{
		Debug:     cfg.Debug,
		IsService: logger.IsService(),
		FilePath:  cfg.LogFile(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	pidPath = cfg.PIDFile
	if pidPath == "" {
		pidPath = pid.DefaultPath()
	}
}

func main() {
	defer logger.Close()

	locator := device.NewLocator(device.DefaultTable())

	if cfg.Scan {
		scan(locator)
		return
	}

	if err := pid.Write(pidPath); err != nil {
		logger.Error().Err(err).Str("path", pidPath).Msg("Another instance is running")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	var err error
	if cfg.Test {
		err = sendTestReport(locator)
	} else {
		err = run(ctx, locator)
	}

	cleanup()

	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, locator *device.Locator) error {
	errFactory := errors.New()

	registry := prometheus.NewRegistry()
	recorder, err := metrics.New(registry)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	backends := sensor.Host(sensor.DefaultSysRoot)
	if backend := gpu.Probe(ctx, gpu.ProbeOptions{}); backend != nil {
		backends = append(backends, backend)
	}

	aggregator := telemetry.NewAggregator(backends,
		telemetry.WithBudget(cfg.SampleBudget()),
		telemetry.WithFailureHook(recorder.BackendFailed),
	)
	defer func() {
		if err := aggregator.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release sensor backends")
		}
	}()

	opts := []dispatch.Option{dispatch.WithMetrics(recorder)}

	if cfg.IsUDP {
		opts = append(opts, dispatch.WithMirrorDialer(func() (dispatch.Mirror, error) {
			sink, err := netsink.Dial(cfg.LocalPort, netsink.Format(cfg.UDPFormat))
			if err != nil {
				return nil, err
			}
			logger.Info().Str("addr", sink.Addr()).Str("format", string(sink.Format())).Msg("UDP mirror enabled")
			return sink, nil
		}))
	}

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Addr = cfg.MetricsAddr
	if metricsCfg.Enabled() {
		go func() {
			if err := metrics.Serve(ctx, metricsCfg, registry); err != nil {
				logger.Warn().Err(err).Msg("Metrics endpoint stopped")
			}
		}()
	}

	loop := dispatch.New(dispatch.Config{
		RefreshInterval: cfg.RefreshInterval(),
		SendInterval:    cfg.SendInterval(),
	}, aggregator, device.NewSession(locator), opts...)

	logger.Info().Strs("backends", aggregator.Backends()).Msg("Starting lkdisplay")

	if err := loop.Run(ctx); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	return nil
}

func scan(locator *device.Locator) {
	found := locator.Scan()
	if len(found) == 0 {
		fmt.Println("No supported display found")
		return
	}

	for _, desc := range found {
		fmt.Printf("%s [%s]\n", desc, desc.Profile.Name)
	}
}

// sendTestReport writes one report with fixed values so the panel can be
// checked without any sensors
func sendTestReport(locator *device.Locator) error {
	session := device.NewSession(locator)
	defer session.Close()

	if err := session.Connect(); err != nil {
		return err
	}

	desc, _ := session.Descriptor()
	snapshot := telemetry.Snapshot{
		Reading: telemetry.Reading{
			CPUTempC:   telemetry.Float(45),
			CPUFreqMHz: telemetry.Float(3800),
			GPUTempC:   telemetry.Float(38),
		},
		CapturedAt: time.Now(),
	}

	report := packet.Encode(snapshot, desc.Profile)
	if err := session.Send(report); err != nil {
		return err
	}

	logger.Info().Str("device", desc.String()).Int("bytes", len(report)).Msg("Test report sent")

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := pid.Remove(pidPath); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
