// Package dispatch runs the daemon's main loop: sample sensors on one
// cadence, transmit the latest snapshot to the display and the UDP mirror on
// another.
package dispatch

import (
	"context"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/device"
	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
	"codeberg.org/mutker/lkdisplay/internal/metrics"
	"codeberg.org/mutker/lkdisplay/internal/packet"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
)

// Config holds the two cadences
type Config struct {
	RefreshInterval time.Duration
	SendInterval    time.Duration
}

// Display is the device session the loop writes to
type Display interface {
	Connect() error
	Send(report []byte) error
	State() device.State
	Descriptor() (device.Descriptor, bool)
	Close() error
}

// Mirror receives every transmitted snapshot
type Mirror interface {
	Send(s telemetry.Snapshot) error
	Close() error
}

// Option configures a Loop
type Option func(*Loop)

// WithMirror also sends each snapshot to m on every transmit tick
func WithMirror(m Mirror) Option {
	return func(l *Loop) {
		l.mirror = m
	}
}

// MirrorDialer opens the mirror. A failed dial is retried on the next
// transmit tick.
type MirrorDialer func() (Mirror, error)

// WithMirrorDialer opens the mirror lazily on the transmit tick, so a
// mirror that cannot be set up never holds back the display
func WithMirrorDialer(dial MirrorDialer) Option {
	return func(l *Loop) {
		l.dialMirror = dial
	}
}

// WithMetrics records loop activity
func WithMetrics(r *metrics.Recorder) Option {
	return func(l *Loop) {
		l.metrics = r
	}
}

// Loop is not safe for concurrent use; Run owns it
type Loop struct {
	cfg     Config
	sampler telemetry.Sampler
	display Display
	mirror  Mirror
	metrics *metrics.Recorder

	dialMirror MirrorDialer
	dialFailed bool

	latest telemetry.Snapshot
}

func New(cfg Config, sampler telemetry.Sampler, display Display, opts ...Option) *Loop {
	l := &Loop{
		cfg:     cfg,
		sampler: sampler,
		display: display,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run samples once immediately, then drives both tickers until ctx is
// cancelled. The display and mirror are closed before it returns.
func (l *Loop) Run(ctx context.Context) error {
	errFactory := errors.New()

	if l.cfg.RefreshInterval <= 0 || l.cfg.SendInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, l.cfg)
	}

	sampleTicker := time.NewTicker(l.cfg.RefreshInterval)
	defer sampleTicker.Stop()

	transmitTicker := time.NewTicker(l.cfg.SendInterval)
	defer transmitTicker.Stop()

	logger.Info().
		Dur("refresh", l.cfg.RefreshInterval).
		Dur("send", l.cfg.SendInterval).
		Bool("mirror", l.mirror != nil || l.dialMirror != nil).
		Msg("Dispatch loop started")

	l.sampleTick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-sampleTicker.C:
			l.sampleTick(ctx)
		case <-transmitTicker.C:
			l.transmitTick()
		}
	}
}

func (l *Loop) sampleTick(ctx context.Context) {
	l.latest = l.sampler.Sample(ctx)
	l.metrics.ObserveSnapshot(l.latest)
}

func (l *Loop) transmitTick() {
	if l.display.State() != device.Connected {
		l.connect()
	}

	if desc, ok := l.display.Descriptor(); ok {
		l.send(desc)
	}

	if l.mirror == nil && l.dialMirror != nil {
		l.openMirror()
	}

	if l.mirror != nil {
		if err := l.mirror.Send(l.latest); err != nil {
			logger.Debug().Err(err).Msg("UDP mirror send failed")
			l.metrics.DatagramFailed()
		} else {
			l.metrics.DatagramSent()
		}
	}
}

func (l *Loop) openMirror() {
	mirror, err := l.dialMirror()
	if err != nil {
		// Warn once per outage, then keep retrying quietly
		if !l.dialFailed {
			logger.Warn().Err(err).Msg("UDP mirror unavailable, display output continues")
		} else {
			logger.Debug().Err(err).Msg("UDP mirror dial failed")
		}
		l.dialFailed = true
		l.metrics.DatagramFailed()
		return
	}

	if l.dialFailed {
		logger.Info().Msg("UDP mirror available")
	}
	l.dialFailed = false
	l.mirror = mirror
}

func (l *Loop) connect() {
	err := l.display.Connect()

	switch {
	case err == nil:
		l.metrics.ConnectAttempt(metrics.ResultConnected)
		l.metrics.SetConnected(true)
	case errors.HasCode(err, device.ErrDeviceNotFound):
		logger.Debug().Msg("No display found")
		l.metrics.ConnectAttempt(metrics.ResultNotFound)
	default:
		logger.Warn().Err(err).Msg("Failed to connect display")
		l.metrics.ConnectAttempt(metrics.ResultFailed)
	}
}

func (l *Loop) send(desc device.Descriptor) {
	report := packet.Encode(l.latest, desc.Profile)

	if err := l.display.Send(report); err != nil {
		logger.Warn().Err(err).Str("device", desc.Path).Msg("Failed to send report")
		l.metrics.ReportFailed()
		l.metrics.SetConnected(false)
		return
	}

	l.metrics.ReportSent()
}

func (l *Loop) shutdown() {
	if err := l.display.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close display")
	}
	l.metrics.SetConnected(false)

	if l.mirror != nil {
		if err := l.mirror.Close(); err != nil {
			logger.Debug().Err(err).Msg("Failed to close UDP mirror")
		}
	}

	logger.Info().Msg("Dispatch loop stopped")
}
