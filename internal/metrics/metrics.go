// Package metrics exposes daemon counters and the latest readings to
// Prometheus. A nil *Recorder accepts every call and records nothing.
package metrics

import (
	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lkdisplay"

// Connect attempt results
const (
	ResultConnected = "connected"
	ResultNotFound  = "not_found"
	ResultFailed    = "failed"
)

type Recorder struct {
	samples          prometheus.Counter
	backendFailures  *prometheus.CounterVec
	fieldAbsent      *prometheus.CounterVec
	reading          *prometheus.GaugeVec
	connectAttempts  *prometheus.CounterVec
	reportsSent      prometheus.Counter
	reportFailures   prometheus.Counter
	displayConnected prometheus.Gauge
	datagramsSent    prometheus.Counter
	datagramFailures prometheus.Counter
}

// New creates a Recorder and registers its collectors on reg
func New(reg prometheus.Registerer) (*Recorder, error) {
	errFactory := errors.New()

	r := &Recorder{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Number of sensor aggregation passes",
		}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Failed sensor backend reads by backend",
		}, []string{"backend"}),
		fieldAbsent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_absent_total",
			Help:      "Samples in which a field was absent",
		}, []string{"field"}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest value of each present field",
		}, []string{"field"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Display connect attempts by result",
		}, []string{"result"}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_sent_total",
			Help:      "Reports written to the display",
		}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Failed report writes",
		}),
		displayConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "display_connected",
			Help:      "1 while a display session is connected",
		}),
		datagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "UDP datagrams sent",
		}),
		datagramFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagram_failures_total",
			Help:      "UDP datagrams that could not be sent",
		}),
	}

	collectors := []prometheus.Collector{
		r.samples, r.backendFailures, r.fieldAbsent, r.reading, r.connectAttempts,
		r.reportsSent, r.reportFailures, r.displayConnected, r.datagramsSent, r.datagramFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	return r, nil
}

// ObserveSnapshot counts a sample and publishes its fields. Absent fields
// are removed from the reading gauge rather than reported as zero.
func (r *Recorder) ObserveSnapshot(s telemetry.Snapshot) {
	if r == nil {
		return
	}

	r.samples.Inc()
	s.Each(func(field string, v *float64) {
		if v == nil {
			r.fieldAbsent.WithLabelValues(field).Inc()
			r.reading.DeleteLabelValues(field)
			return
		}
		r.reading.WithLabelValues(field).Set(*v)
	})
}

// BackendFailed is a telemetry.FailureHook
func (r *Recorder) BackendFailed(backend string, _ error) {
	if r == nil {
		return
	}

	r.backendFailures.WithLabelValues(backend).Inc()
}

func (r *Recorder) ConnectAttempt(result string) {
	if r == nil {
		return
	}

	r.connectAttempts.WithLabelValues(result).Inc()
}

func (r *Recorder) ReportSent() {
	if r == nil {
		return
	}

	r.reportsSent.Inc()
}

func (r *Recorder) ReportFailed() {
	if r == nil {
		return
	}

	r.reportFailures.Inc()
}

func (r *Recorder) SetConnected(connected bool) {
	if r == nil {
		return
	}

	if connected {
		r.displayConnected.Set(1)
	} else {
		r.displayConnected.Set(0)
	}
}

func (r *Recorder) DatagramSent() {
	if r == nil {
		return
	}

	r.datagramsSent.Inc()
}

func (r *Recorder) DatagramFailed() {
	if r == nil {
		return
	}

	r.datagramFailures.Inc()
}
