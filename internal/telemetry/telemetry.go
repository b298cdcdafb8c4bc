package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
)

const DefaultBudget = 500 * time.Millisecond

// FailureHook is called once per failed backend read, and once per read
// whose values were partly dropped as implausible
type FailureHook func(backend string, err error)

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithBudget bounds how long a single Sample may wait for backends
func WithBudget(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.budget = d
		}
	}
}

// WithFailureHook registers a callback for backend failures
func WithFailureHook(hook FailureHook) AggregatorOption {
	return func(a *Aggregator) {
		a.onFailure = hook
	}
}

// WithClock overrides the time source used for CapturedAt
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

type registered struct {
	backend  Backend
	inFlight atomic.Bool
}

type result struct {
	index   int
	reading Reading
	err     error
}

// Aggregator merges the readings of several backends into one Snapshot.
// Sample is meant to be called from a single goroutine.
type Aggregator struct {
	backends  []*registered
	budget    time.Duration
	onFailure FailureHook
	now       func() time.Time
}

// NewAggregator creates an Aggregator over backends. Registration order is
// merge priority: the first backend providing a field wins.
func NewAggregator(backends []Backend, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		budget: DefaultBudget,
		now:    time.Now,
	}

	for _, b := range backends {
		if b == nil {
			continue
		}
		a.backends = append(a.backends, &registered{backend: b})
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Backends returns the names of the registered backends
func (a *Aggregator) Backends() []string {
	names := make([]string, len(a.backends))
	for i, r := range a.backends {
		names[i] = r.backend.Name()
	}

	return names
}

// Sample reads every idle backend concurrently and returns the merged
// snapshot. It never fails and returns within the budget; a backend that
// errors, panics or overruns only loses its own fields.
func (a *Aggregator) Sample(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	results := make(chan result, len(a.backends))
	started := make([]bool, len(a.backends))
	pending := 0

	for i, r := range a.backends {
		if !r.inFlight.CompareAndSwap(false, true) {
			a.fail(r.backend.Name(), errors.New().New(ErrBackendBusy))
			continue
		}
		started[i] = true
		pending++
		go read(ctx, i, r, results)
	}

	readings := make([]*Reading, len(a.backends))

collect:
	for pending > 0 {
		select {
		case res := <-results:
			pending--
			started[res.index] = false
			name := a.backends[res.index].backend.Name()
			if res.err != nil {
				a.fail(name, res.err)
				continue
			}
			clean, dropped := sanitize(res.reading)
			if len(dropped) > 0 {
				a.fail(name, errors.New().WithData(ErrImplausibleValue, strings.Join(dropped, ",")))
			}
			readings[res.index] = &clean
		case <-ctx.Done():
			break collect
		}
	}

	for i, waiting := range started {
		if waiting {
			a.fail(a.backends[i].backend.Name(), errors.New().New(ErrBackendTimeout))
		}
	}

	snapshot := Snapshot{CapturedAt: a.now()}
	for _, r := range readings {
		if r != nil {
			fill(&snapshot.Reading, *r)
		}
	}

	return snapshot
}

func read(ctx context.Context, index int, r *registered, results chan<- result) {
	res := result{index: index}

	defer func() {
		if p := recover(); p != nil {
			res = result{
				index: index,
				err:   errors.New().WithData(ErrBackendPanic, fmt.Sprint(p)),
			}
		}
		r.inFlight.Store(false)
		results <- res
	}()

	res.reading, res.err = r.backend.Read(ctx)
	if res.err != nil {
		res.err = errors.New().Wrap(ErrBackendFailed, res.err)
	}
}

func (a *Aggregator) fail(backend string, err error) {
	logger.Debug().Str("backend", backend).Err(err).Msg("Sensor backend unavailable")

	if a.onFailure != nil {
		a.onFailure(backend, err)
	}
}

// Close releases backends that hold resources
func (a *Aggregator) Close() error {
	var firstErr error

	for _, r := range a.backends {
		closer, ok := r.backend.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = errors.New().Wrap(ErrBackendClose, err).WithMessage(r.backend.Name())
		}
	}

	return firstErr
}
