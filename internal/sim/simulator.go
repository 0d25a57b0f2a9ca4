package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/ejecta/internal/dynamo"
)

const (
	DefaultRelTol   = 1e-13
	DefaultAbsTol   = 1e-13
	DefaultMaxSteps = 5_000_000
)

type Simulator struct {
	sys       dynamo.System
	stepper   dynamo.Stepper
	tol       dynamo.Tolerances
	maxSteps  int
	log       *slog.Logger
	metrics   []Metric
	observers []dynamo.Observer
}

type Option func(*Simulator)

func WithTolerances(rel, abs float64) Option {
	return func(s *Simulator) { s.tol = dynamo.Tolerances{Rel: rel, Abs: abs} }
}

// WithMaxSteps bounds the internal steps taken between two report points.
func WithMaxSteps(n int) Option {
	return func(s *Simulator) { s.maxSteps = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

func WithObserver(o dynamo.Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

func WithMetrics(m ...Metric) Option {
	return func(s *Simulator) { s.metrics = append(s.metrics, m...) }
}

func New(sys dynamo.System, stepper dynamo.Stepper, opts ...Option) *Simulator {
	s := &Simulator{
		sys:      sys,
		stepper:  stepper,
		tol:      dynamo.Tolerances{Rel: DefaultRelTol, Abs: DefaultAbsTol},
		maxSteps: DefaultMaxSteps,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric)            { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run integrates from span.Start to span.End and records the state at every
// report time. On failure no partial trajectory is returned.
func (s *Simulator) Run(ctx context.Context, y0 dynamo.State, span Span) (*Result, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	n := s.sys.Dim()
	if len(y0) != n {
		return nil, fmt.Errorf("%w: y0 has %d entries, system %d", dynamo.ErrDimensionMismatch, len(y0), n)
	}

	start := time.Now()
	times := span.Times()
	log := s.log.With("stepper", s.stepper.Name())
	log.Info("run started", "start", span.Start, "end", span.End, "points", span.Points,
		"species", n, "rtol", s.tol.Rel, "atol", s.tol.Abs)

	if err := s.stepper.Init(s.sys, span.Start, y0, span.End, s.tol); err != nil {
		return nil, s.fail(log, err, span.Start, y0)
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	result := &Result{
		Times:   times,
		States:  make([]dynamo.State, 0, len(times)),
		Metrics: make(map[string]float64, len(s.metrics)),
	}
	s.report(result, y0.Clone(), span.Start)

	every := len(times) / 10
	if every == 0 {
		every = 1
	}

	for i := 1; i < len(times); i++ {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", "time", s.stepper.Time())
			return nil, err
		}

		target := times[i]
		taken := 0
		for s.stepper.Time() < target {
			if taken >= s.maxSteps {
				err := fmt.Errorf("%w: %d steps before t=%g", dynamo.ErrStepBudget, taken, target)
				return nil, s.fail(log, err, s.stepper.Time(), s.stepper.State())
			}
			if err := s.stepper.Step(); err != nil {
				return nil, s.fail(log, err, s.stepper.Time(), s.stepper.State())
			}
			taken++
		}

		y := make(dynamo.State, n)
		s.stepper.Interpolate(y, target)
		if !y.IsValid() {
			return nil, s.fail(log, dynamo.ErrInvalidState, target, y)
		}
		s.report(result, y, target)

		if i%every == 0 {
			st := s.stepper.Stats()
			log.Debug("progress", "time", target, "point", i, "steps", st.Steps,
				"order", st.Order, "h", st.LastStepSize)
		}
	}

	result.Final = result.States[len(result.States)-1]
	result.Stats = s.stepper.Stats()
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Elapsed = time.Since(start)

	log.Info("run finished", "steps", result.Stats.Steps, "rejected", result.Stats.Rejected,
		"evaluations", result.Stats.Evaluations, "elapsed", result.Elapsed)
	return result, nil
}

func (s *Simulator) report(r *Result, y dynamo.State, t float64) {
	r.States = append(r.States, y)
	for _, m := range s.metrics {
		m.Observe(y, t)
	}
	for _, o := range s.observers {
		o.OnReport(y, t)
	}
}

func (s *Simulator) fail(log *slog.Logger, err error, t float64, y dynamo.State) error {
	st := s.stepper.Stats()
	log.Error("run failed", "time", t, "steps", st.Steps, "error", err)
	return &dynamo.SimulationError{
		Step:    st.Steps,
		Time:    t,
		State:   y.Clone(),
		Wrapped: err,
	}
}
