// Package telemetry exports run statistics as Prometheus metrics. Runs are
// short-lived, so the registry is written to a node-exporter textfile
// rather than served.
package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/sim"
)

const namespace = "ejecta"

type Recorder struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	jacobians   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	metrics     *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Integration runs by outcome.",
		}, []string{"run", "result"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Accepted integrator steps.",
		}, []string{"run"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_steps_total",
			Help:      "Rejected integrator steps.",
		}, []string{"run"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rhs_evaluations_total",
			Help:      "Right-hand side evaluations.",
		}, []string{"run"}),
		jacobians: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jacobian_evaluations_total",
			Help:      "Jacobian evaluations.",
		}, []string{"run"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of successful runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"run"}),
		metrics: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_metric",
			Help:      "Final value of a run metric.",
		}, []string{"run", "metric"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe records one finished run. On failure only the outcome and the
// work done up to the failing step are recorded.
func (r *Recorder) Observe(run string, res *sim.Result, err error) {
	if err != nil {
		r.runs.WithLabelValues(run, outcome(err)).Inc()
		var simErr *dynamo.SimulationError
		if errors.As(err, &simErr) {
			r.steps.WithLabelValues(run).Add(float64(simErr.Step))
		}
		return
	}

	r.runs.WithLabelValues(run, "ok").Inc()
	st := res.Stats
	r.steps.WithLabelValues(run).Add(float64(st.Steps))
	r.rejected.WithLabelValues(run).Add(float64(st.Rejected))
	r.evaluations.WithLabelValues(run).Add(float64(st.Evaluations))
	r.jacobians.WithLabelValues(run).Add(float64(st.JacobianEvaluations))
	r.duration.WithLabelValues(run).Observe(res.Elapsed.Seconds())
	for name, v := range res.Metrics {
		r.metrics.WithLabelValues(run, name).Set(v)
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, dynamo.ErrStepBudget):
		return "step_budget"
	case errors.Is(err, dynamo.ErrStepTooSmall):
		return "step_too_small"
	case errors.Is(err, dynamo.ErrInvalidState):
		return "invalid_state"
	}
	return "error"
}
