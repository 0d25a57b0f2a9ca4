package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/integrators"
	"github.com/san-kum/ejecta/internal/metrics"
	"github.com/san-kum/ejecta/internal/network"
	"github.com/san-kum/ejecta/internal/sim"
)

type Registry struct {
	steppers map[string]func() dynamo.Stepper
	metrics  map[string]func(*network.Network) sim.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		steppers: make(map[string]func() dynamo.Stepper),
		metrics:  make(map[string]func(*network.Network) sim.Metric),
	}

	r.steppers["bdf"] = func() dynamo.Stepper { return integrators.NewBDF(integrators.Options{}) }

	r.metrics["atom_drift"] = func(n *network.Network) sim.Metric { return metrics.NewAtomDrift(n.AtomCounts()) }
	r.metrics["min_abundance"] = func(*network.Network) sim.Metric { return metrics.NewMinAbundance() }

	return r
}

func (r *Registry) DefaultStepper() string { return "bdf" }

func (r *Registry) Stepper(name string) (dynamo.Stepper, error) {
	fn, ok := r.steppers[name]
	if !ok {
		return nil, fmt.Errorf("unknown stepper: %s", name)
	}
	return fn(), nil
}

func (r *Registry) Metric(name string, net *network.Network) (sim.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(net), nil
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns every registered metric plus a tracker for each
// molecule of the network.
func (r *Registry) DefaultMetrics(net *network.Network) []sim.Metric {
	var out []sim.Metric
	for _, name := range r.ListMetrics() {
		out = append(out, r.metrics[name](net))
	}
	for _, s := range net.Species() {
		if s.AtomCount >= 2 {
			out = append(out, metrics.NewSpecies(s.Name, s.Index))
		}
	}
	return out
}
