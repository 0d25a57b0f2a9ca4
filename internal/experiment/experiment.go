package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/kida"
	"github.com/san-kum/ejecta/internal/kinetics"
	"github.com/san-kum/ejecta/internal/models"
	"github.com/san-kum/ejecta/internal/network"
	"github.com/san-kum/ejecta/internal/ratelaw"
	"github.com/san-kum/ejecta/internal/sim"
)

// Experiment is a fully resolved run: network, physical model, rate
// evaluator and initial abundances built from one Config.
type Experiment struct {
	cfg       *config.Config
	unit      ratelaw.TimeUnit
	net       *network.Network
	provider  *models.Provider
	evaluator ratelaw.Evaluator
	asm       *kinetics.Assembler
	y0        dynamo.State
}

func Build(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	unit, err := ratelaw.ParseTimeUnit(cfg.TimeUnit)
	if err != nil {
		return nil, err
	}

	var net *network.Network
	if cfg.Inline() {
		net, err = inlineNetwork(cfg)
	} else {
		net, err = kida.Load(cfg.SpeciesFile, cfg.ReactionsFile, cfg.BackgroundIndex, cfg.BackgroundPool)
	}
	if err != nil {
		return nil, err
	}

	y0 := make(dynamo.State, net.Len())
	for name, v := range cfg.InitialAbundances {
		i, err := net.Index(name)
		if err != nil {
			return nil, fmt.Errorf("initial abundances: %w", err)
		}
		y0[i] = v
	}

	e := &Experiment{
		cfg:       cfg,
		unit:      unit,
		net:       net,
		evaluator: ratelaw.NewEvaluator(unit),
		y0:        y0,
	}
	if err := e.setDensity(cfg.ReferenceDensity); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Experiment) setDensity(n float64) error {
	kind, err := models.ParseKind(e.cfg.Model)
	if err != nil {
		return err
	}
	p := models.DefaultParams(kind, e.unit)
	p.N0 = n
	p.HoldTemperature = e.cfg.HoldTemperature
	if e.cfg.ReferenceTemperature > 0 {
		p.T0 = e.cfg.ReferenceTemperature
	}

	provider, err := models.New(p)
	if err != nil {
		return err
	}
	e.provider = provider
	e.asm = kinetics.New(e.net, provider, e.evaluator)
	return nil
}

// WithDensity returns a copy that differs only in its reference density.
// The network is shared.
func (e *Experiment) WithDensity(n float64) (*Experiment, error) {
	cfg := e.cfg.Clone()
	cfg.ReferenceDensity = n
	c := &Experiment{
		cfg:       cfg,
		unit:      e.unit,
		net:       e.net,
		evaluator: e.evaluator,
		y0:        e.y0,
	}
	if err := c.setDensity(n); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Experiment) Config() *config.Config         { return e.cfg }
func (e *Experiment) Network() *network.Network      { return e.net }
func (e *Experiment) Provider() *models.Provider     { return e.provider }
func (e *Experiment) Assembler() *kinetics.Assembler { return e.asm }
func (e *Experiment) Unit() ratelaw.TimeUnit         { return e.unit }

// InitialState returns a fresh copy of the initial abundance vector.
func (e *Experiment) InitialState() dynamo.State { return e.y0.Clone() }

func (e *Experiment) Span() sim.Span {
	return sim.Span{Start: e.cfg.StartTime, End: e.cfg.EndTime, Points: e.cfg.ReportPoints}
}

// NewSimulator wires a fresh stepper and the default metrics. opts are
// applied after the configured tolerances and budget.
func (e *Experiment) NewSimulator(reg *Registry, opts ...sim.Option) (*sim.Simulator, error) {
	stepper, err := reg.Stepper(reg.DefaultStepper())
	if err != nil {
		return nil, err
	}
	base := []sim.Option{
		sim.WithTolerances(e.cfg.RelTol, e.cfg.AbsTol),
		sim.WithMaxSteps(e.cfg.MaxSteps),
		sim.WithMetrics(reg.DefaultMetrics(e.net)...),
	}
	return sim.New(e.asm, stepper, append(base, opts...)...), nil
}

func (e *Experiment) Run(ctx context.Context, reg *Registry, opts ...sim.Option) (*sim.Result, error) {
	s, err := e.NewSimulator(reg, opts...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, e.InitialState(), e.Span())
}

func inlineNetwork(cfg *config.Config) (*network.Network, error) {
	species := make([]network.Species, len(cfg.Species))
	index := make(map[string]int, len(cfg.Species))
	for i, s := range cfg.Species {
		species[i] = network.Species{Name: s.Name, Index: s.Index, AtomCount: s.Atoms}
		index[s.Name] = s.Index
	}
	resolve := func(id int, name string) (int, error) {
		if name == kida.BackgroundName {
			return cfg.BackgroundIndex, nil
		}
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("reaction %d: %w: %s", id, network.ErrUnknownSpecies, name)
		}
		return i, nil
	}

	rows := make([]network.Row, len(cfg.Reactions))
	for i, r := range cfg.Reactions {
		if len(r.In) == 0 || len(r.In) > 2 || len(r.Out) > 3 {
			return nil, fmt.Errorf("reaction %d: need 1-2 reactants and at most 3 products", r.ID)
		}
		var slots [5]int
		for j, name := range r.In {
			v, err := resolve(r.ID, name)
			if err != nil {
				return nil, err
			}
			slots[j] = v
		}
		for j, name := range r.Out {
			v, err := resolve(r.ID, name)
			if err != nil {
				return nil, err
			}
			slots[2+j] = v
		}
		rows[i] = network.Row{
			ID:  r.ID,
			In1: slots[0], In2: slots[1],
			Out1: slots[2], Out2: slots[3], Out3: slots[4],
			Alpha: r.Alpha, Beta: r.Beta, Gamma: r.Gamma,
			Formula: r.Formula,
		}
	}

	pool, err := kida.PoolIndices(species, cfg.BackgroundPool)
	if err != nil {
		return nil, err
	}
	return network.New(network.Table{
		Species:         species,
		Reactions:       rows,
		BackgroundIndex: cfg.BackgroundIndex,
		Pool:            pool,
	})
}
