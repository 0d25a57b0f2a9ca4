package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/experiment"
	"github.com/san-kum/ejecta/internal/sim"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`

	dir string
}

// ScenarioStep names a base configuration, either a config file relative to
// the scenario or a model/name preset, plus overrides. Zero overrides are
// ignored.
type ScenarioStep struct {
	Name       string             `yaml:"name"`
	Config     string             `yaml:"config"`
	Preset     string             `yaml:"preset"`
	Model      string             `yaml:"model"`
	Density    float64            `yaml:"density"`
	EndTime    float64            `yaml:"end_time"`
	Points     int                `yaml:"report_points"`
	Abundances map[string]float64 `yaml:"initial_abundances"`
	Save       bool               `yaml:"save"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	scenario.dir = filepath.Dir(path)
	return &scenario, nil
}

// Resolve builds the step's configuration. Relative config paths resolve
// against dir.
func (s ScenarioStep) Resolve(dir string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "" && s.Preset != "":
		return nil, fmt.Errorf("step %q: config and preset are exclusive", s.Name)
	case s.Config != "":
		path := s.Config
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		model, name, _ := strings.Cut(s.Preset, "/")
		if cfg = config.GetPreset(model, name); cfg == nil {
			return nil, fmt.Errorf("step %q: unknown preset %s", s.Name, s.Preset)
		}
	default:
		return nil, fmt.Errorf("step %q: need config or preset", s.Name)
	}

	if s.Name != "" {
		cfg.Name = s.Name
	}
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.Density > 0 {
		cfg.ReferenceDensity = s.Density
	}
	if s.EndTime > 0 {
		cfg.EndTime = s.EndTime
	}
	if s.Points > 0 {
		cfg.ReportPoints = s.Points
	}
	if len(s.Abundances) > 0 && cfg.InitialAbundances == nil {
		cfg.InitialAbundances = make(map[string]float64, len(s.Abundances))
	}
	for k, v := range s.Abundances {
		cfg.InitialAbundances[k] = v
	}
	return cfg, nil
}

// StepResult is one completed scenario step.
type StepResult struct {
	Config *config.Config
	Names  []string
	Result *sim.Result
}

// RunScenario executes all steps in order and stops at the first failure,
// returning the steps completed so far.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, log *slog.Logger) ([]StepResult, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve(scenario.dir)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		log.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "run", cfg.Name)

		exp, err := experiment.Build(cfg)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx, registry, sim.WithLogger(log.With("run", cfg.Name)))
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Config: cfg, Names: exp.Network().Names(), Result: result})
	}

	return results, nil
}

// MonteCarloConfig perturbs every non-zero initial abundance by a uniform
// relative factor in [1-Perturbation, 1+Perturbation].
type MonteCarloConfig struct {
	Perturbation float64
	NumTrials    int
	Seed         int64
	Parallel     int
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
}

// RunMonteCarlo integrates NumTrials perturbed copies of exp concurrently.
func RunMonteCarlo(ctx context.Context, exp *experiment.Experiment, cfg MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	if cfg.NumTrials <= 0 {
		return nil, fmt.Errorf("monte carlo: need at least one trial, got %d", cfg.NumTrials)
	}
	if cfg.Perturbation < 0 || cfg.Perturbation >= 1 {
		return nil, fmt.Errorf("monte carlo: perturbation %g outside [0, 1)", cfg.Perturbation)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	jobs := make([]sim.Job, cfg.NumTrials)
	for trial := range jobs {
		y0 := exp.InitialState()
		for i, v := range y0 {
			if v != 0 {
				y0[i] = v * (1 + (rng.Float64()-0.5)*2*cfg.Perturbation)
			}
		}
		s, err := exp.NewSimulator(registry)
		if err != nil {
			return nil, err
		}
		jobs[trial] = sim.Job{Name: fmt.Sprintf("trial-%d", trial), Sim: s, Y0: y0}
	}

	runs, err := sim.Sweep(ctx, jobs, exp.Span(), cfg.Parallel)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(runs))
	for i, r := range runs {
		results[i] = MonteCarloResult{TrialID: i, InitState: jobs[i].Y0, FinalState: r.Final}
	}
	return results, nil
}

// SpeciesSpread summarizes the final abundance of one species over trials.
type SpeciesSpread struct {
	Name   string
	Index  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// MonteCarloStats computes the spread of each named species, ordered by
// descending mean.
func MonteCarloStats(results []MonteCarloResult, names []string) []SpeciesSpread {
	if len(results) == 0 {
		return nil
	}
	var out []SpeciesSpread
	column := make([]float64, len(results))
	for idx, name := range names {
		if name == "" {
			continue
		}
		for k, r := range results {
			column[k] = r.FinalState[idx]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if len(column) == 1 {
			std = 0
		}
		sorted := append([]float64(nil), column...)
		sort.Float64s(sorted)
		out = append(out, SpeciesSpread{
			Name: name, Index: idx,
			Mean: mean, StdDev: std,
			Min: sorted[0], Max: sorted[len(sorted)-1],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mean > out[j].Mean })
	return out
}
