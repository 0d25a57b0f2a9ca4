package automation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/experiment"
)

const scenarioYAML = `name: densities
description: dimerization at two densities
steps:
  - name: thin
    preset: constant-density/dimer
    density: 1e9
    report_points: 20
  - name: from-file
    config: dimer.yaml
    end_time: 2
    initial_abundances:
      A: 0.5
`

func writeScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.GetPreset("constant-density", "dimer")
	require.NoError(t, config.Save(filepath.Join(dir, "dimer.yaml"), cfg))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)
	assert.Equal(t, "densities", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, 1e9, sc.Steps[0].Density)
	assert.Equal(t, "dimer.yaml", sc.Steps[1].Config)
}

func TestLoadScenarioErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: nothing\n"), 0o644))

	_, err := LoadScenario(empty)
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	cfg, err := ScenarioStep{Name: "x", Preset: "constant-density/dimer", EndTime: 3, Abundances: map[string]float64{"B": 0.1}}.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Name)
	assert.Equal(t, 3.0, cfg.EndTime)
	assert.Equal(t, 0.1, cfg.InitialAbundances["B"])
	assert.Equal(t, 1.0, cfg.InitialAbundances["A"])

	_, err = ScenarioStep{Name: "both", Preset: "adiabatic/co", Config: "a.yaml"}.Resolve("")
	assert.Error(t, err)
	_, err = ScenarioStep{Name: "none"}.Resolve("")
	assert.Error(t, err)
	_, err = ScenarioStep{Name: "bad", Preset: "adiabatic/nope"}.Resolve("")
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t))
	require.NoError(t, err)

	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	thin := results[0]
	assert.Equal(t, "thin", thin.Config.Name)
	assert.Len(t, thin.Result.Times, 20)

	file := results[1]
	assert.Equal(t, 2.0, file.Result.Times[len(file.Result.Times)-1])
	// A + 2B is conserved from A0 = 0.5.
	assert.InDelta(t, 0.5, file.Result.Final[1]+2*file.Result.Final[2], 1e-9)
	assert.Equal(t, []string{"", "A", "B"}, file.Names)
}

func TestRunScenarioStopsOnFailure(t *testing.T) {
	sc := &Scenario{Name: "broken", Steps: []ScenarioStep{
		{Name: "ok", Preset: "constant-density/dimer", Points: 5},
		{Name: "bad", Preset: "constant-density/dimer", Model: "steady"},
	}}
	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), nil)
	assert.Error(t, err)
	assert.Len(t, results, 1)
}

func TestMonteCarlo(t *testing.T) {
	exp, err := experiment.Build(config.GetPreset("constant-density", "dimer"))
	require.NoError(t, err)

	results, err := RunMonteCarlo(context.Background(), exp, MonteCarloConfig{
		Perturbation: 0.2,
		NumTrials:    4,
		Seed:         7,
		Parallel:     2,
	}, experiment.NewRegistry())
	require.NoError(t, err)
	require.Len(t, results, 4)

	distinct := false
	for i, r := range results {
		assert.Equal(t, i, r.TrialID)
		a0 := r.InitState[1]
		assert.InDelta(t, 1.0, a0, 0.2+1e-12)
		assert.Equal(t, 0.0, r.InitState[2], "zero abundances stay zero")
		assert.InDelta(t, a0, r.FinalState[1]+2*r.FinalState[2], 1e-9)
		if math.Abs(a0-results[0].InitState[1]) > 0 {
			distinct = true
		}
	}
	assert.True(t, distinct, "trials should be perturbed independently")

	spread := MonteCarloStats(results, exp.Network().Names())
	require.Len(t, spread, 2)
	assert.GreaterOrEqual(t, spread[0].Mean, spread[1].Mean)
	for _, s := range spread {
		assert.LessOrEqual(t, s.Min, s.Mean)
		assert.GreaterOrEqual(t, s.Max, s.Mean)
		assert.Greater(t, s.StdDev, 0.0)
	}
}

func TestMonteCarloValidation(t *testing.T) {
	exp, err := experiment.Build(config.GetPreset("constant-density", "dimer"))
	require.NoError(t, err)
	reg := experiment.NewRegistry()

	_, err = RunMonteCarlo(context.Background(), exp, MonteCarloConfig{NumTrials: 0}, reg)
	assert.Error(t, err)
	_, err = RunMonteCarlo(context.Background(), exp, MonteCarloConfig{NumTrials: 1, Perturbation: 1.5}, reg)
	assert.Error(t, err)
}

func TestMonteCarloStatsSingleTrial(t *testing.T) {
	spread := MonteCarloStats([]MonteCarloResult{{FinalState: dynamo.State{0, 0.3, 0.2}}}, []string{"", "A", "B"})
	require.Len(t, spread, 2)
	assert.Equal(t, "A", spread[0].Name)
	assert.Equal(t, 0.0, spread[0].StdDev)
	assert.Nil(t, MonteCarloStats(nil, []string{"A"}))
}
