package config

import (
	"sort"

	"github.com/san-kum/ejecta/internal/network"
)

// coSpecies and coReactions are a small carbon/oxygen/silicon network for
// trying the models without a KIDA download. Rates are in cm^3 s^-1 or s^-1.
var coSpecies = []SpeciesConfig{
	{Name: "O", Index: 1, Atoms: 1},
	{Name: "C", Index: 2, Atoms: 1},
	{Name: "Si", Index: 3, Atoms: 1},
	{Name: "CO", Index: 4, Atoms: 2},
	{Name: "O2", Index: 5, Atoms: 2},
	{Name: "C2", Index: 6, Atoms: 2},
	{Name: "SiO", Index: 7, Atoms: 2},
}

var coReactions = []ReactionConfig{
	{ID: 1, In: []string{"C", "O"}, Out: []string{"CO"}, Alpha: 4.69e-19, Beta: 1.52, Gamma: -50.5, Formula: 3},
	{ID: 2, In: []string{"O", "O"}, Out: []string{"O2"}, Alpha: 4.9e-20, Beta: 1.58, Formula: 3},
	{ID: 3, In: []string{"C", "C"}, Out: []string{"C2"}, Alpha: 4.36e-18, Beta: 0.35, Gamma: 161.3, Formula: 3},
	{ID: 4, In: []string{"Si", "O"}, Out: []string{"SiO"}, Alpha: 5.52e-18, Beta: 0.31, Formula: 3},
	{ID: 5, In: []string{"C", "O2"}, Out: []string{"CO", "O"}, Alpha: 1.99e-10, Beta: -0.18, Formula: 3},
	{ID: 6, In: []string{"C2", "O"}, Out: []string{"CO", "C"}, Alpha: 2.0e-10, Beta: -0.12, Formula: 3},
	{ID: 7, In: []string{"Si", "O2"}, Out: []string{"SiO", "O"}, Alpha: 1.72e-10, Beta: -0.53, Gamma: 17, Formula: 3},
	{ID: 8, In: []string{"CO", "M"}, Out: []string{"C", "O"}, Alpha: 4.4e-10, Gamma: 98600, Formula: 3},
	{ID: 9, In: []string{"SiO", "M"}, Out: []string{"Si", "O"}, Alpha: 4.0e-10, Gamma: 95000, Formula: 3},
	{ID: 10, In: []string{"CO"}, Out: []string{"C", "O"}, Alpha: 5.0, Formula: 1},
	{ID: 11, In: []string{"SiO"}, Out: []string{"Si", "O"}, Alpha: 1.0e-10, Gamma: 2.3, Formula: 2},
}

var dimerSpecies = []SpeciesConfig{
	{Name: "A", Index: 1, Atoms: 1},
	{Name: "B", Index: 2, Atoms: 2},
}

var dimerReactions = []ReactionConfig{
	{ID: 1, In: []string{"A", "A"}, Out: []string{"B"}, Alpha: 1e-10, Formula: 3},
}

func coPreset(name, model string) *Config {
	return &Config{
		Name:             name,
		Species:          coSpecies,
		Reactions:        coReactions,
		Model:            model,
		ReferenceDensity: DefaultDensity,
		TimeUnit:         DefaultTimeUnit,
		StartTime:        DefaultStartTime,
		EndTime:          DefaultEndTime,
		ReportPoints:     500,
		RelTol:           1e-10,
		AbsTol:           1e-14,
		MaxSteps:         DefaultMaxSteps,
		BackgroundIndex:  network.DefaultBackgroundIndex,
		BackgroundPool:   []string{"C", "O", "Si"},
		InitialAbundances: map[string]float64{
			"C":  0.1,
			"O":  1,
			"Si": 0.05,
		},
	}
}

var Presets = map[string]map[string]*Config{
	"adiabatic": {
		"co": coPreset("adiabatic-co", "adiabatic"),
	},
	"inverse-time": {
		"co": coPreset("inverse-time-co", "inverse-time"),
	},
	"constant-density": {
		"co": func() *Config {
			c := coPreset("constant-density-co", "constant-density")
			c.HoldTemperature = true
			c.ReferenceTemperature = 4000
			return c
		}(),
		"dimer": {
			Name:                 "constant-density-dimer",
			Species:              dimerSpecies,
			Reactions:            dimerReactions,
			Model:                "constant-density",
			ReferenceDensity:     1e10,
			ReferenceTemperature: 1000,
			HoldTemperature:      true,
			TimeUnit:             DefaultTimeUnit,
			StartTime:            0.1,
			EndTime:              5,
			ReportPoints:         200,
			RelTol:               1e-10,
			AbsTol:               1e-14,
			MaxSteps:             DefaultMaxSteps,
			BackgroundIndex:      network.DefaultBackgroundIndex,
			InitialAbundances:    map[string]float64{"A": 1},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the model names that have presets.
func Models() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
