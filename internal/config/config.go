package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/ejecta/internal/models"
	"github.com/san-kum/ejecta/internal/network"
	"github.com/san-kum/ejecta/internal/ratelaw"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel        = "adiabatic"
	DefaultTimeUnit     = "years"
	DefaultDensity      = 1e10
	DefaultStartTime    = 60 / ratelaw.DaysPerYear
	DefaultEndTime      = 5.0
	DefaultReportPoints = 1000
	DefaultRelTol       = 1e-13
	DefaultAbsTol       = 1e-13
	DefaultMaxSteps     = 5_000_000
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Name string `yaml:"name"`

	SpeciesFile   string           `yaml:"species_file,omitempty"`
	ReactionsFile string           `yaml:"reactions_file,omitempty"`
	Species       []SpeciesConfig  `yaml:"species,omitempty"`
	Reactions     []ReactionConfig `yaml:"reactions,omitempty"`

	Model                string  `yaml:"model"`
	ReferenceDensity     float64 `yaml:"reference_density"`
	ReferenceTemperature float64 `yaml:"reference_temperature,omitempty"`
	HoldTemperature      bool    `yaml:"hold_temperature,omitempty"`

	TimeUnit     string  `yaml:"time_unit"`
	StartTime    float64 `yaml:"start_time"`
	EndTime      float64 `yaml:"end_time"`
	ReportPoints int     `yaml:"report_points"`

	RelTol   float64 `yaml:"rtol"`
	AbsTol   float64 `yaml:"atol"`
	MaxSteps int     `yaml:"max_steps"`

	BackgroundIndex   int                `yaml:"background_index"`
	BackgroundPool    []string           `yaml:"background_pool"`
	InitialAbundances map[string]float64 `yaml:"initial_abundances"`
}

// SpeciesConfig is an inline species row.
type SpeciesConfig struct {
	Name  string `yaml:"name"`
	Index int    `yaml:"index"`
	Atoms int    `yaml:"atoms"`
}

// ReactionConfig is an inline reaction. Reactant "M" is the background pool.
type ReactionConfig struct {
	ID      int      `yaml:"id"`
	In      []string `yaml:"in"`
	Out     []string `yaml:"out"`
	Alpha   float64  `yaml:"alpha"`
	Beta    float64  `yaml:"beta"`
	Gamma   float64  `yaml:"gamma"`
	Formula int      `yaml:"formula"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:             "ejecta",
		Model:            DefaultModel,
		ReferenceDensity: DefaultDensity,
		TimeUnit:         DefaultTimeUnit,
		StartTime:        DefaultStartTime,
		EndTime:          DefaultEndTime,
		ReportPoints:     DefaultReportPoints,
		RelTol:           DefaultRelTol,
		AbsTol:           DefaultAbsTol,
		MaxSteps:         DefaultMaxSteps,
		BackgroundIndex:  network.DefaultBackgroundIndex,
		BackgroundPool:   []string{"C", "O", "Si"},
		InitialAbundances: map[string]float64{
			"C": 0.1,
			"O": 1,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// Abundances given in the file replace the defaults rather than merging.
	cfg.InitialAbundances = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.InitialAbundances == nil {
		cfg.InitialAbundances = DefaultConfig().InitialAbundances
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Inline reports whether the network is given in the config itself.
func (c *Config) Inline() bool {
	return len(c.Species) > 0
}

// Validate checks everything that can be checked without reading the
// network. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	kind, err := models.ParseKind(c.Model)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := ratelaw.ParseTimeUnit(c.TimeUnit); err != nil {
		errs = append(errs, err)
	}

	if c.Inline() {
		if c.SpeciesFile != "" || c.ReactionsFile != "" {
			bad("inline species and species_file/reactions_file are exclusive")
		}
	} else if c.SpeciesFile == "" || c.ReactionsFile == "" {
		bad("need species_file and reactions_file or an inline network")
	}

	timeDependent := !(kind == models.ConstantDensity && c.HoldTemperature)
	if c.StartTime < 0 || (timeDependent && c.StartTime == 0) {
		bad("start_time %g must be positive for model %s", c.StartTime, c.Model)
	}
	if c.EndTime <= c.StartTime {
		bad("end_time %g must exceed start_time %g", c.EndTime, c.StartTime)
	}
	if c.ReportPoints < 2 {
		bad("report_points %d < 2", c.ReportPoints)
	}
	if c.RelTol <= 0 || c.AbsTol <= 0 {
		bad("rtol and atol must be positive")
	}
	if c.MaxSteps <= 0 {
		bad("max_steps %d must be positive", c.MaxSteps)
	}
	if c.ReferenceDensity < 0 {
		bad("reference_density %g is negative", c.ReferenceDensity)
	}
	if c.ReferenceTemperature < 0 {
		bad("reference_temperature %g is negative", c.ReferenceTemperature)
	}
	if c.BackgroundIndex <= 0 {
		bad("background_index %d must be positive", c.BackgroundIndex)
	}
	if len(c.InitialAbundances) == 0 {
		bad("initial_abundances is empty")
	}
	for name, v := range c.InitialAbundances {
		if v < 0 {
			bad("initial abundance of %s is negative", name)
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Species = append([]SpeciesConfig(nil), c.Species...)
	out.Reactions = make([]ReactionConfig, len(c.Reactions))
	for i, r := range c.Reactions {
		r.In = append([]string(nil), r.In...)
		r.Out = append([]string(nil), r.Out...)
		out.Reactions[i] = r
	}
	if c.Reactions == nil {
		out.Reactions = nil
	}
	out.BackgroundPool = append([]string(nil), c.BackgroundPool...)
	out.InitialAbundances = make(map[string]float64, len(c.InitialAbundances))
	for k, v := range c.InitialAbundances {
		out.InitialAbundances[k] = v
	}
	return &out
}
