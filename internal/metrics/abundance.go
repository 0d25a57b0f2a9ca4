package metrics

import (
	"math"

	"github.com/san-kum/ejecta/internal/dynamo"
)

// MinAbundance records the most negative abundance seen, or zero when
// every observed abundance stayed non-negative. Index 0 is ignored.
type MinAbundance struct {
	name       string
	min        float64
	species    int
	violations int
	samples    int
}

func NewMinAbundance() *MinAbundance {
	return &MinAbundance{name: "min_abundance", species: -1}
}

func (m *MinAbundance) Name() string { return m.name }

func (m *MinAbundance) Observe(y dynamo.State, t float64) {
	m.samples++
	v, i := y.Min(true)
	if v < 0 {
		m.violations++
	}
	if v < m.min {
		m.min = v
		m.species = i
	}
}

func (m *MinAbundance) Value() float64 { return m.min }

// Species is the index of the most negative excursion, or -1.
func (m *MinAbundance) Species() int { return m.species }

// Violations counts report points with at least one negative abundance.
func (m *MinAbundance) Violations() int { return m.violations }

func (m *MinAbundance) Reset() {
	m.min = 0
	m.species = -1
	m.violations = 0
	m.samples = 0
}

// Species tracks one abundance: its last value and its peak.
type Species struct {
	name  string
	index int
	last  float64
	peak  float64
	tPeak float64
}

func NewSpecies(name string, index int) *Species {
	return &Species{name: "y_" + name, index: index, peak: math.Inf(-1)}
}

func (s *Species) Name() string { return s.name }

func (s *Species) Observe(y dynamo.State, t float64) {
	if s.index >= len(y) {
		return
	}
	s.last = y[s.index]
	if s.last > s.peak {
		s.peak = s.last
		s.tPeak = t
	}
}

func (s *Species) Value() float64 { return s.last }

// Peak returns the largest value observed and when it occurred.
func (s *Species) Peak() (float64, float64) { return s.peak, s.tPeak }

func (s *Species) Reset() {
	s.last = 0
	s.peak = math.Inf(-1)
	s.tPeak = 0
}
