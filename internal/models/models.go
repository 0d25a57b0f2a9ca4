// Package models provides the temperature and number-density histories of
// the expanding ejecta as pure functions of elapsed time.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/ejecta/internal/ratelaw"
)

var (
	// ErrUnknownModel is returned for an unrecognized model selector.
	ErrUnknownModel = errors.New("models: unknown physical model")

	// ErrParameterBounds indicates a reference value outside its valid range.
	ErrParameterBounds = errors.New("models: parameter out of valid bounds")
)

// Kind selects the physical model.
type Kind int

const (
	// Adiabatic is the quasi-adiabatic cooling model of Cherchneff & Dwek (2009).
	Adiabatic Kind = iota + 1
	// InverseTime is the basic model of Yu et al. (2013), T proportional to 1/t.
	InverseTime
	// ConstantDensity keeps n fixed at the reference density.
	ConstantDensity
)

func (k Kind) String() string {
	switch k {
	case Adiabatic:
		return "adiabatic"
	case InverseTime:
		return "inverse-time"
	case ConstantDensity:
		return "constant-density"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the canonical names and the short aliases used in
// older configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adiabatic", "cherchneff":
		return Adiabatic, nil
	case "inverse-time", "inverse_time", "yu":
		return InverseTime, nil
	case "constant-density", "constant_density", "constant":
		return ConstantDensity, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

const (
	AdiabaticGamma   = 1.593
	InverseTimeGamma = 4.0 / 3.0

	AdiabaticT0   = 1.8e4
	InverseTimeT0 = 3800.0

	// Reference epochs in days after explosion.
	RefTimeDays     = 100.0
	DensityTimeDays = 63.31
)

// Conditions is the instantaneous physical state of the gas.
type Conditions struct {
	Temperature float64 // K
	Density     float64 // cm^-3
}

// Params configures a Provider. Times are in the run's time unit.
type Params struct {
	Kind            Kind
	T0              float64
	N0              float64
	Gamma           float64
	RefTime         float64
	DensityTime     float64
	HoldTemperature bool
}

// DefaultParams returns the published constants for kind with reference
// epochs converted into unit.
func DefaultParams(kind Kind, unit ratelaw.TimeUnit) Params {
	p := Params{
		Kind:        kind,
		T0:          AdiabaticT0,
		Gamma:       AdiabaticGamma,
		RefTime:     unit.FromDays(RefTimeDays),
		DensityTime: unit.FromDays(DensityTimeDays),
	}
	if kind == InverseTime {
		p.T0 = InverseTimeT0
		p.Gamma = InverseTimeGamma
	}
	return p
}

// Provider evaluates a configured model.
type Provider struct {
	p        Params
	exponent float64
}

func New(p Params) (*Provider, error) {
	switch p.Kind {
	case Adiabatic, ConstantDensity:
	case InverseTime:
		p.Gamma = InverseTimeGamma
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, int(p.Kind))
	}
	if p.T0 <= 0 {
		return nil, fmt.Errorf("%w: reference temperature %g", ErrParameterBounds, p.T0)
	}
	if p.N0 < 0 {
		return nil, fmt.Errorf("%w: reference density %g", ErrParameterBounds, p.N0)
	}
	if p.RefTime <= 0 || (p.Kind != ConstantDensity && p.DensityTime <= 0) {
		return nil, fmt.Errorf("%w: reference times must be positive", ErrParameterBounds)
	}
	return &Provider{p: p, exponent: 3 - 3*p.Gamma}, nil
}

func (m *Provider) Params() Params { return m.p }

// Conditions returns (T, n) at elapsed time t. t must be positive for the
// time-dependent laws.
func (m *Provider) Conditions(t float64) Conditions {
	switch m.p.Kind {
	case Adiabatic, InverseTime:
		return Conditions{
			Temperature: m.temperature(t),
			Density:     m.p.N0 * math.Pow(m.p.DensityTime/t, 3),
		}
	case ConstantDensity:
		T := m.p.T0
		if !m.p.HoldTemperature {
			T = m.temperature(t)
		}
		return Conditions{Temperature: T, Density: m.p.N0}
	}
	panic(fmt.Sprintf("models: unreachable kind %d", int(m.p.Kind)))
}

func (m *Provider) temperature(t float64) float64 {
	return m.p.T0 * math.Pow(t/m.p.RefTime, m.exponent)
}
