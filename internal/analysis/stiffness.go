package analysis

import (
	"errors"
	"math"

	"github.com/san-kum/ejecta/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

var ErrNoEigen = errors.New("analysis: eigendecomposition did not converge")

// Spectrum is the local linearization of a system at one state. Rates are
// in inverse time units of the run.
type Spectrum struct {
	T              float64
	Eigenvalues    []complex128
	Fastest        float64
	Slowest        float64
	StiffnessRatio float64
}

// FastestTimescale is 1/Fastest, or +Inf for a frozen system.
func (s Spectrum) FastestTimescale() float64 { return 1 / s.Fastest }

// SlowestTimescale is 1/Slowest, or +Inf for a frozen system.
func (s Spectrum) SlowestTimescale() float64 { return 1 / s.Slowest }

// JacobianSpectrum computes the eigenvalues of df/dy at (y, t). Systems
// without an analytic Jacobian are differenced numerically. Eigenvalues
// whose real part is below 1e-12 of the fastest are treated as conserved
// modes and excluded from Slowest.
func JacobianSpectrum(sys dynamo.System, y dynamo.State, t float64) (Spectrum, error) {
	n := sys.Dim()
	if len(y) != n {
		return Spectrum{}, dynamo.ErrDimensionMismatch
	}

	jac := mat.NewDense(n, n, nil)
	if j, ok := sys.(dynamo.Jacobian); ok {
		if err := j.Jacobian(jac, y, t); err != nil {
			return Spectrum{}, err
		}
	} else if err := dynamo.NumericJacobian(jac, sys.Derive, y, t); err != nil {
		return Spectrum{}, err
	}

	var eig mat.Eigen
	if !eig.Factorize(jac, mat.EigenNone) {
		return Spectrum{}, ErrNoEigen
	}
	values := eig.Values(nil)

	sp := Spectrum{T: t, Eigenvalues: values}
	for _, v := range values {
		sp.Fastest = math.Max(sp.Fastest, math.Abs(real(v)))
	}
	sp.Slowest = math.Inf(1)
	for _, v := range values {
		if r := math.Abs(real(v)); r > 1e-12*sp.Fastest && r < sp.Slowest {
			sp.Slowest = r
		}
	}
	switch {
	case sp.Fastest == 0:
		sp.Slowest = 0
		sp.StiffnessRatio = 1
	default:
		sp.StiffnessRatio = sp.Fastest / sp.Slowest
	}
	return sp, nil
}

// StiffnessProfile evaluates the spectrum at up to samples evenly spaced
// report points of a trajectory, always including the first and last.
func StiffnessProfile(sys dynamo.System, times []float64, states []dynamo.State, samples int) ([]Spectrum, error) {
	if len(times) != len(states) {
		return nil, dynamo.ErrDimensionMismatch
	}
	if len(times) == 0 || samples <= 0 {
		return nil, nil
	}
	if samples > len(times) {
		samples = len(times)
	}

	out := make([]Spectrum, 0, samples)
	for k := 0; k < samples; k++ {
		i := 0
		if samples > 1 {
			i = k * (len(times) - 1) / (samples - 1)
		}
		sp, err := JacobianSpectrum(sys, states[i], times[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}
