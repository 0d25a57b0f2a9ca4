package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// State is an abundance vector indexed by species index.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Min returns the smallest entry and its index, ignoring index 0 when skipZero is set.
func (s State) Min(skipZero bool) (float64, int) {
	minV, minI := math.Inf(1), -1
	for i, v := range s {
		if skipZero && i == 0 {
			continue
		}
		if v < minV {
			minV, minI = v, i
		}
	}
	return minV, minI
}

// Dot returns sum(w[i]*s[i]) over the shorter of the two slices.
func (s State) Dot(w []float64) float64 {
	n := len(s)
	if len(w) < n {
		n = len(w)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += w[i] * s[i]
	}
	return sum
}

// System is the right-hand side of dy/dt = f(y, t).
type System interface {
	// Dim is the length of the state vector.
	Dim() int
	// Derive writes f(y, t) into dst. dst is overwritten, never accumulated.
	Derive(dst, y State, t float64) error
}

// Jacobian is implemented by systems that can supply df/dy analytically.
type Jacobian interface {
	Jacobian(dst *mat.Dense, y State, t float64) error
}

// Stats counts the work done by a stepper.
type Stats struct {
	Steps               int
	Rejected            int
	Evaluations         int
	JacobianEvaluations int
	LUDecompositions    int
	NewtonFailures      int
	LastStepSize        float64
	Order               int
}

// Tolerances are the relative and absolute error bounds of a run.
type Tolerances struct {
	Rel float64
	Abs float64
}

// Stepper advances a system one accepted step at a time and interpolates
// inside the last step.
type Stepper interface {
	Name() string
	Init(sys System, t0 float64, y0 State, tEnd float64, tol Tolerances) error
	Step() error
	Time() float64
	State() State
	// Interpolate writes y(t) into dst for t within the last accepted step.
	Interpolate(dst State, t float64)
	Stats() Stats
}

// Observer is notified at every report point.
type Observer interface {
	OnReport(y State, t float64)
}
