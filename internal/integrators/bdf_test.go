package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// decay is y' = -k*y without an analytic Jacobian.
type decay struct{ k float64 }

func (d decay) Dim() int { return 1 }

func (d decay) Derive(dst, y dynamo.State, _ float64) error {
	dst[0] = -d.k * y[0]
	return nil
}

// robertson is the classic stiff chemical kinetics test problem.
type robertson struct{}

func (robertson) Dim() int { return 3 }

func (robertson) Derive(dst, y dynamo.State, _ float64) error {
	dst[0] = -0.04*y[0] + 1e4*y[1]*y[2]
	dst[2] = 3e7 * y[1] * y[1]
	dst[1] = -dst[0] - dst[2]
	return nil
}

func (robertson) Jacobian(dst *mat.Dense, y dynamo.State, _ float64) error {
	dst.Set(0, 0, -0.04)
	dst.Set(0, 1, 1e4*y[2])
	dst.Set(0, 2, 1e4*y[1])
	dst.Set(2, 0, 0)
	dst.Set(2, 1, 6e7*y[1])
	dst.Set(2, 2, 0)
	dst.Set(1, 0, 0.04)
	dst.Set(1, 1, -1e4*y[2]-6e7*y[1])
	dst.Set(1, 2, -1e4*y[1])
	return nil
}

func integrate(t *testing.T, b *BDF, tEnd float64) {
	t.Helper()
	for i := 0; b.Time() < tEnd; i++ {
		require.Less(t, i, 100000, "too many steps")
		require.NoError(t, b.Step())
	}
}

func TestBDFLinearDecay(t *testing.T) {
	b := NewBDF(Options{})
	require.NoError(t, b.Init(decay{k: 1}, 0, dynamo.State{1}, 2, dynamo.Tolerances{Rel: 1e-9, Abs: 1e-12}))
	integrate(t, b, 2)

	assert.Equal(t, 2.0, b.Time())
	assert.InDelta(t, math.Exp(-2), b.State()[0], 1e-7)

	st := b.Stats()
	assert.Positive(t, st.Steps)
	assert.Positive(t, st.JacobianEvaluations)
	assert.LessOrEqual(t, st.Order, maxOrder)
}

func TestBDFRobertson(t *testing.T) {
	b := NewBDF(Options{})
	y0 := dynamo.State{1, 0, 0}
	require.NoError(t, b.Init(robertson{}, 0, y0, 40, dynamo.Tolerances{Rel: 1e-8, Abs: 1e-12}))
	integrate(t, b, 40)

	y := b.State()
	assert.InEpsilon(t, 0.7158270687, y[0], 1e-4)
	assert.InEpsilon(t, 9.185534764e-6, y[1], 1e-3)
	assert.InEpsilon(t, 0.2841637457, y[2], 1e-4)
	assert.InDelta(t, 1.0, y[0]+y[1]+y[2], 1e-6)

	// Stiffness should keep the step count far below what an explicit method needs.
	assert.Less(t, b.Stats().Steps, 5000)
}

func TestBDFStiffDecay(t *testing.T) {
	b := NewBDF(Options{})
	require.NoError(t, b.Init(decay{k: 1e6}, 0, dynamo.State{1}, 10, dynamo.Tolerances{Rel: 1e-6, Abs: 1e-12}))
	integrate(t, b, 10)

	assert.InDelta(t, 0, b.State()[0], 1e-10)
	assert.Less(t, b.Stats().Steps, 2000)
}

func TestBDFInterpolate(t *testing.T) {
	b := NewBDF(Options{})
	require.NoError(t, b.Init(decay{k: 1}, 0, dynamo.State{1}, 3, dynamo.Tolerances{Rel: 1e-10, Abs: 1e-14}))

	out := make(dynamo.State, 1)
	b.Interpolate(out, 0)
	assert.Equal(t, 1.0, out[0])

	for i := 0; i < 30 && b.Time() < 3; i++ {
		prev := b.Time()
		require.NoError(t, b.Step())

		b.Interpolate(out, b.Time())
		assert.InDelta(t, b.State()[0], out[0], 1e-12)

		mid := 0.5 * (prev + b.Time())
		b.Interpolate(out, mid)
		assert.InDelta(t, math.Exp(-mid), out[0], 1e-6)
	}
}

func TestBDFMaxStep(t *testing.T) {
	b := NewBDF(Options{MaxStep: 0.05})
	require.NoError(t, b.Init(decay{k: 1}, 0, dynamo.State{1}, 1, dynamo.Tolerances{Rel: 1e-3, Abs: 1e-6}))
	for b.Time() < 1 {
		require.NoError(t, b.Step())
		assert.LessOrEqual(t, b.Stats().LastStepSize, 0.05+1e-15)
	}
	assert.GreaterOrEqual(t, b.Stats().Steps, 20)
}

func TestBDFInitErrors(t *testing.T) {
	tol := dynamo.Tolerances{Rel: 1e-6, Abs: 1e-9}

	tests := []struct {
		name string
		y0   dynamo.State
		t0   float64
		tEnd float64
		tol  dynamo.Tolerances
		want error
	}{
		{"dimension", dynamo.State{1, 2}, 0, 1, tol, dynamo.ErrDimensionMismatch},
		{"span", dynamo.State{1}, 1, 1, tol, dynamo.ErrInvalidSpan},
		{"tolerance", dynamo.State{1}, 0, 1, dynamo.Tolerances{}, ErrInvalidTolerance},
		{"nan", dynamo.State{math.NaN()}, 0, 1, tol, dynamo.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBDF(Options{}).Init(decay{k: 1}, tt.t0, tt.y0, tt.tEnd, tt.tol)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBDFStepBeforeInit(t *testing.T) {
	assert.ErrorIs(t, NewBDF(Options{}).Step(), dynamo.ErrNotInitialized)
}

func TestChangeDIdentity(t *testing.T) {
	d := [][]float64{{1, 2}, {3, 4}, {5, 6}, {0, 0}}
	changeD(d, 2, 1)
	assert.InDeltaSlice(t, []float64{1, 2}, d[0], 1e-15)
	assert.InDeltaSlice(t, []float64{3, 4}, d[1], 1e-12)
	assert.InDeltaSlice(t, []float64{5, 6}, d[2], 1e-12)
}
