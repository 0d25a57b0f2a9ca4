package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/ejecta/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Variable-order, quasi-constant step BDF in the difference formulation of
// Shampine & Reichelt, "The MATLAB ODE Suite" (1997), with the NDF error
// constants. Orders 1..5.
const (
	maxOrder      = 5
	newtonMaxIter = 4
	minFactor     = 0.2
	maxFactor     = 10.0
)

var (
	kappa    = [maxOrder + 1]float64{0, -0.1850, -1.0 / 9.0, -0.0823, -0.0415, 0}
	gammaK   [maxOrder + 1]float64
	alphaK   [maxOrder + 1]float64
	errConst [maxOrder + 1]float64
)

func init() {
	for k := 1; k <= maxOrder; k++ {
		gammaK[k] = gammaK[k-1] + 1/float64(k)
	}
	for k := 0; k <= maxOrder; k++ {
		alphaK[k] = (1 - kappa[k]) * gammaK[k]
		errConst[k] = kappa[k]*gammaK[k] + 1/float64(k+1)
	}
}

var ErrInvalidTolerance = errors.New("integrators: tolerances must be positive")

const eps = dynamo.MachineEpsilon

// Options configures the BDF stepper. Zero values select defaults.
type Options struct {
	// InitialStep, if > 0, is the size of the first step.
	InitialStep float64
	// MaxStep, if > 0, bounds every step.
	MaxStep float64
}

// BDF is a stiff implicit stepper. One instance integrates one run.
type BDF struct {
	opts Options

	sys dynamo.System
	jac dynamo.Jacobian
	n   int

	t, tEnd float64
	y       dynamo.State
	hAbs    float64
	order   int
	nEqual  int

	rtol, atol float64
	newtonTol  float64

	// d[k] is the k-th backward difference scaled by h^k.
	d [][]float64

	j          *mat.Dense
	iter       *mat.Dense
	lu         mat.LU
	luValid    bool
	jacCurrent bool

	f, ypred, psi, scale, ynew, corr, rhs, dy []float64
	rhsVec, dyVec                             *mat.VecDense

	dense denseOutput
	stats dynamo.Stats
}

type denseOutput struct {
	t     float64
	h     float64
	order int
	d     [][]float64
}

func NewBDF(opts Options) *BDF {
	return &BDF{opts: opts}
}

func (b *BDF) Name() string { return "bdf" }

func (b *BDF) Init(sys dynamo.System, t0 float64, y0 dynamo.State, tEnd float64, tol dynamo.Tolerances) error {
	n := sys.Dim()
	if len(y0) != n {
		return fmt.Errorf("%w: y0 has %d entries, system %d", dynamo.ErrDimensionMismatch, len(y0), n)
	}
	if !(tEnd > t0) {
		return fmt.Errorf("%w: end %g not after start %g", dynamo.ErrInvalidSpan, tEnd, t0)
	}
	if tol.Rel <= 0 || tol.Abs <= 0 {
		return fmt.Errorf("%w: rtol=%g atol=%g", ErrInvalidTolerance, tol.Rel, tol.Abs)
	}
	if !y0.IsValid() {
		return dynamo.ErrInvalidState
	}

	b.sys = sys
	b.jac, _ = sys.(dynamo.Jacobian)
	b.n = n
	b.t, b.tEnd = t0, tEnd
	b.y = y0.Clone()
	b.rtol = math.Max(tol.Rel, 100*eps)
	b.atol = tol.Abs
	b.newtonTol = math.Max(10*eps/b.rtol, math.Min(0.03, math.Sqrt(b.rtol)))
	b.order = 1
	b.nEqual = 0
	b.luValid = false
	b.stats = dynamo.Stats{Order: 1}

	b.f = make([]float64, n)
	b.ypred = make([]float64, n)
	b.psi = make([]float64, n)
	b.scale = make([]float64, n)
	b.ynew = make([]float64, n)
	b.corr = make([]float64, n)
	b.rhs = make([]float64, n)
	b.dy = make([]float64, n)
	b.rhsVec = mat.NewVecDense(n, b.rhs)
	b.dyVec = mat.NewVecDense(n, b.dy)
	b.j = mat.NewDense(n, n, nil)
	b.iter = mat.NewDense(n, n, nil)

	f0 := make([]float64, n)
	if err := b.eval(f0, b.y, t0); err != nil {
		return err
	}

	h := b.opts.InitialStep
	if h <= 0 {
		var err error
		if h, err = b.initialStep(f0); err != nil {
			return err
		}
	}
	h = math.Min(h, tEnd-t0)
	if b.opts.MaxStep > 0 {
		h = math.Min(h, b.opts.MaxStep)
	}
	b.hAbs = h

	b.d = make([][]float64, maxOrder+3)
	for i := range b.d {
		b.d[i] = make([]float64, n)
	}
	copy(b.d[0], b.y)
	for i := range f0 {
		b.d[1][i] = f0[i] * h
	}

	if err := b.updateJacobian(t0, b.y); err != nil {
		return err
	}
	b.snapshot()
	return nil
}

func (b *BDF) Time() float64       { return b.t }
func (b *BDF) State() dynamo.State { return b.y }
func (b *BDF) Stats() dynamo.Stats { return b.stats }

// Step advances by one accepted step. It is a no-op once tEnd is reached.
func (b *BDF) Step() error {
	if b.sys == nil {
		return dynamo.ErrNotInitialized
	}
	if b.t >= b.tEnd {
		return nil
	}

	t := b.t
	d := b.d
	order := b.order
	minStep := 10 * (math.Nextafter(t, math.Inf(1)) - t)

	hAbs := b.hAbs
	if b.opts.MaxStep > 0 && hAbs > b.opts.MaxStep {
		hAbs = b.opts.MaxStep
		changeD(d, order, b.opts.MaxStep/b.hAbs)
		b.nEqual = 0
		b.luValid = false
	} else if hAbs < minStep {
		hAbs = minStep
		changeD(d, order, minStep/b.hAbs)
		b.nEqual = 0
		b.luValid = false
	}

	b.jacCurrent = false

	var (
		tNew   float64
		nIter  int
		errNrm float64
	)
	for {
		if hAbs < minStep {
			return fmt.Errorf("%w: h=%g at t=%g", dynamo.ErrStepTooSmall, hAbs, t)
		}

		tNew = t + hAbs
		if tNew > b.tEnd {
			tNew = b.tEnd
		}
		// Near the resolution of t the realized step differs from hAbs.
		h := tNew - t
		if math.Abs(h-hAbs) > 1e-10*hAbs {
			changeD(d, order, h/hAbs)
			b.nEqual = 0
			b.luValid = false
		}
		hAbs = h

		for i := 0; i < b.n; i++ {
			sum := 0.0
			for k := 0; k <= order; k++ {
				sum += d[k][i]
			}
			b.ypred[i] = sum
			b.scale[i] = b.atol + b.rtol*math.Abs(sum)

			psi := 0.0
			for k := 1; k <= order; k++ {
				psi += d[k][i] * gammaK[k]
			}
			b.psi[i] = psi / alphaK[order]
		}

		c := h / alphaK[order]
		converged := false
		for !converged {
			if !b.luValid {
				b.factorize(c)
			}
			var err error
			converged, nIter, err = b.newton(tNew, c)
			if err != nil {
				return err
			}
			if !converged {
				if b.jacCurrent {
					break
				}
				if err := b.updateJacobian(tNew, b.ypred); err != nil {
					return err
				}
				b.luValid = false
			}
		}

		if !converged {
			hAbs *= 0.5
			changeD(d, order, 0.5)
			b.nEqual = 0
			b.luValid = false
			b.stats.NewtonFailures++
			b.stats.Rejected++
			continue
		}

		safety := 0.9 * float64(2*newtonMaxIter+1) / float64(2*newtonMaxIter+nIter)
		for i := 0; i < b.n; i++ {
			b.scale[i] = b.atol + b.rtol*math.Abs(b.ynew[i])
		}
		errNrm = errConst[order] * rmsNorm(b.corr, b.scale)

		if errNrm > 1 {
			factor := math.Max(minFactor, safety*math.Pow(errNrm, -1/float64(order+1)))
			hAbs *= factor
			changeD(d, order, factor)
			b.nEqual = 0
			b.stats.Rejected++
			continue
		}

		b.nEqual++
		b.t = tNew
		copy(b.y, b.ynew)
		b.hAbs = hAbs
		b.stats.Steps++
		b.stats.LastStepSize = hAbs

		// The new differences follow from corr = D^{order+1} y_n.
		for i := 0; i < b.n; i++ {
			d[order+2][i] = b.corr[i] - d[order+1][i]
			d[order+1][i] = b.corr[i]
		}
		for k := order; k >= 0; k-- {
			for i := 0; i < b.n; i++ {
				d[k][i] += d[k+1][i]
			}
		}

		if b.nEqual >= order+1 {
			b.adaptOrder(safety, errNrm)
		}
		b.stats.Order = b.order
		b.snapshot()
		return nil
	}
}

// adaptOrder picks the order among order-1, order, order+1 that allows the
// largest next step, then rescales the differences.
func (b *BDF) adaptOrder(safety, errNrm float64) {
	order := b.order
	errM := math.Inf(1)
	if order > 1 {
		errM = errConst[order-1] * rmsNorm(b.d[order], b.scale)
	}
	errP := math.Inf(1)
	if order < maxOrder {
		errP = errConst[order+1] * rmsNorm(b.d[order+2], b.scale)
	}

	norms := [3]float64{errM, errNrm, errP}
	best, bestFactor := 0, -1.0
	for i, e := range norms {
		f := math.Pow(e, -1/float64(order+i))
		if f > bestFactor {
			best, bestFactor = i, f
		}
	}

	b.order = order + best - 1
	factor := math.Min(maxFactor, safety*bestFactor)
	b.hAbs *= factor
	changeD(b.d, b.order, factor)
	b.nEqual = 0
	b.luValid = false
}

// newton solves the implicit BDF relation for ynew with a simplified Newton
// iteration on the factorized iteration matrix.
func (b *BDF) newton(tNew, c float64) (bool, int, error) {
	copy(b.ynew, b.ypred)
	for i := range b.corr {
		b.corr[i] = 0
	}

	dyNormOld := -1.0
	for k := 0; k < newtonMaxIter; k++ {
		if err := b.eval(b.f, b.ynew, tNew); err != nil {
			return false, k + 1, err
		}
		if !dynamo.State(b.f).IsValid() {
			return false, k + 1, nil
		}

		for i := 0; i < b.n; i++ {
			b.rhs[i] = c*b.f[i] - b.psi[i] - b.corr[i]
		}
		if err := b.lu.SolveVecTo(b.dyVec, false, b.rhsVec); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return false, k + 1, nil
			}
		}

		dyNorm := rmsNorm(b.dy, b.scale)
		rate := -1.0
		if dyNormOld >= 0 {
			rate = dyNorm / dyNormOld
		}
		if rate >= 0 && (rate >= 1 || math.Pow(rate, float64(newtonMaxIter-k))/(1-rate)*dyNorm > b.newtonTol) {
			return false, k + 1, nil
		}

		for i := 0; i < b.n; i++ {
			b.ynew[i] += b.dy[i]
			b.corr[i] += b.dy[i]
		}

		if dyNorm == 0 || (rate >= 0 && rate/(1-rate)*dyNorm < b.newtonTol) {
			return true, k + 1, nil
		}
		dyNormOld = dyNorm
	}
	return false, newtonMaxIter, nil
}

// factorize builds and factors I - c*J.
func (b *BDF) factorize(c float64) {
	b.iter.Scale(-c, b.j)
	for i := 0; i < b.n; i++ {
		b.iter.Set(i, i, b.iter.At(i, i)+1)
	}
	b.lu.Factorize(b.iter)
	b.luValid = true
	b.stats.LUDecompositions++
}

func (b *BDF) updateJacobian(t float64, y []float64) error {
	b.stats.JacobianEvaluations++
	b.jacCurrent = true
	if b.jac != nil {
		return b.jac.Jacobian(b.j, y, t)
	}
	return b.numericJacobian(t, y)
}

// numericJacobian fills J by forward differences, one column per species.
func (b *BDF) numericJacobian(t float64, y []float64) error {
	return dynamo.NumericJacobian(b.j, b.eval, y, t)
}

func (b *BDF) eval(dst, y dynamo.State, t float64) error {
	b.stats.Evaluations++
	return b.sys.Derive(dst, y, t)
}

// initialStep follows Hairer, Norsett & Wanner, "Solving ODEs I", II.4.
func (b *BDF) initialStep(f0 []float64) (float64, error) {
	span := b.tEnd - b.t
	for i := range b.scale {
		b.scale[i] = b.atol + b.rtol*math.Abs(b.y[i])
	}
	d0 := rmsNorm(b.y, b.scale)
	d1 := rmsNorm(f0, b.scale)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	y1 := make(dynamo.State, b.n)
	for i := range y1 {
		y1[i] = b.y[i] + h0*f0[i]
	}
	f1 := make([]float64, b.n)
	if err := b.eval(f1, y1, b.t+h0); err != nil {
		return 0, err
	}
	for i := range f1 {
		f1[i] -= f0[i]
	}
	d2 := rmsNorm(f1, b.scale) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Sqrt(0.01 / math.Max(d1, d2))
	}
	return math.Min(math.Min(100*h0, h1), span), nil
}

func (b *BDF) snapshot() {
	b.dense.t = b.t
	b.dense.h = b.hAbs
	b.dense.order = b.order
	if cap(b.dense.d) < b.order+1 {
		b.dense.d = make([][]float64, maxOrder+1)
		for i := range b.dense.d {
			b.dense.d[i] = make([]float64, b.n)
		}
	}
	b.dense.d = b.dense.d[:b.order+1]
	for k := 0; k <= b.order; k++ {
		copy(b.dense.d[k], b.d[k])
	}
}

// Interpolate evaluates the interpolating polynomial of the last step.
func (b *BDF) Interpolate(dst dynamo.State, t float64) {
	out := b.dense
	copy(dst, out.d[0])
	p := 1.0
	for k := 1; k <= out.order; k++ {
		shift := out.t - out.h*float64(k-1)
		p *= (t - shift) / (out.h * float64(k))
		for i := range dst {
			dst[i] += out.d[k][i] * p
		}
	}
}

// changeD rescales the difference array for a new step h*factor.
func changeD(d [][]float64, order int, factor float64) {
	r := computeR(order, factor)
	u := computeR(order, 1)
	var ru mat.Dense
	ru.Mul(r, u)

	n := len(d[0])
	tmp := make([][]float64, order+1)
	for i := 0; i <= order; i++ {
		row := make([]float64, n)
		for j := 0; j <= order; j++ {
			w := ru.At(j, i)
			if w == 0 {
				continue
			}
			for c := 0; c < n; c++ {
				row[c] += w * d[j][c]
			}
		}
		tmp[i] = row
	}
	for i := 0; i <= order; i++ {
		copy(d[i], tmp[i])
	}
}

func computeR(order int, factor float64) *mat.Dense {
	m := mat.NewDense(order+1, order+1, nil)
	for j := 0; j <= order; j++ {
		m.Set(0, j, 1)
	}
	for i := 1; i <= order; i++ {
		for j := 1; j <= order; j++ {
			m.Set(i, j, m.At(i-1, j)*(float64(i-1)-factor*float64(j))/float64(i))
		}
	}
	return m
}

func rmsNorm(x, scale []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for i, v := range x {
		r := v / scale[i]
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(x)))
}
