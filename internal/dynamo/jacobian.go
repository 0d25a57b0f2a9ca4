package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MachineEpsilon is the spacing of float64 values near 1.
const MachineEpsilon = 0x1p-52

// DeriveFunc has the signature of System.Derive.
type DeriveFunc func(dst, y State, t float64) error

// NumericJacobian fills dst with forward differences of f at (y, t), one
// column per component. Column j steps y[j] by sqrt(eps)*max(|y[j]|, 1).
// y is restored before returning.
func NumericJacobian(dst *mat.Dense, f DeriveFunc, y State, t float64) error {
	n := len(y)
	f0 := make(State, n)
	if err := f(f0, y, t); err != nil {
		return err
	}
	yp := y.Clone()
	fp := make(State, n)
	for j := 0; j < n; j++ {
		h := math.Sqrt(MachineEpsilon) * math.Max(math.Abs(y[j]), 1)
		yp[j] = y[j] + h
		if err := f(fp, yp, t); err != nil {
			return err
		}
		yp[j] = y[j]
		for i := 0; i < n; i++ {
			dst.Set(i, j, (fp[i]-f0[i])/h)
		}
	}
	return nil
}
