package dynamo

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNumericJacobian(t *testing.T) {
	// f = (y0*y1, y0^2) has df/dy = [[y1, y0], [2 y0, 0]].
	f := func(dst, y State, t float64) error {
		dst[0] = y[0] * y[1]
		dst[1] = y[0] * y[0]
		return nil
	}
	y := State{2, 3}
	jac := mat.NewDense(2, 2, nil)
	if err := NumericJacobian(jac, f, y, 0); err != nil {
		t.Fatalf("jacobian failed: %v", err)
	}

	want := [][]float64{{3, 2}, {4, 0}}
	for i := range want {
		for j, w := range want[i] {
			if got := jac.At(i, j); math.Abs(got-w) > 1e-6 {
				t.Errorf("J[%d][%d] = %g, want %g", i, j, got, w)
			}
		}
	}
	if y[0] != 2 || y[1] != 3 {
		t.Errorf("input state modified: %v", y)
	}
}

func TestNumericJacobianPropagatesErrors(t *testing.T) {
	calls := 0
	f := func(dst, y State, t float64) error {
		calls++
		if calls > 1 {
			return ErrInvalidState
		}
		return nil
	}
	err := NumericJacobian(mat.NewDense(2, 2, nil), f, State{1, 1}, 0)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
