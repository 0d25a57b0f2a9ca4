package metrics

import (
	"math"

	"github.com/san-kum/ejecta/internal/dynamo"
)

// AtomDrift tracks the largest relative change of sum(atoms[i]*y[i]) from
// the first observed state.
type AtomDrift struct {
	name     string
	atoms    []float64
	initial  float64
	current  float64
	maxDrift float64
	samples  int
}

func NewAtomDrift(atoms []float64) *AtomDrift {
	return &AtomDrift{
		name:  "atom_drift",
		atoms: atoms,
	}
}

func (a *AtomDrift) Name() string { return a.name }

func (a *AtomDrift) Observe(y dynamo.State, t float64) {
	total := y.Dot(a.atoms)

	if a.samples == 0 {
		a.initial = total
	}
	a.current = total
	a.samples++

	if a.initial != 0 {
		drift := math.Abs(total-a.initial) / math.Abs(a.initial)
		a.maxDrift = math.Max(a.maxDrift, drift)
	}
}

func (a *AtomDrift) Value() float64 { return a.maxDrift }

// Total is the most recently observed atom total.
func (a *AtomDrift) Total() float64 { return a.current }

func (a *AtomDrift) Reset() {
	a.initial = 0
	a.current = 0
	a.maxDrift = 0
	a.samples = 0
}
