// Package kinetics assembles the rate equations of a reaction network into
// the right-hand side of an ODE system.
//
// Every reaction contributes one flux: it is subtracted from each consumed
// reactant and added to each non-empty product slot. Summing these
// per-reaction contributions is what makes total atom count a conserved
// quantity of the assembled system when the table itself is balanced.
package kinetics

import (
	"fmt"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/models"
	"github.com/san-kum/ejecta/internal/network"
	"github.com/san-kum/ejecta/internal/ratelaw"
	"gonum.org/v1/gonum/mat"
)

// Environment supplies the physical state of the gas at time t.
type Environment interface {
	Conditions(t float64) models.Conditions
}

// Assembler is the right-hand side of the network's rate equations. It is
// stateless between calls and safe to share across goroutines.
type Assembler struct {
	net   *network.Network
	env   Environment
	rates ratelaw.Evaluator
	n     int
}

func New(net *network.Network, env Environment, rates ratelaw.Evaluator) *Assembler {
	return &Assembler{net: net, env: env, rates: rates, n: net.Len()}
}

func (a *Assembler) Dim() int { return a.n }

func (a *Assembler) Network() *network.Network { return a.net }

// Conditions exposes the environment at t.
func (a *Assembler) Conditions(t float64) models.Conditions { return a.env.Conditions(t) }

// Derive writes dy/dt into dst. dst is zeroed first.
func (a *Assembler) Derive(dst, y dynamo.State, t float64) error {
	if len(dst) != a.n || len(y) != a.n {
		return fmt.Errorf("%w: want %d, got y=%d dst=%d", dynamo.ErrDimensionMismatch, a.n, len(y), len(dst))
	}
	for i := range dst {
		dst[i] = 0
	}

	c := a.env.Conditions(t)
	pool := a.poolSum(y)

	for _, r := range a.net.Reactions() {
		k, err := a.rates.Rate(r.Alpha, r.Beta, r.Gamma, c.Temperature, r.Formula)
		if err != nil {
			return fmt.Errorf("reaction %d: %w", r.ID, err)
		}
		f := flux(r, k, c.Density, y, pool)

		dst[r.In1.Index] -= f
		if r.In2.IsSpecies() {
			dst[r.In2.Index] -= f
		}
		for _, o := range r.Out {
			if o.IsSpecies() {
				dst[o.Index] += f
			}
		}
	}
	return nil
}

// Evaluate returns dy/dt in a freshly allocated vector.
func (a *Assembler) Evaluate(y dynamo.State, t float64) (dynamo.State, error) {
	dst := make(dynamo.State, a.n)
	if err := a.Derive(dst, y, t); err != nil {
		return nil, err
	}
	return dst, nil
}

// Fluxes returns the flux of every reaction in table order.
func (a *Assembler) Fluxes(y dynamo.State, t float64) ([]float64, error) {
	if len(y) != a.n {
		return nil, dynamo.ErrDimensionMismatch
	}
	c := a.env.Conditions(t)
	pool := a.poolSum(y)

	out := make([]float64, len(a.net.Reactions()))
	for i, r := range a.net.Reactions() {
		k, err := a.rates.Rate(r.Alpha, r.Beta, r.Gamma, c.Temperature, r.Formula)
		if err != nil {
			return nil, fmt.Errorf("reaction %d: %w", r.ID, err)
		}
		out[i] = flux(r, k, c.Density, y, pool)
	}
	return out, nil
}

// Jacobian writes df/dy into dst (Dim x Dim). The network is at most
// bilinear in y so the derivatives are exact.
func (a *Assembler) Jacobian(dst *mat.Dense, y dynamo.State, t float64) error {
	if r, c := dst.Dims(); r != a.n || c != a.n || len(y) != a.n {
		return dynamo.ErrDimensionMismatch
	}
	dst.Zero()

	c := a.env.Conditions(t)
	pool := a.poolSum(y)

	for _, r := range a.net.Reactions() {
		k, err := a.rates.Rate(r.Alpha, r.Beta, r.Gamma, c.Temperature, r.Formula)
		if err != nil {
			return fmt.Errorf("reaction %d: %w", r.ID, err)
		}

		i1 := r.In1.Index
		switch r.Arity() {
		case network.Binary:
			i2 := r.In2.Index
			nk := c.Density * k
			a.spread(dst, r, i1, nk*y[i2])
			a.spread(dst, r, i2, nk*y[i1])
		case network.BackgroundCatalyzed:
			nk := c.Density * k
			a.spread(dst, r, i1, nk*pool)
			for _, p := range a.net.Pool() {
				a.spread(dst, r, p, nk*y[i1])
			}
		case network.Unary:
			a.spread(dst, r, i1, k)
		}
	}
	return nil
}

// spread adds the partial derivative v = d(flux)/dy[col] to every row the
// reaction touches.
func (a *Assembler) spread(dst *mat.Dense, r network.Reaction, col int, v float64) {
	if v == 0 {
		return
	}
	dst.Set(r.In1.Index, col, dst.At(r.In1.Index, col)-v)
	if r.In2.IsSpecies() {
		dst.Set(r.In2.Index, col, dst.At(r.In2.Index, col)-v)
	}
	for _, o := range r.Out {
		if o.IsSpecies() {
			dst.Set(o.Index, col, dst.At(o.Index, col)+v)
		}
	}
}

func (a *Assembler) poolSum(y dynamo.State) float64 {
	sum := 0.0
	for _, p := range a.net.Pool() {
		sum += y[p]
	}
	return sum
}

// flux is the reaction rate in abundance per unit time. Unimolecular
// processes are density independent.
func flux(r network.Reaction, k, n float64, y dynamo.State, pool float64) float64 {
	switch r.Arity() {
	case network.Binary:
		return n * k * y[r.In1.Index] * y[r.In2.Index]
	case network.BackgroundCatalyzed:
		return n * k * y[r.In1.Index] * pool
	default:
		return k * y[r.In1.Index]
	}
}
