// Package dynamo provides the numerical primitives shared by the kinetics
// engine and the integrators.
//
// The package defines:
//
//   - [State]: abundance vector, one entry per species index
//   - [System]: right-hand side of dy/dt = f(y, t)
//   - [Jacobian]: optional analytic df/dy for implicit steppers
//   - [Stepper]: an adaptive integrator advanced one accepted step at a time
//   - [SimulationError]: failure context (step, time, state)
//
// # Example
//
//	asm := kinetics.New(net, provider, evaluator)
//	bdf := integrators.NewBDF(integrators.Options{})
//	s := sim.New(asm, bdf)
//	result, err := s.Run(ctx, y0, sim.Span{Start: 0.1, End: 5, Points: 200})
//
// # Thread Safety
//
// Steppers carry per-run scratch space and are NOT safe for concurrent use.
// Systems built by the kinetics package are read-only and may be shared,
// but each run needs its own stepper.
package dynamo
