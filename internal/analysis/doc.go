// Package analysis characterizes integrated kinetics runs.
//
//   - [JacobianSpectrum]: eigenvalues of df/dy and the chemical timescales
//     they imply
//   - [StiffnessProfile]: the spectrum sampled along a trajectory
//   - [DominantReactions]: reactions ranked by absolute flux
//
// # Stiffness
//
// The stiffness ratio is the fastest decay rate over the slowest non-zero
// one. Networks with ratios far above 1e3 need an implicit stepper:
//
//	sp, err := analysis.JacobianSpectrum(asm, y, t)
//	if sp.StiffnessRatio > 1e3 {
//	    // explicit methods will crawl
//	}
package analysis
