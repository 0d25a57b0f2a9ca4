package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/integrators"
	"github.com/san-kum/ejecta/internal/kinetics"
	"github.com/san-kum/ejecta/internal/models"
	"github.com/san-kum/ejecta/internal/network"
	"github.com/san-kum/ejecta/internal/ratelaw"
	"github.com/san-kum/ejecta/internal/sim"
)

// dimerization builds A + A -> B at constant density 1e10 cm^-3.
func dimerization() *kinetics.Assembler {
	net, err := network.New(network.Table{
		Species: []network.Species{
			{Name: "A", Index: 1, AtomCount: 1},
			{Name: "B", Index: 2, AtomCount: 2},
		},
		Reactions: []network.Row{
			{ID: 1, In1: 1, In2: 1, Out1: 2, Alpha: 1e-10, Formula: int(ratelaw.ModifiedArrhenius)},
		},
		BackgroundIndex: network.DefaultBackgroundIndex,
	})
	Expect(err).NotTo(HaveOccurred())

	p := models.DefaultParams(models.ConstantDensity, ratelaw.Years)
	p.N0 = 1e10
	p.HoldTemperature = true
	env, err := models.New(p)
	Expect(err).NotTo(HaveOccurred())

	return kinetics.New(net, env, ratelaw.NewEvaluator(ratelaw.Years))
}

// blowUp is y' = y^2, which diverges at t = 1/y0.
type blowUp struct{}

func (blowUp) Dim() int { return 1 }

func (blowUp) Derive(dst, y dynamo.State, t float64) error {
	dst[0] = y[0] * y[0]
	return nil
}

var _ = Describe("Simulator", func() {
	var (
		asm  *kinetics.Assembler
		span sim.Span
		y0   dynamo.State
	)

	BeforeEach(func() {
		asm = dimerization()
		span = sim.Span{Start: 0.1, End: 5, Points: 200}
		y0 = dynamo.State{0, 1, 0}
	})

	Context("A + A -> B at constant density", func() {
		var result *sim.Result

		BeforeEach(func() {
			s := sim.New(asm, integrators.NewBDF(integrators.Options{}),
				sim.WithTolerances(1e-10, 1e-14))
			var err error
			result, err = s.Run(context.Background(), y0, span)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports every point of the span", func() {
			Expect(result.Times).To(HaveLen(200))
			Expect(result.States).To(HaveLen(200))
			Expect(result.Times[0]).To(Equal(0.1))
			Expect(result.Times[199]).To(Equal(5.0))
		})

		It("depletes A and builds B monotonically", func() {
			for i := 1; i < len(result.States); i++ {
				Expect(result.States[i][1]).To(BeNumerically("<=", result.States[i-1][1]+1e-12))
				Expect(result.States[i][2]).To(BeNumerically(">=", result.States[i-1][2]-1e-12))
			}
		})

		It("conserves y_A + 2 y_B", func() {
			for _, y := range result.States {
				Expect(y[1] + 2*y[2]).To(BeNumerically("~", 1, 1e-9))
			}
		})

		It("matches the second-order decay law", func() {
			// dA/dt = -2 n k A^2
			nk := 1e10 * 1e-10 * ratelaw.SecondsPerYear
			want := 1 / (1 + 2*nk*(span.End-span.Start))
			Expect(result.Final[1]).To(BeNumerically("~", want, 1e-4*want))
		})

		It("keeps abundances non-negative", func() {
			for _, y := range result.States {
				v, _ := y.Min(true)
				Expect(v).To(BeNumerically(">=", -1e-12))
			}
		})

		It("never writes to the catchall slot", func() {
			for _, y := range result.States {
				Expect(y[0]).To(BeZero())
			}
		})
	})

	Context("with an exhausted step budget", func() {
		It("fails without a partial trajectory", func() {
			s := sim.New(asm, integrators.NewBDF(integrators.Options{}), sim.WithMaxSteps(10))

			result, err := s.Run(context.Background(), y0, span)
			Expect(result).To(BeNil())
			Expect(errors.Is(err, dynamo.ErrStepBudget)).To(BeTrue())

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Time).To(BeNumerically(">=", span.Start))
			Expect(simErr.State).To(HaveLen(3))
		})
	})

	Context("with a solution that diverges in finite time", func() {
		It("fails once the step collapses, without a partial trajectory", func() {
			s := sim.New(blowUp{}, integrators.NewBDF(integrators.Options{}))

			result, err := s.Run(context.Background(), dynamo.State{1}, sim.Span{Start: 0, End: 2, Points: 3})
			Expect(result).To(BeNil())
			Expect(errors.Is(err, dynamo.ErrStepTooSmall)).To(BeTrue())

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Time).To(BeNumerically("~", 1, 1e-3))
			Expect(simErr.State).To(HaveLen(1))
		})
	})

	Context("in a density sweep", func() {
		It("depletes A faster at higher density", func() {
			var jobs []sim.Job
			for _, n := range []float64{1e8, 1e10} {
				net := asm.Network()
				p := models.DefaultParams(models.ConstantDensity, ratelaw.Years)
				p.N0 = n
				p.HoldTemperature = true
				env, err := models.New(p)
				Expect(err).NotTo(HaveOccurred())

				a := kinetics.New(net, env, ratelaw.NewEvaluator(ratelaw.Years))
				jobs = append(jobs, sim.Job{
					Sim: sim.New(a, integrators.NewBDF(integrators.Options{}), sim.WithTolerances(1e-10, 1e-14)),
					Y0:  y0.Clone(),
				})
			}

			results, err := sim.Sweep(context.Background(), jobs, sim.Span{Start: 0.1, End: 5, Points: 10}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[1].Final[1]).To(BeNumerically("<", results[0].Final[1]))
		})
	})
})
