package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/ejecta/internal/dynamo"
)

// Span is the output grid: Points evenly spaced report times from Start to
// End inclusive.
type Span struct {
	Start  float64
	End    float64
	Points int
}

func (s Span) Validate() error {
	if !(s.End > s.Start) {
		return fmt.Errorf("%w: end %g not after start %g", dynamo.ErrInvalidSpan, s.End, s.Start)
	}
	if s.Points < 2 {
		return fmt.Errorf("%w: need at least 2 report points, got %d", dynamo.ErrInvalidSpan, s.Points)
	}
	return nil
}

// Times returns the report times. The last entry is exactly End.
func (s Span) Times() []float64 {
	ts := make([]float64, s.Points)
	dt := (s.End - s.Start) / float64(s.Points-1)
	for i := range ts {
		ts[i] = s.Start + float64(i)*dt
	}
	ts[len(ts)-1] = s.End
	return ts
}

// Metric accumulates a scalar over the report points of a run.
type Metric interface {
	Name() string
	Observe(y dynamo.State, t float64)
	Value() float64
	Reset()
}

type Result struct {
	Times   []float64
	States  []dynamo.State
	Final   dynamo.State
	Stats   dynamo.Stats
	Metrics map[string]float64
	Elapsed time.Duration
}

// Series returns the trajectory of one species index.
func (r *Result) Series(idx int) []float64 {
	out := make([]float64, len(r.States))
	for i, y := range r.States {
		out[i] = y[idx]
	}
	return out
}
