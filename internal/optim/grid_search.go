package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/experiment"
)

var ErrNoCandidate = errors.New("optim: no grid point produced the metric")

// Setters maps a grid parameter name to the config field it overrides.
var Setters = map[string]func(*config.Config, float64){
	"density":     func(c *config.Config, v float64) { c.ReferenceDensity = v },
	"temperature": func(c *config.Config, v float64) { c.ReferenceTemperature = v },
	"end_time":    func(c *config.Config, v float64) { c.EndTime = v },
}

// Point is one evaluated grid point.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
}

// NewGridSearch searches the cartesian product of ranges. Parameter names
// must be keys of Setters.
func NewGridSearch(params []string, ranges [][]float64, maximize bool) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters with %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := Setters[p]; !ok {
			return nil, fmt.Errorf("optim: unknown parameter %q", p)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", p)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, maximize: maximize}, nil
}

// Search runs base at every grid point and returns the best point by
// metricName plus every evaluation in grid order. Points whose run fails
// are recorded with their error and skipped.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, reg *experiment.Registry, metricName string) (Point, []Point, error) {
	var all []Point
	g.searchRecursive(ctx, 0, make(map[string]float64), base, reg, metricName, &all)
	if err := ctx.Err(); err != nil {
		return Point{}, all, err
	}

	best := Point{Value: math.Inf(1)}
	if g.maximize {
		best.Value = math.Inf(-1)
	}
	found := false
	for _, p := range all {
		if p.Err != nil {
			continue
		}
		if (g.maximize && p.Value > best.Value) || (!g.maximize && p.Value < best.Value) {
			best, found = p, true
		}
	}
	if !found {
		return Point{}, all, ErrNoCandidate
	}
	return best, all, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *config.Config,
	reg *experiment.Registry,
	metricName string,
	all *[]Point,
) {
	if ctx.Err() != nil {
		return
	}
	if depth == len(g.paramNames) {
		*all = append(*all, g.evaluate(ctx, current, base, reg, metricName))
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, base, reg, metricName, all)
	}
}

func (g *GridSearch) evaluate(ctx context.Context, params map[string]float64, base *config.Config, reg *experiment.Registry, metricName string) Point {
	p := Point{Params: params}
	cfg := base.Clone()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		Setters[k](cfg, params[k])
	}

	exp, err := experiment.Build(cfg)
	if err != nil {
		p.Err = err
		return p
	}
	result, err := exp.Run(ctx, reg)
	if err != nil {
		p.Err = err
		return p
	}
	v, ok := result.Metrics[metricName]
	if !ok {
		p.Err = fmt.Errorf("optim: run has no metric %q", metricName)
		return p
	}
	p.Value = v
	return p
}
