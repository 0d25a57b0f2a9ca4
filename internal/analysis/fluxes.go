package analysis

import (
	"math"
	"sort"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/kinetics"
	"github.com/san-kum/ejecta/internal/network"
)

// ReactionFlux is one reaction's contribution at a state.
type ReactionFlux struct {
	Reaction network.Reaction
	Label    string
	Flux     float64
	// Share is Flux over the summed flux of all reactions.
	Share float64
}

// DominantReactions returns the top reactions by flux at (y, t); top <= 0
// returns all of them. Reactions with zero flux are omitted.
func DominantReactions(asm *kinetics.Assembler, y dynamo.State, t float64, top int) ([]ReactionFlux, error) {
	fluxes, err := asm.Fluxes(y, t)
	if err != nil {
		return nil, err
	}
	net := asm.Network()

	total := 0.0
	for _, f := range fluxes {
		total += math.Abs(f)
	}

	out := make([]ReactionFlux, 0, len(fluxes))
	for i, r := range net.Reactions() {
		if fluxes[i] == 0 {
			continue
		}
		out = append(out, ReactionFlux{
			Reaction: r,
			Label:    net.Label(r),
			Flux:     fluxes[i],
			Share:    math.Abs(fluxes[i]) / total,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return math.Abs(out[i].Flux) > math.Abs(out[j].Flux) })
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out, nil
}
