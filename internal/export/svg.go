package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/ejecta/internal/storage"
)

// Floor is the smallest abundance drawn; lower values are clamped.
const Floor = 1e-30

var palette = []string{
	"#00d7af", "#ffd700", "#ff87ff", "#5fafff", "#ff5f5f", "#87ff5f", "#d7afff", "#ffaf5f",
}

// TrajectoryToSVG plots log10 abundance against time for the named species,
// or for every species when names is empty.
func TrajectoryToSVG(tr *storage.Trajectory, names []string, width, height int) (string, error) {
	if tr == nil || len(tr.Times) < 2 {
		return "", fmt.Errorf("export: need at least two samples")
	}
	if len(names) == 0 {
		names = tr.Species
	}

	series := make([][]float64, len(names))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for k, name := range names {
		s, err := tr.Series(name)
		if err != nil {
			return "", err
		}
		for i, v := range s {
			s[i] = math.Log10(math.Max(v, Floor))
			minY = math.Min(minY, s[i])
			maxY = math.Max(maxY, s[i])
		}
		series[k] = s
	}
	minY, maxY = math.Floor(minY), math.Ceil(maxY)
	if maxY == minY {
		maxY = minY + 1
	}

	const margin = 50.0
	w, h := float64(width), float64(height)
	t0, t1 := tr.Times[0], tr.Times[len(tr.Times)-1]
	px := func(t float64) float64 { return margin + (t-t0)/(t1-t0)*(w-2*margin) }
	py := func(y float64) float64 { return h - margin - (y-minY)/(maxY-minY)*(h-2*margin) }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="#333" stroke-width="0.5" font-family="monospace" font-size="10" fill="#888">
`, width, height, width, height)

	for d := minY; d <= maxY; d++ {
		y := py(d)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/><text x="4" y="%.1f" stroke="none">1e%d</text>
`, margin, y, w-margin, y, y+3, int(d))
	}
	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" stroke="none">t=%g</text><text x="%.1f" y="%.1f" stroke="none" text-anchor="end">t=%g</text>
</g>
`, margin, h-margin/2, t0, w-margin, h-margin/2, t1)

	for k, s := range series {
		color := palette[k%len(palette)]
		sb.WriteString(`<path fill="none" stroke="` + color + `" stroke-width="1.5" d="M`)
		for i, v := range s {
			if i > 0 {
				sb.WriteString(" L")
			}
			fmt.Fprintf(&sb, "%.1f,%.1f", px(tr.Times[i]), py(v))
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" fill="%s" font-family="monospace" font-size="11">%s</text>
`, w-margin+4, py(s[len(s)-1])+4, color, names[k])
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}
