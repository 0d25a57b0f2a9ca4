package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/ejecta/internal/dynamo"
)

const (
	barWidth    = 40
	floorLog    = -20.0
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws a log-abundance bar chart at each report point,
// throttled to frameRate frames per second.
type LiveRenderer struct {
	w         io.Writer
	title     string
	names     []string
	end       float64
	frameRate int
	lastFrame time.Time
}

// NewLiveRenderer draws the named species; empty names are skipped.
func NewLiveRenderer(w io.Writer, title string, names []string, end float64, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 20
	}
	return &LiveRenderer{w: w, title: title, names: names, end: end, frameRate: frameRate}
}

func (r *LiveRenderer) OnReport(y dynamo.State, t float64) {
	last := t >= r.end
	if !last && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.w, clearScreen+r.Frame(y, t))
}

// Frame renders one snapshot without terminal control codes.
func (r *LiveRenderer) Frame(y dynamo.State, t float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s  t=%.4g / %.4g\n", r.title, t, r.end)
	b.WriteString("  " + strings.Repeat("-", barWidth+24) + "\n")
	for i, name := range r.names {
		if name == "" || i >= len(y) {
			continue
		}
		fmt.Fprintf(&b, "  %-8s %s %10.3e\n", name, logBar(y[i], barWidth), y[i])
	}
	return b.String()
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.w, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.w, showCursor) }

// logBar maps log10(v) from [floorLog, 0] onto width cells.
func logBar(v float64, width int) string {
	filled := 0
	if v > 0 {
		frac := (math.Log10(v) - floorLog) / -floorLog
		filled = int(math.Round(math.Min(math.Max(frac, 0), 1) * float64(width)))
	}
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}
