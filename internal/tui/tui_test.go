package tui

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/experiment"
	"github.com/san-kum/ejecta/internal/sim"
)

func TestLogBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("#", 10), logBar(1, 10))
	assert.Equal(t, strings.Repeat(".", 10), logBar(0, 10))
	assert.Equal(t, strings.Repeat(".", 10), logBar(-1e-3, 10))
	assert.Equal(t, strings.Repeat("#", 5)+strings.Repeat(".", 5), logBar(1e-10, 10))
	assert.Equal(t, strings.Repeat("#", 10), logBar(50, 10), "clamped above 1")
}

func TestSparkline(t *testing.T) {
	assert.Empty(t, sparkline(nil, 10))

	s := sparkline([]float64{1e-10, 1e-5, 1}, 10)
	assert.Equal(t, 3, utf8.RuneCountInString(s))
	assert.Equal(t, "▁▄█", s)

	flat := sparkline([]float64{0.5, 0.5}, 10)
	assert.Equal(t, "▁▁", flat)
}

func TestLiveRendererFrame(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "dimer", []string{"", "A", "B"}, 5, 0)

	frame := r.Frame(dynamo.State{0, 0.5, 0.25}, 1)
	assert.Contains(t, frame, "dimer")
	assert.Contains(t, frame, "A ")
	assert.Contains(t, frame, "5.000e-01")
	assert.Equal(t, 4, strings.Count(frame, "\n"), "header, rule and two species")

	r.OnReport(dynamo.State{0, 0.5, 0.25}, 5)
	assert.True(t, strings.HasPrefix(buf.String(), clearScreen))

	// A frame right after the last one is throttled unless it is the final point.
	buf.Reset()
	r.OnReport(dynamo.State{0, 0.4, 0.3}, 2)
	assert.Empty(t, buf.String())
	r.OnReport(dynamo.State{0, 0.4, 0.3}, 5)
	assert.NotEmpty(t, buf.String())
}

func TestInteractiveMenu(t *testing.T) {
	app := NewInteractiveApp(experiment.NewRegistry())
	require.NotEmpty(t, app.entries)
	assert.Contains(t, app.View(), "e j e c t a")

	next, _ := app.Update(tea.KeyMsg{Type: tea.KeyDown})
	m := next.(model)
	assert.Equal(t, 1, m.cursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, next.(model).cursor)
}

func TestInteractiveIgnoresStaleRuns(t *testing.T) {
	m := model{
		state:   stateRun,
		run:     2,
		names:   []string{"", "A", "B"},
		history: map[int][]float64{},
		ch:      make(chan tea.Msg),
		span:    sim.Span{Start: 0, End: 1, Points: 2},
	}

	next, cmd := m.Update(snapshotMsg{run: 1, t: 0.5, y: dynamo.State{0, 1, 0}})
	assert.Nil(t, cmd)
	assert.Nil(t, next.(model).y)

	next, cmd = m.Update(snapshotMsg{run: 2, t: 0.5, y: dynamo.State{0, 1, 0}})
	assert.NotNil(t, cmd)
	got := next.(model)
	assert.Equal(t, 0.5, got.t)
	assert.Equal(t, []float64{1}, got.history[1])

	final := dynamo.State{0, 0.2, 0.4}
	next, _ = got.Update(doneMsg{run: 2, result: &sim.Result{Final: final}})
	got = next.(model)
	assert.Equal(t, 1.0, got.t)
	assert.Equal(t, []float64{1, 0.2}, got.history[1])
}

func TestNextSpecies(t *testing.T) {
	m := model{names: []string{"", "A", "", "C"}, selected: 1}
	assert.Equal(t, 3, m.nextSpecies(1))
	m.selected = 3
	assert.Equal(t, 3, m.nextSpecies(1))
	assert.Equal(t, 1, m.nextSpecies(-1))
	m.selected = 1
	assert.Equal(t, 1, m.nextSpecies(-1))
}
