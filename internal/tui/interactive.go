package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/experiment"
	"github.com/san-kum/ejecta/internal/sim"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

var modelInfo = map[string]string{
	"adiabatic":        "quasi-adiabatic cooling",
	"inverse-time":     "T proportional to 1/t",
	"constant-density": "fixed density",
}

type state int

const (
	stateMenu state = iota
	stateRun
)

type entry struct {
	model  string
	preset string
}

type snapshotMsg struct {
	run int
	t   float64
	y   dynamo.State
}

type doneMsg struct {
	run    int
	result *sim.Result
	err    error
}

// feed forwards report points to the UI. Snapshots are dropped when the UI
// falls behind; the final result is always delivered.
type feed struct {
	run int
	ch  chan tea.Msg
}

func (f feed) OnReport(y dynamo.State, t float64) {
	select {
	case f.ch <- snapshotMsg{run: f.run, t: t, y: y}:
	default:
	}
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

type model struct {
	state   state
	cursor  int
	entries []entry
	reg     *experiment.Registry

	run     int
	exp     *experiment.Experiment
	names   []string
	span    sim.Span
	ch      chan tea.Msg
	cancel  context.CancelFunc
	started time.Time

	t        float64
	y        dynamo.State
	history  map[int][]float64
	selected int
	result   *sim.Result
	err      error

	width  int
	height int
}

// NewInteractiveApp lists every preset and integrates the chosen one in the
// background while streaming its abundances.
func NewInteractiveApp(reg *experiment.Registry) *model {
	var entries []entry
	for _, m := range config.Models() {
		for _, p := range config.ListPresets(m) {
			entries = append(entries, entry{model: m, preset: p})
		}
	}
	return &model{
		state:   stateMenu,
		entries: entries,
		reg:     reg,
		width:   80,
		height:  24,
	}
}

// NewWatch starts integrating exp immediately. Leaving the run view returns
// to the preset menu.
func NewWatch(reg *experiment.Registry, exp *experiment.Experiment) *model {
	m := NewInteractiveApp(reg)
	m.launch(exp)
	m.state = stateRun
	return m
}

func (m model) Init() tea.Cmd {
	if m.state == stateRun && m.ch != nil {
		return waitFor(m.ch)
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case snapshotMsg:
		if msg.run != m.run || m.ch == nil {
			return m, nil
		}
		m.observe(msg.y, msg.t)
		return m, waitFor(m.ch)
	case doneMsg:
		if msg.run != m.run {
			return m, nil
		}
		m.result = msg.result
		m.err = msg.err
		if msg.result != nil {
			m.observe(msg.result.Final, m.span.End)
		}
		m.cancel = nil
		return m, nil
	}
	return m, nil
}

func (m *model) observe(y dynamo.State, t float64) {
	m.t = t
	m.y = y
	for i, name := range m.names {
		if name == "" || i >= len(y) {
			continue
		}
		h := append(m.history[i], y[i])
		if len(h) > 60 {
			h = h[1:]
		}
		m.history[i] = h
	}
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.state {
	case stateMenu:
		return m.menuKey(msg)
	case stateRun:
		return m.runKey(msg)
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.entries) == 0 {
			return m, nil
		}
		if err := m.start(m.entries[m.cursor]); err != nil {
			m.err = err
			return m, nil
		}
		m.state = stateRun
		return m, tea.Batch(tea.ClearScreen, waitFor(m.ch))
	}
	return m, nil
}

func (m model) runKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.stop()
		return m, tea.Quit
	case "esc", "b":
		m.stop()
		m.state = stateMenu
		m.err = nil
		return m, tea.ClearScreen
	case "up", "k":
		m.selected = m.nextSpecies(-1)
	case "down", "j":
		m.selected = m.nextSpecies(1)
	}
	return m, nil
}

func (m *model) nextSpecies(dir int) int {
	for i := m.selected + dir; i > 0 && i < len(m.names); i += dir {
		if m.names[i] != "" {
			return i
		}
	}
	return m.selected
}

func (m *model) start(e entry) error {
	exp, err := experiment.Build(config.GetPreset(e.model, e.preset))
	if err != nil {
		return err
	}
	m.launch(exp)
	return nil
}

func (m *model) launch(exp *experiment.Experiment) {
	m.exp = exp
	m.names = exp.Network().Names()
	m.span = exp.Span()
	m.history = make(map[int][]float64, len(m.names))
	m.selected = 0
	m.selected = m.nextSpecies(1)
	m.result, m.err, m.y, m.t = nil, nil, nil, m.span.Start
	m.started = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan tea.Msg, 64)
	m.run++
	m.ch, m.cancel = ch, cancel

	run, reg := m.run, m.reg
	go func() {
		defer close(ch)
		res, err := exp.Run(ctx, reg, sim.WithObserver(feed{run: run, ch: ch}))
		ch <- doneMsg{run: run, result: res, err: err}
	}()
}

func (m *model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	// Drain so the worker can deliver its final message and exit.
	if ch := m.ch; ch != nil {
		go func() {
			for range ch {
			}
		}()
		m.ch = nil
	}
}

func (m model) View() string {
	switch m.state {
	case stateMenu:
		return m.viewMenu()
	case stateRun:
		return m.viewRun()
	}
	return ""
}

func (m model) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("            " + cyan.Render("e j e c t a") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n\n")

	for i, e := range m.entries {
		name := fmt.Sprintf("%-24s", e.model+"/"+e.preset)
		desc := modelInfo[e.model]
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(name) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(name) + dimmer.Render(desc) + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("\n      " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("      ↑↓ select   enter run   q quit") + "\n")
	return b.String()
}

func (m model) viewRun() string {
	var b strings.Builder

	icon, status := green.Render("●"), green.Render("integrating")
	switch {
	case m.err != nil:
		icon, status = red.Render("✕"), red.Render("failed")
	case m.result != nil:
		icon, status = yellow.Render("○"), yellow.Render("done")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s\n", icon, cyan.Render(m.exp.Config().Name), status)

	progress := 0.0
	if m.span.End > m.span.Start {
		progress = math.Min(math.Max((m.t-m.span.Start)/(m.span.End-m.span.Start), 0), 1)
	}
	width := 36
	filled := int(progress * float64(width))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", width-filled))
	clock := fmt.Sprintf("t=%.4g/%.4g %s", m.t, m.span.End, m.exp.Unit())
	fmt.Fprintf(&b, "   %s %s\n\n", bar, dim.Render(clock))

	for i, name := range m.names {
		if name == "" || i >= len(m.y) {
			continue
		}
		label := fmt.Sprintf("%-8s", name)
		row := logBar(m.y[i], 30)
		if i == m.selected {
			b.WriteString("   " + cyan.Render("▸ ") + white.Render(label) + magenta.Render(row))
		} else {
			b.WriteString("     " + dim.Render(label) + dimmer.Render(row))
		}
		fmt.Fprintf(&b, " %s\n", white.Render(fmt.Sprintf("%10.3e", m.y[i])))
	}

	if h := m.history[m.selected]; len(h) > 1 {
		fmt.Fprintf(&b, "\n   %s %s\n", dim.Render(m.names[m.selected]), cyan.Render(sparkline(h, 40)))
	}

	switch {
	case m.err != nil:
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	case m.result != nil:
		st := m.result.Stats
		fmt.Fprintf(&b, "\n   %s %d  %s %d  %s %d  %s %s\n",
			dim.Render("steps"), st.Steps,
			dim.Render("rejected"), st.Rejected,
			dim.Render("rhs"), st.Evaluations,
			dim.Render("elapsed"), m.result.Elapsed.Round(time.Millisecond))
		if drift, ok := m.result.Metrics["atom_drift"]; ok {
			fmt.Fprintf(&b, "   %s %.3e\n", dim.Render("atom drift"), drift)
		}
	default:
		fmt.Fprintf(&b, "\n   %s\n", dim.Render(time.Since(m.started).Round(100*time.Millisecond).String()))
	}

	b.WriteString("\n" + dim.Render("   ↑↓ species  b back  q quit") + "\n")
	return b.String()
}

// sparkline plots log10 of data so decades of abundance stay visible.
func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	logs := make([]float64, len(data))
	for i, v := range data {
		logs[i] = floorLog
		if v > 0 {
			logs[i] = math.Max(math.Log10(v), floorLog)
		}
	}
	minVal, maxVal := logs[0], logs[0]
	for _, v := range logs {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}

	step := len(logs) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(logs); i++ {
		idx := int((logs[i*step] - minVal) / rang * 7)
		idx = max(0, min(idx, 7))
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}
