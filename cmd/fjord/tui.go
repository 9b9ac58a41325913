package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fjordsim/fjord/bridge"
	"github.com/fjordsim/fjord/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2B6CB0")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type watchState int

const (
	stateLoading watchState = iota
	stateRunning
	stateEval
)

// meshShape is the static geometry reported once after setup.
type meshShape struct {
	ndims     int32
	nelements int32
	ndofs     int32
	nvars     int32
}

type watchModel struct {
	cmd    *cobra.Command
	config string

	b      *bridge.Bridge
	handle registry.Handle
	shape  meshShape

	state    watchState
	spin     spinner.Model
	evalIn   textinput.Model
	evalNote string

	time     float64
	dt       float64
	steps    int
	finished bool
	auto     bool

	err error
}

func newWatchModel(cmd *cobra.Command, config string) *watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Prompt = "eval> "
	ti.Width = 60

	return &watchModel{cmd: cmd, config: config, spin: sp, evalIn: ti}
}

type readyMsg struct {
	err    error
	b      *bridge.Bridge
	handle registry.Handle
	shape  meshShape
	time   float64
	dt     float64
}

type steppedMsg struct {
	err      error
	time     float64
	dt       float64
	finished bool
}

type evaluatedMsg struct {
	err error
}

type autoTickMsg struct{}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.setup)
}

func (m *watchModel) setup() tea.Msg {
	ctx := context.Background()

	b, _, err := openBridge(m.cmd)
	if err != nil {
		return readyMsg{err: err}
	}

	h, err := b.CreateSimulation(ctx, m.config)
	if err != nil {
		b.Finalize(ctx)
		return readyMsg{err: err}
	}

	var shape meshShape
	for _, q := range []struct {
		dst *int32
		fn  func(context.Context, registry.Handle) (int32, error)
	}{
		{&shape.ndims, b.NDims},
		{&shape.nelements, b.NElements},
		{&shape.ndofs, b.NDofs},
		{&shape.nvars, b.NVariables},
	} {
		v, err := q.fn(ctx, h)
		if err != nil {
			b.Finalize(ctx)
			return readyMsg{err: err}
		}
		*q.dst = v
	}

	tm, err := b.Time(ctx, h)
	if err != nil {
		b.Finalize(ctx)
		return readyMsg{err: err}
	}
	dt, err := b.CalculateDT(ctx, h)
	if err != nil {
		b.Finalize(ctx)
		return readyMsg{err: err}
	}

	return readyMsg{b: b, handle: h, shape: shape, time: tm, dt: dt}
}

func (m *watchModel) step() tea.Msg {
	ctx := context.Background()

	if err := m.b.Step(ctx, m.handle); err != nil {
		return steppedMsg{err: err}
	}
	tm, err := m.b.Time(ctx, m.handle)
	if err != nil {
		return steppedMsg{err: err}
	}
	done, err := m.b.IsFinished(ctx, m.handle)
	if err != nil {
		return steppedMsg{err: err}
	}

	msg := steppedMsg{time: tm, finished: done}
	if !done {
		if msg.dt, err = m.b.CalculateDT(ctx, m.handle); err != nil {
			return steppedMsg{err: err}
		}
	}
	return msg
}

func (m *watchModel) evaluate() tea.Msg {
	return evaluatedMsg{err: m.b.Eval(context.Background(), m.evalIn.Value())}
}

func autoTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return autoTickMsg{}
	})
}

func (m *watchModel) shutdown() {
	if m.b == nil {
		return
	}
	ctx := context.Background()
	if m.handle != 0 {
		m.b.ReleaseSimulation(ctx, m.handle)
	}
	m.b.Finalize(ctx)
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEval {
			switch msg.String() {
			case "enter":
				m.state = stateRunning
				return m, m.evaluate
			case "esc":
				m.state = stateRunning
				return m, nil
			}
			var cmd tea.Cmd
			m.evalIn, cmd = m.evalIn.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.shutdown()
			return m, tea.Quit

		case "s":
			if m.state == stateRunning && !m.finished && !m.auto {
				return m, m.step
			}

		case "r":
			if m.state == stateRunning && !m.finished {
				m.auto = !m.auto
				if m.auto {
					return m, m.step
				}
			}

		case "e":
			if m.state == stateRunning && m.b != nil {
				m.state = stateEval
				m.evalIn.SetValue("")
				m.evalIn.Focus()
				m.evalNote = ""
				return m, textinput.Blink
			}
		}

	case readyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.b = msg.b
		m.handle = msg.handle
		m.shape = msg.shape
		m.time = msg.time
		m.dt = msg.dt
		m.state = stateRunning

	case steppedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.auto = false
			return m, nil
		}
		m.steps++
		m.time = msg.time
		m.dt = msg.dt
		m.finished = msg.finished
		if m.auto && !m.finished {
			return m, autoTick()
		}
		m.auto = m.auto && !m.finished

	case autoTickMsg:
		if m.auto && !m.finished {
			return m, m.step
		}

	case evaluatedMsg:
		if msg.err != nil {
			m.evalNote = errorStyle.Render(fmt.Sprintf("eval: %v", msg.err))
		} else {
			m.evalNote = valueStyle.Render("eval ok")
		}

	case spinner.TickMsg:
		if m.state == stateLoading {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("fjord watch"))
	b.WriteString(" ")
	b.WriteString(m.config)
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	if m.state == stateLoading {
		b.WriteString(m.spin.View())
		b.WriteString(" booting engine and setting up simulation...")
		return b.String()
	}

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteByte('\n')
	}
	row("mesh", fmt.Sprintf("%dD, %d elements, %d dofs, %d variables",
		m.shape.ndims, m.shape.nelements, m.shape.ndofs, m.shape.nvars))
	row("steps", fmt.Sprintf("%d", m.steps))
	row("time", fmt.Sprintf("%.6f", m.time))
	if !m.finished {
		row("next dt", fmt.Sprintf("%.6f", m.dt))
	}

	b.WriteByte('\n')
	switch {
	case m.finished:
		b.WriteString(doneStyle.Render("simulation finished"))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
	case m.state == stateEval:
		b.WriteString(m.evalIn.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter evaluate • esc back"))
	case m.auto:
		b.WriteString(helpStyle.Render("r pause • q quit"))
	default:
		b.WriteString(helpStyle.Render("s step • r run • e eval • q quit"))
	}

	if m.evalNote != "" {
		b.WriteByte('\n')
		b.WriteString(m.evalNote)
	}

	return b.String()
}
