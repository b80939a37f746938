// Package tui renders live sweep progress in the terminal using
// Charmbracelet's Bubble Tea and Bubbles.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hegelab/hegel/pkg/daemon"
)

// ProgressMsg carries a job progress update.
type ProgressMsg daemon.ProgressEvent

// DoneMsg ends the TUI when the job reaches a terminal state.
type DoneMsg struct {
	State string
	Err   string
}

// Model shows one running sweep: a progress bar, the current value and
// timing, and an abort hook bound to q / ctrl-c.
type Model struct {
	jobID    string
	device   string
	filename string

	events <-chan daemon.ProgressEvent
	abort  func()

	bar      progress.Model
	spin     spinner.Model
	prog     daemon.ProgressEvent
	started  time.Time
	aborting bool
	done     bool
	final    DoneMsg
	width    int
}

// New builds a model for one job. abort is called when the user asks
// to stop; the model keeps running until a terminal event arrives.
func New(jobID, device, filename string, events <-chan daemon.ProgressEvent, abort func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		jobID:    jobID,
		device:   device,
		filename: filename,
		events:   events,
		abort:    abort,
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     s,
		started:  time.Now(),
		width:    80,
	}
}

func (m Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return DoneMsg{State: daemon.StateFailed, Err: "event stream closed"}
		}
		if ev.State != daemon.StateRunning {
			return DoneMsg{State: ev.State}
		}
		return ProgressMsg(ev)
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitEvent())
}

// Update handles key presses and progress updates.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.aborting && m.abort != nil {
				m.aborting = true
				m.abort()
			}
			return m, nil
		}
		return m, nil

	case ProgressMsg:
		if msg.JobID == m.jobID || m.jobID == "" {
			m.prog = daemon.ProgressEvent(msg)
		}
		return m, m.waitEvent()

	case DoneMsg:
		m.done = true
		m.final = msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the sweep status.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  Sweeping %s", m.device)))
	b.WriteString("\n\n")

	p := m.prog.Progress
	frac := 0.0
	if p.PointsTotal > 0 {
		frac = float64(p.PointsDone) / float64(p.PointsTotal)
	}
	b.WriteString("  " + m.bar.ViewAs(frac) + "\n\n")

	if m.done {
		switch m.final.State {
		case daemon.StateDone:
			b.WriteString(successStyle.Render("  Sweep complete"))
		case daemon.StateAborted:
			b.WriteString(warningStyle.Render("  Sweep aborted"))
		default:
			b.WriteString(errorStyle.Render(fmt.Sprintf("  Sweep failed: %s", m.final.Err)))
		}
	} else if m.aborting {
		b.WriteString(warningStyle.Render(fmt.Sprintf("  %s Aborting...", m.spin.View())))
	} else {
		b.WriteString(fmt.Sprintf("  %s Point %d/%d  value %g",
			m.spin.View(), p.PointsDone, p.PointsTotal, p.CurrentValue))
	}
	b.WriteString("\n\n")

	b.WriteString(mutedStyle.Render(fmt.Sprintf("  file: %s", m.filename)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  elapsed: %s", time.Since(m.started).Round(time.Second))))
	b.WriteString("\n\n")
	if !m.done {
		b.WriteString(mutedStyle.Render("  q abort"))
		b.WriteString("\n")
	}
	return b.String()
}

// Final reports how the job ended once the program has exited.
func (m Model) Final() DoneMsg { return m.final }

// Run drives the model to completion and returns the terminal state.
func Run(m Model) (DoneMsg, error) {
	p := tea.NewProgram(m)
	out, err := p.Run()
	if err != nil {
		return DoneMsg{}, err
	}
	final, ok := out.(Model)
	if !ok {
		return DoneMsg{}, fmt.Errorf("unexpected model type %T", out)
	}
	return final.Final(), nil
}
