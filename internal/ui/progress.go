// Package ui renders worker progress of a conversion run.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mirtrace/internal/pipeline"
)

// maxRows bounds the worker rows shown; the rest are summarized.
const maxRows = 16

type progressModel struct {
	title   string
	events  <-chan pipeline.Event
	spinner spinner.Model
	prog    progress.Model
	items   []workerItem
	failed  int
	width   int
	done    bool
}

type workerItem struct {
	label string
	state pipeline.State
	err   error
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one row per
// worker. It quits when events is closed.
func NewProgressModel(title string, workers []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]workerItem, len(workers))
	for i, label := range workers {
		items[i] = workerItem{label: label, state: pipeline.StatePending}
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(pipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d workers)", m.title, len(m.items))
	if m.failed > 0 {
		header = fmt.Sprintf("%s, %d failed", header, m.failed)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-4, 20)

	shown := 0
	for _, item := range m.rows() {
		status := string(item.state)
		line := fmt.Sprintf("  %s %s", styleState(item.state).Render(fmt.Sprintf("%12s", status)), truncate(rowText(item), nameWidth))
		b.WriteString(line)
		b.WriteString("\n")
		shown++
	}
	if hidden := len(m.items) - shown; hidden > 0 {
		fmt.Fprintf(&b, "  %12s %d more\n", "", hidden)
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

// rows picks the rows to display: failures and active workers first, then
// the remaining ones in id order.
func (m *progressModel) rows() []workerItem {
	if len(m.items) <= maxRows {
		return m.items
	}
	out := make([]workerItem, 0, maxRows)
	for _, pass := range []func(pipeline.State) bool{
		func(s pipeline.State) bool { return s == pipeline.StateFailed },
		func(s pipeline.State) bool { return !s.Done() && s != pipeline.StatePending },
		func(s pipeline.State) bool { return s == pipeline.StatePending || (s.Done() && s != pipeline.StateFailed) },
	} {
		for _, it := range m.items {
			if len(out) == maxRows {
				return out
			}
			if pass(it.state) {
				out = append(out, it)
			}
		}
	}
	return out
}

func rowText(item workerItem) string {
	if item.err != nil {
		return item.label + ": " + item.err.Error()
	}
	return item.label
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev pipeline.Event) tea.Cmd {
	if ev.Worker < 0 || ev.Worker >= len(m.items) {
		return nil
	}
	item := &m.items[ev.Worker]
	if item.state != pipeline.StateFailed && ev.State == pipeline.StateFailed {
		m.failed++
	}
	item.state = ev.State
	item.err = ev.Err

	total := 0.0
	for _, it := range m.items {
		total += progressFromState(it.state)
	}
	return m.prog.SetPercent(total / float64(len(m.items)))
}

func progressFromState(state pipeline.State) float64 {
	switch state {
	case pipeline.StateDecoding:
		return 0.1
	case pipeline.StateFlattening:
		return 0.5
	case pipeline.StateResolving:
		return 0.7
	case pipeline.StateWrittenLocal:
		return 0.9
	case pipeline.StateMerged, pipeline.StateFailed:
		return 1.0
	default:
		return 0.0
	}
}

func styleState(state pipeline.State) lipgloss.Style {
	switch state {
	case pipeline.StateWrittenLocal, pipeline.StateMerged:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case pipeline.StateFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case pipeline.StateDecoding, pipeline.StateFlattening, pipeline.StateResolving:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
