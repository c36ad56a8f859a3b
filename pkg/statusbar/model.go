package statusbar

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	ColorText  = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorMuted = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	ColorBg    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorInfo  = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}

	leftStyle  = lipgloss.NewStyle().Foreground(ColorText).Background(ColorBg).Padding(0, 1)
	rightStyle = lipgloss.NewStyle().Foreground(ColorInfo).Background(ColorBg).Bold(true).Padding(0, 1)
	fillStyle  = lipgloss.NewStyle().Background(ColorBg)
	busyStyle  = lipgloss.NewStyle().Foreground(ColorMuted).Background(ColorBg)
)

const barWidth = 20

// StateMsg carries a collector snapshot into the bubbletea program.
type StateMsg State

// Model renders a State on one line.
type Model struct {
	state   State
	width   int
	bar     progress.Model
	spinner spinner.Model
}

// NewModel returns a model showing s.
func NewModel(s State) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle
	return Model{
		state:   s,
		width:   80,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
		spinner: sp,
	}
}

// Forward sends every collector change to p.
func Forward(c *Collector, p *tea.Program) {
	c.Changed.Connect(func(s State) { p.Send(StateMsg(s)) })
}

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case StateMsg:
		m.state = State(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

// State returns the state being shown.
func (m Model) State() State { return m.state }

func (m Model) View() string {
	right := ""
	if m.state.Right != "" {
		right = rightStyle.Render(truncate(m.state.Right, m.width/3))
	}
	middle := ""
	switch {
	case m.state.Progress == -1:
		middle = busyStyle.Render(" " + m.spinner.View() + " ")
	case m.state.Progress >= 0:
		middle = busyStyle.Render(" ") + m.bar.ViewAs(float64(m.state.Progress)/100) + busyStyle.Render(" ")
	}
	room := m.width - lipgloss.Width(right) - lipgloss.Width(middle) - 2
	left := leftStyle.Render(truncate(m.state.Left, room))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(middle) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, fillStyle.Width(gap).Render(""), middle, right)
}

// truncate shortens s to max cells, ending with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "…")
}
