package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// Controller receives the dialog's cancel and dismiss requests.
type Controller interface {
	Cancel()
	Dismiss()
}

type keyMap struct {
	Cancel key.Binding
	Toggle key.Binding
	Close  key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	k := keyMap{
		Cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		Toggle: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle output")),
		Close:  key.NewBinding(key.WithKeys("q", "enter", "esc"), key.WithHelp("q", "close")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "dismiss")),
	}
	k.Close.SetEnabled(false)
	return k
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel, k.Toggle, k.Close, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type logSegment struct {
	text    string
	isError bool
}

// Progress is the progress dialog of one run. It implements
// executor.ProgressSurface; the surface methods are only called from
// Update, through the loop bridge in RunProgram.
type Progress struct {
	title      string
	steps      []models.CommandStep
	statuses   []models.TaskStatus
	controller Controller

	current   int
	total     int
	stepTitle string

	segments []logSegment
	logLimit int
	expanded bool

	cancelDisabled bool
	done           bool
	success        bool
	message        string
	dismissed      bool

	bar      progress.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width, height int
}

func NewProgress(plan *models.Plan, controller Controller) *Progress {
	statuses := make([]models.TaskStatus, len(plan.Steps))
	for i := range statuses {
		statuses[i] = models.TaskPending
	}

	return &Progress{
		title:      plan.Title,
		steps:      plan.Steps,
		statuses:   statuses,
		controller: controller,
		total:      len(plan.Steps),
		logLimit:   2000,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		viewport:   viewport.New(80, 12),
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(statusRunning)),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Done reports whether the run finished, and how.
func (m *Progress) Done() (finished, success bool) {
	return m.done, m.success
}

// Dismissed reports whether the dialog was closed before the run finished.
func (m *Progress) Dismissed() bool {
	return m.dismissed
}

// Surface methods

func (m *Progress) SetProgress(current, total int) {
	m.current = current
	m.total = total
}

func (m *Progress) SetTitle(text string) {
	m.stepTitle = text
}

func (m *Progress) AppendLog(text string, isError bool) {
	m.segments = append(m.segments, logSegment{text: text, isError: isError})
	if len(m.segments) > m.logLimit {
		m.segments = m.segments[len(m.segments)-m.logLimit:]
	}
	m.syncViewport()
}

func (m *Progress) UpdateStepStatus(index int, status models.TaskStatus) {
	if index >= 0 && index < len(m.statuses) {
		m.statuses[index] = status
	}
}

func (m *Progress) ShowCompletion(success bool, message string) {
	m.done = true
	m.success = success
	m.message = message
	if !success {
		m.expanded = true
	}
	m.keys.Cancel.SetEnabled(false)
	m.keys.Close.SetEnabled(true)
	m.syncViewport()
}

func (m *Progress) DisableCancel() {
	m.cancelDisabled = true
	m.keys.Cancel.SetEnabled(false)
}

func (m *Progress) syncViewport() {
	var b strings.Builder
	for _, seg := range m.segments {
		if seg.isError {
			b.WriteString(renderErrorText(seg.text))
		} else {
			b.WriteString(seg.text)
		}
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(b.String())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// renderErrorText styles each line on its own so newlines stay outside the
// escape sequences.
func renderErrorText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = errorLineStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Model

func (m *Progress) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dispatchMsg:
		msg.fn()
		close(msg.ran)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, msg.Width-4)
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(5, msg.Height-len(m.steps)-12)
		m.syncViewport()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Progress) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if !m.done {
			m.dismissed = true
			if m.controller != nil {
				m.controller.Dismiss()
			}
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Close):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if !m.cancelDisabled && m.controller != nil {
			m.controller.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		m.expanded = !m.expanded
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Progress) View() string {
	s := titleStyle.Render(m.title) + "\n\n"

	switch {
	case m.done && m.success:
		s += statusComplete.Render("✓ "+m.message) + "\n"
	case m.done:
		s += statusFailed.Render("✗ "+m.message) + "\n"
	case m.current > 0:
		s += fmt.Sprintf("%s Step %d of %d: %s\n", m.spinner.View(), m.current, m.total, m.stepTitle)
	default:
		s += m.spinner.View() + " Preparing...\n"
	}

	s += m.bar.ViewAs(m.fraction()) + "\n\n"

	for i, step := range m.steps {
		line := fmt.Sprintf("%s %s", StepIcon(m.statuses[i]), step.Name)
		if m.statuses[i] == models.TaskPending {
			line = StepIcon(m.statuses[i]) + " " + dimStyle.Render(step.Name)
		}
		s += "  " + line + "\n"
	}

	if m.expanded {
		s += "\n" + logBoxStyle.Render(m.viewport.View()) + "\n"
	} else {
		s += "\n" + labelStyle.Render("Output hidden") + "\n"
	}

	s += "\n" + helpStyle.Render(m.help.View(m.keys))
	return s
}

func (m *Progress) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	if m.done && m.success {
		return 1
	}
	// Steps before the current one are finished.
	return float64(max(m.current-1, 0)) / float64(m.total)
}
