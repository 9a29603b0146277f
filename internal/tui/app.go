package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// History is the run history the browser reads and manages.
type History interface {
	ListRuns(limit int) ([]*models.Run, error)
	GetRun(id int64) (*models.Run, error)
	GetExecutionsForRun(runID int64) ([]*models.Execution, error)
	ReadLog(runID int64) (string, error)
	KillRun(runID int64) error
	DeleteRun(runID int64) error
}

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewOutput
)

// App browses past and running runs.
type App struct {
	history History

	view            View
	runs            []*models.Run
	selectedIdx     int
	selectedRun     *models.Run
	executions      []*models.Execution
	selectedExecIdx int
	output          viewport.Model

	width  int
	height int
	err    error
}

func NewApp(history History) *App {
	return &App{
		history: history,
		view:    ViewRunList,
		output:  viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadRuns, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningRuns() bool {
	for _, run := range a.runs {
		if run.Status == models.RunStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.output.Width = msg.Width
		a.output.Height = max(5, msg.Height-4)
		return a, nil

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		if a.selectedIdx >= len(a.runs) {
			a.selectedIdx = max(0, len(a.runs)-1)
		}
		return a, nil

	case tickMsg:
		// Only refresh while something is running
		if a.view == ViewRunList && a.hasRunningRuns() {
			return a, tea.Batch(a.loadRuns, a.tickCmd())
		}
		if a.view == ViewRunDetail && a.selectedRun != nil && a.selectedRun.Status == models.RunStatusRunning {
			return a, tea.Batch(a.loadRunDetail(a.selectedRun.ID), a.tickCmd())
		}
		return a, a.tickCmd()

	case runDetailMsg:
		a.err = msg.err
		if msg.err == nil {
			a.selectedRun = msg.run
			a.executions = msg.executions
			if a.view == ViewRunList {
				a.view = ViewRunDetail
			}
		}
		return a, nil

	case runKilledMsg:
		a.err = msg.err
		return a, a.loadRuns

	case runDeletedMsg:
		a.err = msg.err
		return a, a.loadRuns

	case outputLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
		} else {
			content := msg.content
			if content == "" {
				content = "(no output)"
			}
			a.output.SetContent(content)
			a.output.GotoBottom()
			a.view = ViewOutput
		}
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	case ViewOutput:
		return a.handleOutputKey(msg)
	}
	return a, nil
}

func (a *App) selected() *models.Run {
	if len(a.runs) == 0 || a.selectedIdx >= len(a.runs) {
		return nil
	}
	return a.runs[a.selectedIdx]
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case "enter":
		if run := a.selected(); run != nil {
			return a, a.loadRunDetail(run.ID)
		}

	case "o":
		if run := a.selected(); run != nil {
			return a, a.loadOutput(run.ID)
		}

	case "r":
		return a, a.loadRuns

	case "x":
		if run := a.selected(); run != nil {
			return a, a.killRun(run.ID)
		}

	case "d":
		if run := a.selected(); run != nil {
			return a, a.deleteRun(run.ID)
		}
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunList
		a.selectedRun = nil
		a.executions = nil
		a.selectedExecIdx = 0
		return a, a.loadRuns

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedExecIdx > 0 {
			a.selectedExecIdx--
		}

	case "down", "j":
		if a.selectedExecIdx < len(a.executions)-1 {
			a.selectedExecIdx++
		}

	case "o", "enter":
		if a.selectedRun != nil {
			return a, a.loadOutput(a.selectedRun.ID)
		}
	}

	return a, nil
}

func (a *App) handleOutputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		if a.selectedRun != nil {
			a.view = ViewRunDetail
		} else {
			a.view = ViewRunList
		}
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.output, cmd = a.output.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewRunDetail:
		return a.viewRunDetail()
	case ViewOutput:
		return a.viewOutput()
	}
	return ""
}

func (a *App) viewRunList() string {
	s := titleStyle.Render("XeroLinux Toolkit") + "\n\n"

	if a.err != nil {
		s += statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Start one with 'xero-toolkit run <plan>'.\n"
	} else {
		s += "Recent Runs\n"
		s += "───────────\n"

		for i, run := range a.runs {
			line := FormatRunLine(run)
			switch {
			case i == a.selectedIdx:
				line = selectedStyle.Render("▶ " + line)
			case run.Status != models.RunStatusRunning:
				line = "  " + dimStyle.Render(line)
			default:
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [o] output  [x] kill  [d] delete  [r] refresh  [q] quit")

	return s
}

// FormatRunLine renders one run for lists.
func FormatRunLine(run *models.Run) string {
	status := FormatStatus(run.Status)
	age := formatAge(run.CreatedAt)
	return fmt.Sprintf("#%-3d %-14s %s  %-4s  %s", run.ID, truncate(run.PlanName, 14), status, age, truncate(run.Title, 35))
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

func (a *App) viewRunDetail() string {
	if a.selectedRun == nil {
		return "No run selected"
	}

	run := a.selectedRun
	header := fmt.Sprintf("Run #%d: %s", run.ID, run.Title)
	s := titleStyle.Render(header) + "  " + FormatStatus(run.Status) + "\n\n"

	s += labelStyle.Render("Plan: ") + run.PlanName + "\n"
	s += labelStyle.Render("Session: ") + dimStyle.Render(run.SessionID) + "\n"
	if run.Message != "" {
		s += labelStyle.Render("Result: ") + run.Message + "\n"
	}
	s += "\n"

	s += fmt.Sprintf("Steps (%d of %d started)\n", len(a.executions), run.TotalSteps)
	s += "─────\n"

	if len(a.executions) == 0 {
		s += "(no steps started)\n"
	}
	for i, exec := range a.executions {
		line := FormatExecutionLine(exec)
		if i == a.selectedExecIdx {
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [o] output  [esc] back")

	return s
}

// FormatExecutionLine renders one step record: "1. Installing...  ✓  exit:0  3s".
func FormatExecutionLine(exec *models.Execution) string {
	line := fmt.Sprintf("%d. %s %s", exec.StepIndex+1, StepIcon(exec.Status), exec.Name)

	if exec.ExitCode != nil {
		if *exec.ExitCode == 0 {
			line += "  " + dimStyle.Render("exit:0")
		} else {
			line += "  " + statusFailed.Render(fmt.Sprintf("exit:%d", *exec.ExitCode))
		}
	}

	if exec.StartedAt != nil && exec.CompletedAt != nil {
		line += "  " + dimStyle.Render(formatDuration(exec.CompletedAt.Sub(*exec.StartedAt)))
	} else if exec.StartedAt != nil && exec.Status == models.TaskRunning {
		line += "  " + statusRunning.Render(formatDuration(time.Since(*exec.StartedAt))+"...")
	}

	if exec.Program != "" {
		line += "  " + dimStyle.Render(truncate(strings.Join(append([]string{exec.Program}, exec.Args...), " "), 50))
	}
	return line
}

func (a *App) viewOutput() string {
	title := "Output"
	if a.selectedRun != nil {
		title = fmt.Sprintf("Output of run #%d", a.selectedRun.ID)
	} else if run := a.selected(); run != nil {
		title = fmt.Sprintf("Output of run #%d", run.ID)
	}

	s := titleStyle.Render(title) + "\n\n"
	s += a.output.View() + "\n"
	s += "\n" + helpStyle.Render("[↑/↓] scroll  [esc] back")

	return s
}

// Messages

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runDetailMsg struct {
	run        *models.Run
	executions []*models.Execution
	err        error
}

type runKilledMsg struct {
	runID int64
	err   error
}

type runDeletedMsg struct {
	runID int64
	err   error
}

type outputLoadedMsg struct {
	content string
	err     error
}

// Commands

func (a *App) loadRuns() tea.Msg {
	runs, err := a.history.ListRuns(20)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) loadRunDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		run, err := a.history.GetRun(id)
		if err != nil {
			return runDetailMsg{err: err}
		}

		execs, err := a.history.GetExecutionsForRun(id)
		return runDetailMsg{run: run, executions: execs, err: err}
	}
}

func (a *App) killRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.history.KillRun(id); err != nil {
			return runKilledMsg{err: err}
		}
		return runKilledMsg{runID: id}
	}
}

func (a *App) deleteRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.history.DeleteRun(id); err != nil {
			return runDeletedMsg{err: err}
		}
		return runDeletedMsg{runID: id}
	}
}

func (a *App) loadOutput(id int64) tea.Cmd {
	return func() tea.Msg {
		content, err := a.history.ReadLog(id)
		return outputLoadedMsg{content: content, err: err}
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
