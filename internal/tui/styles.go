package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusCancelled = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	errorLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// StepIcon renders the per-step indicator.
func StepIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskRunning:
		return statusRunning.Render("●")
	case models.TaskSuccess:
		return statusComplete.Render("✓")
	case models.TaskFailed:
		return statusFailed.Render("✗")
	default:
		return statusPending.Render("○")
	}
}

// FormatStatus renders a run status badge.
func FormatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return statusRunning.Render("● running")
	case models.RunStatusComplete:
		return statusComplete.Render("✓ complete")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed")
	case models.RunStatusCancelled:
		return statusCancelled.Render("⊘ cancelled")
	default:
		return statusPending.Render(string(status))
	}
}
