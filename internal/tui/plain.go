package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// PlainSurface prints the run log to a writer, for pipes and dumb terminals.
type PlainSurface struct {
	out      *termenv.Output
	statuses []models.TaskStatus
}

func NewPlainSurface(w io.Writer, plan *models.Plan, opts ...termenv.OutputOption) *PlainSurface {
	return &PlainSurface{
		out:      termenv.NewOutput(w, opts...),
		statuses: make([]models.TaskStatus, len(plan.Steps)),
	}
}

func (s *PlainSurface) SetProgress(current, total int) {}
func (s *PlainSurface) SetTitle(text string)           {}
func (s *PlainSurface) DisableCancel()                 {}

func (s *PlainSurface) AppendLog(text string, isError bool) {
	if isError {
		text = s.out.String(text).Foreground(s.out.Color("1")).String()
	}
	fmt.Fprint(s.out, text)
}

func (s *PlainSurface) UpdateStepStatus(index int, status models.TaskStatus) {
	if index >= 0 && index < len(s.statuses) {
		s.statuses[index] = status
	}
}

// ShowCompletion prints a step summary; the message itself is already in the
// log.
func (s *PlainSurface) ShowCompletion(success bool, message string) {
	succeeded := 0
	for _, st := range s.statuses {
		if st == models.TaskSuccess {
			succeeded++
		}
	}

	summary := fmt.Sprintf("%d of %d steps completed", succeeded, len(s.statuses))
	color := "2"
	if !success {
		color = "1"
	}
	fmt.Fprintln(s.out, s.out.String(summary).Foreground(s.out.Color(color)).Bold().String())
}
