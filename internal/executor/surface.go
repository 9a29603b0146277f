package executor

import "github.com/xerolinux/xero-toolkit/internal/models"

// ProgressSurface is the UI the executor reports into. All methods are called
// on the loop goroutine.
type ProgressSurface interface {
	SetProgress(current, total int)
	SetTitle(text string)
	AppendLog(text string, isError bool)
	UpdateStepStatus(index int, status models.TaskStatus)
	ShowCompletion(success bool, message string)
	DisableCancel()
}

// Observer receives step and run transitions, for history keeping.
type Observer interface {
	StepStarted(run *Run, index int, program string, args []string, pid int)
	StepFinished(run *Run, index int, status models.TaskStatus, exitCode *int)
	RunFinished(run *Run, status models.RunStatus, message string)
}

// MultiSurface fans surface calls out to several surfaces.
type MultiSurface []ProgressSurface

func (m MultiSurface) SetProgress(current, total int) {
	for _, s := range m {
		s.SetProgress(current, total)
	}
}

func (m MultiSurface) SetTitle(text string) {
	for _, s := range m {
		s.SetTitle(text)
	}
}

func (m MultiSurface) AppendLog(text string, isError bool) {
	for _, s := range m {
		s.AppendLog(text, isError)
	}
}

func (m MultiSurface) UpdateStepStatus(index int, status models.TaskStatus) {
	for _, s := range m {
		s.UpdateStepStatus(index, status)
	}
}

func (m MultiSurface) ShowCompletion(success bool, message string) {
	for _, s := range m {
		s.ShowCompletion(success, message)
	}
}

func (m MultiSurface) DisableCancel() {
	for _, s := range m {
		s.DisableCancel()
	}
}
