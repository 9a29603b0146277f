package executor

import (
	"sync/atomic"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// Run is the shared state of one execution of a step sequence: the plan, the
// cancellation token and the slot holding the live process.
//
// Everything except Cancelled must be used from the loop goroutine.
type Run struct {
	ID    string
	Title string
	Steps []models.CommandStep
	// HistoryID links the run to its storage record, zero when not recorded.
	HistoryID int64

	cancelled  atomic.Bool
	process    Process
	onComplete func(success bool)
	completed  bool
	status     models.RunStatus
}

func NewRun(id, title string, steps []models.CommandStep, onComplete func(success bool)) *Run {
	return &Run{
		ID:         id,
		Title:      title,
		Steps:      steps,
		onComplete: onComplete,
		status:     models.RunStatusPending,
	}
}

// Cancel sets the cancellation token and asks the live process, if any, to
// die. The run settles as cancelled once that process has fully exited.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
	if r.process != nil {
		_ = r.process.ForceTerminate()
	}
}

func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Process returns the live process, nil between steps.
func (r *Run) Process() Process {
	return r.process
}

// Abandon cancels the run and reports failure right away, for surfaces that
// are closed mid-run. Later completion does not call back again.
func (r *Run) Abandon() {
	r.Cancel()
	r.complete(false)
}

// Completed reports whether the completion callback has fired.
func (r *Run) Completed() bool {
	return r.completed
}

// Status is the terminal status once the executor finished the run.
func (r *Run) Status() models.RunStatus {
	return r.status
}

func (r *Run) complete(success bool) {
	if r.completed {
		return
	}
	r.completed = true
	if r.onComplete != nil {
		r.onComplete(success)
	}
}
