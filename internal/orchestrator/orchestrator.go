// Package orchestrator owns the single active run: it hands plans to the
// executor, answers the surface's cancel and dismiss requests, and records
// every run in the history database.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xerolinux/xero-toolkit/internal/executor"
	"github.com/xerolinux/xero-toolkit/internal/models"
	"github.com/xerolinux/xero-toolkit/internal/storage"
	"github.com/xerolinux/xero-toolkit/internal/workspace"
)

var (
	ErrAlreadyRunning = errors.New("an operation is already running")
	ErrNoSteps        = errors.New("plan has no steps")
	ErrRunNotRunning  = errors.New("run is not running")
)

const (
	// CancelledMarker is logged when the user cancels a run.
	CancelledMarker = "\n[Cancelled by user]\n"
	MsgInterrupted  = "Interrupted"
)

type Orchestrator struct {
	storage      *storage.Storage
	loop         executor.Dispatcher
	resolver     *executor.Resolver
	runner       executor.Runner
	workspaceDir string
	logger       *slog.Logger

	running atomic.Bool
	// active counts runs the executor has not finished yet. It can outlive
	// the running flag after a dismiss.
	active sync.WaitGroup

	// Loop-only state.
	current  *executor.Run
	sessions map[*executor.Run]*session
}

// session is the bookkeeping of one run, alive until the executor finishes it.
type session struct {
	record  *models.Run
	surface executor.ProgressSurface
	archive *workspace.LogSurface
	execs   map[int]*models.Execution
}

type Option func(*Orchestrator)

func WithRunner(r executor.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

func New(store *storage.Storage, loop executor.Dispatcher, resolver *executor.Resolver, workspaceDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage:      store,
		loop:         loop,
		resolver:     resolver,
		runner:       executor.ExecRunner{},
		workspaceDir: workspaceDir,
		logger:       slog.With("component", "orchestrator"),
		sessions:     make(map[*executor.Run]*session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsRunning reports whether a run holds the session. Safe from any goroutine.
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// Start records plan as a new run and queues its first step on the loop.
// onComplete is called on the loop exactly once, with the run's success.
func (o *Orchestrator) Start(plan *models.Plan, surface executor.ProgressSurface, onComplete func(success bool)) (*models.Run, error) {
	if len(plan.Steps) == 0 {
		return nil, ErrNoSteps
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	record := &models.Run{
		SessionID:  uuid.NewString(),
		PlanName:   plan.Name,
		Title:      plan.Title,
		Status:     models.RunStatusRunning,
		TotalSteps: len(plan.Steps),
	}
	runID, err := o.storage.CreateRun(record)
	if err != nil {
		o.running.Store(false)
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	record.ID = runID
	record.CreatedAt = time.Now()

	archive, err := o.openArchive(record, plan)
	if err != nil {
		// History without the log archive is still useful.
		o.logger.Warn("Failed to create run workspace.", "run", runID, "err", err)
	}

	surfaces := executor.MultiSurface{surface}
	if archive != nil {
		surfaces = append(surfaces, archive)
	}
	sess := &session{record: record, surface: surfaces, archive: archive, execs: make(map[int]*models.Execution)}

	run := executor.NewRun(record.SessionID, plan.Title, plan.Steps, func(success bool) {
		o.running.Store(false)
		if onComplete != nil {
			onComplete(success)
		}
	})
	run.HistoryID = runID

	exec := executor.New(o.loop, surfaces, o.resolver,
		executor.WithRunner(o.runner),
		executor.WithObserver(o),
		executor.WithLogger(o.logger.With("run", runID)),
	)

	o.logger.Info("Starting run.", "run", runID, "plan", plan.Name, "steps", len(plan.Steps))

	o.active.Add(1)
	o.loop.Post(func() {
		o.sessions[run] = sess
		o.current = run
		exec.Execute(run, 0)
	})

	return record, nil
}

func (o *Orchestrator) openArchive(record *models.Run, plan *models.Plan) (*workspace.LogSurface, error) {
	ws, err := workspace.Create(o.workspaceDir, record.ID)
	if err != nil {
		return nil, err
	}
	meta := &workspace.RunMetadata{
		RunID:     record.ID,
		SessionID: record.SessionID,
		PlanName:  plan.Name,
		Title:     plan.Title,
		Steps:     plan.Steps,
	}
	if err := ws.WriteRunMetadata(meta); err != nil {
		return nil, err
	}
	return ws.OpenLog()
}

// Cancel stops the active run: the live process is killed and no further
// step starts. Safe from any goroutine.
func (o *Orchestrator) Cancel() {
	o.loop.Post(func() {
		run := o.current
		sess := o.sessions[run]
		if run == nil || sess == nil || run.Cancelled() {
			return
		}
		o.logger.Info("Run cancelled by user.", "run", run.HistoryID)
		sess.surface.AppendLog(CancelledMarker, true)
		sess.surface.DisableCancel()
		run.Cancel()
	})
}

// Dismiss is for a surface closed mid-run: the run is cancelled, the session
// released and failure reported at once. Safe from any goroutine.
func (o *Orchestrator) Dismiss() {
	o.loop.Post(func() {
		run := o.current
		if run == nil {
			return
		}
		if !run.Completed() {
			o.logger.Info("Run dismissed.", "run", run.HistoryID)
		}
		run.Abandon()
		o.current = nil
		o.running.Store(false)
	})
}

// Wait blocks until every started run has been finished and recorded, or ctx
// is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepStarted implements executor.Observer.
func (o *Orchestrator) StepStarted(run *executor.Run, index int, program string, args []string, pid int) {
	sess := o.sessions[run]
	if sess == nil {
		return
	}

	now := time.Now()
	step := run.Steps[index]
	exec := &models.Execution{
		RunID:       sess.record.ID,
		StepIndex:   index,
		Name:        step.Name,
		CommandType: step.Type,
		Program:     program,
		Args:        args,
		Status:      models.TaskRunning,
		PID:         &pid,
		StartedAt:   &now,
	}
	id, err := o.storage.CreateExecution(exec)
	if err != nil {
		o.logger.Warn("Failed to record step.", "run", sess.record.ID, "step", index+1, "err", err)
		return
	}
	exec.ID = id
	sess.execs[index] = exec
}

// StepFinished implements executor.Observer.
func (o *Orchestrator) StepFinished(run *executor.Run, index int, status models.TaskStatus, exitCode *int) {
	sess := o.sessions[run]
	if sess == nil {
		return
	}

	now := time.Now()
	exec, ok := sess.execs[index]
	if !ok {
		// The step never spawned; record it with its unresolved command.
		step := run.Steps[index]
		exec = &models.Execution{
			RunID:       sess.record.ID,
			StepIndex:   index,
			Name:        step.Name,
			CommandType: step.Type,
			Program:     step.Command,
			Args:        step.Args,
			Status:      status,
			ExitCode:    exitCode,
			StartedAt:   &now,
			CompletedAt: &now,
		}
		if _, err := o.storage.CreateExecution(exec); err != nil {
			o.logger.Warn("Failed to record step.", "run", sess.record.ID, "step", index+1, "err", err)
		}
		return
	}

	exec.Status = status
	exec.ExitCode = exitCode
	exec.CompletedAt = &now
	if err := o.storage.UpdateExecution(exec); err != nil {
		o.logger.Warn("Failed to update step.", "run", sess.record.ID, "step", index+1, "err", err)
	}
}

// RunFinished implements executor.Observer.
func (o *Orchestrator) RunFinished(run *executor.Run, status models.RunStatus, message string) {
	sess := o.sessions[run]
	if sess == nil {
		return
	}
	delete(o.sessions, run)
	if o.current == run {
		o.current = nil
	}
	defer o.active.Done()

	now := time.Now()
	sess.record.Status = status
	sess.record.Message = message
	sess.record.CompletedAt = &now
	if err := o.storage.UpdateRun(sess.record); err != nil {
		o.logger.Warn("Failed to update run.", "run", sess.record.ID, "err", err)
	}

	if sess.archive != nil {
		if err := sess.archive.Close(); err != nil {
			o.logger.Warn("Failed to close output log.", "run", sess.record.ID, "err", err)
		}
	}
}

// Recover fails runs left "running" by an invocation that exited without
// finishing them. A run whose recorded process group is still alive belongs
// to another invocation and is left alone.
func (o *Orchestrator) Recover() (int, error) {
	runs, err := o.storage.ListRunsByStatus(models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running runs: %w", err)
	}

	recovered := 0
	for _, run := range runs {
		exec, err := o.storage.GetRunningExecutionForRun(run.ID)
		if err != nil {
			return recovered, fmt.Errorf("failed to get running execution: %w", err)
		}
		if exec != nil && exec.PID != nil && executor.GroupAlive(*exec.PID) {
			continue
		}

		now := time.Now()
		if exec != nil {
			exec.Status = models.TaskFailed
			exec.CompletedAt = &now
			if err := o.storage.UpdateExecution(exec); err != nil {
				return recovered, err
			}
		}
		run.Status = models.RunStatusFailed
		run.Message = MsgInterrupted
		run.CompletedAt = &now
		if err := o.storage.UpdateRun(run); err != nil {
			return recovered, err
		}
		o.logger.Info("Marked interrupted run.", "run", run.ID)
		recovered++
	}
	return recovered, nil
}

// Read methods for the CLI

func (o *Orchestrator) ListRuns(limit int) ([]*models.Run, error) {
	return o.storage.ListRuns(limit)
}

func (o *Orchestrator) GetRun(id int64) (*models.Run, error) {
	return o.storage.GetRun(id)
}

func (o *Orchestrator) GetExecutionsForRun(runID int64) ([]*models.Execution, error) {
	return o.storage.GetExecutionsForRun(runID)
}

func (o *Orchestrator) ReadLog(runID int64) (string, error) {
	ws, err := workspace.Open(o.workspaceDir, runID)
	if err != nil {
		return "", err
	}
	return ws.ReadLog()
}

// KillRun stops a run started by another invocation, through the process
// group recorded for its running step.
func (o *Orchestrator) KillRun(runID int64) error {
	run, err := o.storage.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run.Status != models.RunStatusRunning {
		return fmt.Errorf("%w: run #%d is %s", ErrRunNotRunning, runID, run.Status)
	}

	runningExec, err := o.storage.GetRunningExecutionForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get running execution: %w", err)
	}

	now := time.Now()
	if runningExec != nil && runningExec.PID != nil {
		if err := executor.KillGroup(*runningExec.PID); err != nil {
			return fmt.Errorf("failed to kill process %d: %w", *runningExec.PID, err)
		}

		runningExec.Status = models.TaskFailed
		runningExec.CompletedAt = &now
		if err := o.storage.UpdateExecution(runningExec); err != nil {
			return err
		}
	}

	run.Status = models.RunStatusCancelled
	run.Message = executor.MsgCancelled
	run.CompletedAt = &now
	return o.storage.UpdateRun(run)
}

func (o *Orchestrator) DeleteRun(runID int64) error {
	if _, err := o.storage.GetRun(runID); err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if ws, err := workspace.Open(o.workspaceDir, runID); err == nil {
		if err := ws.Remove(); err != nil {
			return fmt.Errorf("failed to remove workspace: %w", err)
		}
	}

	return o.storage.DeleteRun(runID)
}
