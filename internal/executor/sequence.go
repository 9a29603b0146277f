// Package executor runs a sequence of command steps one at a time as child
// processes, streaming their output to a progress surface.
//
// All run state lives on a single loop goroutine (see Dispatcher). Stream
// readers and process waiters run on their own goroutines and only post
// results back to the loop, so the state machine needs no locks.
package executor

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// Messages shown when a run ends.
const (
	MsgCompleted     = "All operations completed successfully!"
	MsgCancelled     = "Operation cancelled"
	MsgPrepareFailed = "Failed to prepare command"
	MsgStartFailed   = "Failed to start operation"
)

type Executor struct {
	loop     Dispatcher
	surface  ProgressSurface
	resolver *Resolver
	runner   Runner
	observer Observer
	logger   *slog.Logger
}

type Option func(*Executor)

func WithRunner(r Runner) Option {
	return func(e *Executor) { e.runner = r }
}

func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func New(loop Dispatcher, surface ProgressSurface, resolver *Resolver, opts ...Option) *Executor {
	e := &Executor{
		loop:     loop,
		surface:  surface,
		resolver: resolver,
		runner:   ExecRunner{},
		logger:   slog.With("component", "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches step index of run. It returns as soon as the step's
// process is started; the following step is scheduled from the step's
// finalize transition. Must be called on the loop.
func (e *Executor) Execute(run *Run, index int) {
	if run.Cancelled() {
		e.finish(run, models.RunStatusCancelled, MsgCancelled)
		return
	}

	total := len(run.Steps)
	if index >= total {
		e.finish(run, models.RunStatusComplete, MsgCompleted)
		return
	}
	run.status = models.RunStatusRunning

	step := run.Steps[index]
	e.surface.SetProgress(index+1, total)
	e.surface.SetTitle(step.Name)
	e.appendOutput(fmt.Sprintf("\n=== Step %d/%d: %s ===\n", index+1, total, step.Name), false)
	e.surface.UpdateStepStatus(index, models.TaskRunning)

	program, args, err := e.resolver.Resolve(step)
	if err != nil {
		e.appendOutput(fmt.Sprintf("✗ %v\n", err), true)
		e.setStepStatus(run, index, models.TaskFailed, nil)
		e.finish(run, models.RunStatusFailed, MsgPrepareFailed)
		return
	}

	e.logger.Info("Executing command.", "session", run.ID, "step", index+1, "program", program, "args", args)

	proc, err := e.runner.Spawn(program, args, SpawnOptions{CaptureStdout: true, CaptureStderr: true})
	if err != nil {
		e.appendOutput(fmt.Sprintf("✗ Failed to start command: %v\n", err), true)
		e.setStepStatus(run, index, models.TaskFailed, nil)
		e.finish(run, models.RunStatusFailed, MsgStartFailed)
		return
	}
	run.process = proc

	if e.observer != nil {
		e.observer.StepStarted(run, index, program, args, proc.Pid())
	}

	sc := newStepContext(e, run, index)
	e.attachStream(sc, StreamStdout, proc.Stdout())
	e.attachStream(sc, StreamStderr, proc.Stderr())
	e.attachWaiter(sc, proc)
}

func (e *Executor) attachStream(sc *stepContext, stream Stream, r io.Reader) {
	if r == nil {
		sc.markStreamDone(stream)
		return
	}
	streamLines(e.loop, stream, r,
		func(line string) {
			e.appendOutput(line+"\n", stream.IsError())
		},
		func(err error) {
			if err != nil {
				e.logger.Warn("Failed to read command output.", "session", sc.run.ID, "err", err)
				e.appendOutput(fmt.Sprintf("✗ Failed to read command output: %v\n", err), true)
			}
			sc.markStreamDone(stream)
		})
}

func (e *Executor) attachWaiter(sc *stepContext, proc Process) {
	go func() {
		outcome, err := proc.Wait()
		e.loop.Post(func() {
			if err != nil {
				e.logger.Warn("Failed to wait for command.", "session", sc.run.ID, "err", err)
				e.appendOutput(fmt.Sprintf("✗ Failed to wait for command: %v\n", err), true)
				sc.setExitResult(models.ResultFailure(nil))
				return
			}
			if outcome.Success {
				sc.setExitResult(models.ResultSuccess())
			} else {
				sc.setExitResult(models.ResultFailure(outcome.Code))
			}
		})
	}()
}

func (e *Executor) appendOutput(text string, isError bool) {
	e.surface.AppendLog(text, isError)
}

func (e *Executor) setStepStatus(run *Run, index int, status models.TaskStatus, exitCode *int) {
	e.surface.UpdateStepStatus(index, status)
	if e.observer != nil {
		e.observer.StepFinished(run, index, status, exitCode)
	}
}

// finish closes out the whole run: completion message, matching log line,
// then the completion callback.
func (e *Executor) finish(run *Run, status models.RunStatus, message string) {
	run.status = status
	success := status == models.RunStatusComplete

	e.surface.ShowCompletion(success, message)
	if success {
		e.appendOutput(fmt.Sprintf("\n✓ %s\n", message), false)
	} else {
		e.appendOutput(fmt.Sprintf("\n✗ %s\n", message), true)
	}

	e.logger.Info("Run finished.", "session", run.ID, "status", status, "message", message)
	if e.observer != nil {
		e.observer.RunFinished(run, status, message)
	}
	run.complete(success)
}
