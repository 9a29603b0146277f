package executor

import (
	"fmt"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// stepContext collects the three asynchronous signals of one step (stdout
// done, stderr done, exit status) and finalizes the step once all of them
// have arrived, in whatever order.
type stepContext struct {
	exec  *Executor
	run   *Run
	index int

	stdoutDone bool
	stderrDone bool
	exit       *models.CommandResult
	finalized  bool
}

func newStepContext(e *Executor, run *Run, index int) *stepContext {
	return &stepContext{exec: e, run: run, index: index}
}

func (c *stepContext) markStreamDone(stream Stream) {
	if stream == StreamStderr {
		c.stderrDone = true
	} else {
		c.stdoutDone = true
	}
	c.tryFinalize()
}

// setExitResult keeps the first result; duplicates are ignored.
func (c *stepContext) setExitResult(result models.CommandResult) {
	if c.finalized || c.exit != nil {
		return
	}
	c.exit = &result
	c.tryFinalize()
}

func (c *stepContext) tryFinalize() {
	if c.finalized || !c.stdoutDone || !c.stderrDone || c.exit == nil {
		return
	}
	c.finalized = true
	result := *c.exit

	c.run.process = nil

	e := c.exec
	if c.run.Cancelled() {
		e.setStepStatus(c.run, c.index, models.TaskFailed, result.ExitCode)
		e.finish(c.run, models.RunStatusCancelled, MsgCancelled)
		return
	}

	if result.IsSuccess() {
		e.setStepStatus(c.run, c.index, models.TaskSuccess, nil)
		e.appendOutput("✓ Step completed successfully\n", false)

		// Queue the next step instead of recursing so long plans keep a flat stack.
		run, next := c.run, c.index+1
		e.loop.Post(func() { e.Execute(run, next) })
		return
	}

	e.setStepStatus(c.run, c.index, models.TaskFailed, result.ExitCode)
	if code, ok := result.Code(); ok {
		e.appendOutput(fmt.Sprintf("✗ Command failed with exit code: %d\n", code), true)
	}
	e.finish(c.run, models.RunStatusFailed,
		fmt.Sprintf("Operation failed at step %d of %d", c.index+1, len(c.run.Steps)))
}
