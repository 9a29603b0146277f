package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// newIdleContext builds a step context whose loop is never run, so posted
// tasks stay in the queue where the test can count them.
func newIdleContext(steps int, onComplete func(bool)) (*stepContext, *Loop, *recordingSurface) {
	loop := NewLoop()
	surface := newRecordingSurface()
	e := New(loop, surface, NewResolver("", nil), WithRunner(newFakeRunner(nil)))

	list := make([]models.CommandStep, steps)
	for i := range list {
		list[i] = models.Normal("true", nil, "step")
	}
	run := NewRun("ctx", "ctx", list, onComplete)
	return newStepContext(e, run, 0), loop, surface
}

func queued(l *Loop) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func TestFinalizeWaitsForAllSignals(t *testing.T) {
	sc, loop, surface := newIdleContext(2, nil)

	sc.markStreamDone(StreamStdout)
	sc.setExitResult(models.ResultSuccess())
	assert.False(t, sc.finalized)
	assert.Zero(t, queued(loop))

	sc.markStreamDone(StreamStderr)
	assert.True(t, sc.finalized)
	assert.Equal(t, 1, queued(loop), "next step is queued, not called")
	assert.Equal(t, []models.TaskStatus{models.TaskSuccess}, surface.statusesOf(0))
}

func TestFinalizeAnyOrder(t *testing.T) {
	sc, loop, _ := newIdleContext(2, nil)

	sc.setExitResult(models.ResultSuccess())
	sc.markStreamDone(StreamStderr)
	assert.False(t, sc.finalized)
	sc.markStreamDone(StreamStdout)
	assert.True(t, sc.finalized)
	assert.Equal(t, 1, queued(loop))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	sc, loop, surface := newIdleContext(2, nil)

	sc.markStreamDone(StreamStdout)
	sc.markStreamDone(StreamStderr)
	sc.setExitResult(models.ResultSuccess())
	a := assert.New(t)
	a.Equal(1, queued(loop))

	sc.markStreamDone(StreamStdout)
	sc.markStreamDone(StreamStderr)
	sc.setExitResult(models.ResultSuccess())
	code := 1
	sc.setExitResult(models.ResultFailure(&code))

	a.Equal(1, queued(loop), "no double advancement")
	a.Equal([]models.TaskStatus{models.TaskSuccess}, surface.statusesOf(0))
}

func TestFailureCallsBackOnce(t *testing.T) {
	calls := 0
	var got bool
	sc, loop, surface := newIdleContext(1, func(ok bool) {
		calls++
		got = ok
	})

	code := 2
	sc.setExitResult(models.ResultFailure(&code))
	sc.markStreamDone(StreamStdout)
	sc.markStreamDone(StreamStderr)
	sc.markStreamDone(StreamStderr)
	sc.setExitResult(models.ResultFailure(&code))

	assert.Equal(t, 1, calls)
	assert.False(t, got)
	assert.Zero(t, queued(loop))
	assert.Equal(t, 1, surface.completionCount())
	assert.Equal(t, "Operation failed at step 1 of 1", surface.lastCompletion().message)
}

func TestFailureWithoutCodeSkipsCodeLine(t *testing.T) {
	sc, _, surface := newIdleContext(1, nil)

	sc.setExitResult(models.ResultFailure(nil))
	sc.markStreamDone(StreamStdout)
	sc.markStreamDone(StreamStderr)

	assert.NotContains(t, surface.logText(), "exit code")
	assert.False(t, surface.lastCompletion().success)
}

func TestFinalizeClearsProcessSlot(t *testing.T) {
	sc, _, _ := newIdleContext(2, nil)
	sc.run.process = startFakeProcess(1, fakeScript{}, SpawnOptions{})

	sc.markStreamDone(StreamStdout)
	sc.markStreamDone(StreamStderr)
	sc.setExitResult(models.ResultSuccess())

	assert.Nil(t, sc.run.Process())
}
