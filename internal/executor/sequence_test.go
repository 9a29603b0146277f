package executor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

func TestExecuteAllStepsSucceed(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{
		"one":   {stdout: []string{"first"}},
		"two":   {stdout: []string{"second"}},
		"three": {stderr: []string{"warning: noise"}},
	})
	h := newHarness(t, runner, nil)

	run := h.newRun(
		models.Normal("one", nil, "Step one"),
		models.Normal("two", nil, "Step two"),
		models.Normal("three", nil, "Step three"),
	)
	h.start(run)

	require.True(t, h.wait(t))
	assert.Equal(t, 3, runner.spawnCount())
	for i := 0; i < 3; i++ {
		assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskSuccess}, h.surface.statusesOf(i), "step %d", i)
	}
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, h.surface.progress)
	assert.Equal(t, []string{"Step one", "Step two", "Step three"}, h.surface.titles)
	assert.Equal(t, completion{success: true, message: MsgCompleted}, h.surface.lastCompletion())
	assert.Equal(t, models.RunStatusComplete, run.Status())

	log := h.surface.logText()
	assert.Contains(t, log, "=== Step 1/3: Step one ===")
	assert.Contains(t, log, "first\n")
	assert.Contains(t, log, "second\n")
	assert.Contains(t, h.surface.errorLines(), "warning: noise\n")
	assert.Contains(t, log, "✓ "+MsgCompleted)
}

func TestExecuteStopsAtFailingStep(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{
		"bad": {stderr: []string{"error: target not found"}, exitCode: 3},
	})
	h := newHarness(t, runner, nil)

	run := h.newRun(
		models.Normal("good", nil, "First"),
		models.Normal("bad", nil, "Second"),
		models.Normal("never", nil, "Third"),
	)
	h.start(run)

	require.False(t, h.wait(t))
	assert.Equal(t, 2, runner.spawnCount())
	assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskSuccess}, h.surface.statusesOf(0))
	assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskFailed}, h.surface.statusesOf(1))
	assert.Empty(t, h.surface.statusesOf(2))
	assert.Equal(t, completion{success: false, message: "Operation failed at step 2 of 3"}, h.surface.lastCompletion())
	assert.Contains(t, h.surface.errorLines(), "✗ Command failed with exit code: 3\n")
	assert.Equal(t, models.RunStatusFailed, run.Status())
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	runner := newFakeRunner(nil)
	h := newHarness(t, runner, nil)

	run := h.newRun(models.Normal("one", nil, "One"), models.Normal("two", nil, "Two"))
	run.Cancel()
	h.start(run)

	require.False(t, h.wait(t))
	assert.Zero(t, runner.spawnCount())
	assert.Equal(t, completion{success: false, message: MsgCancelled}, h.surface.lastCompletion())
	assert.Equal(t, models.RunStatusCancelled, run.Status())
}

func TestExecuteCancelledInFlight(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{
		"slow": {stdout: []string{"working"}, block: true},
	})
	h := newHarness(t, runner, nil)

	run := h.newRun(models.Normal("slow", nil, "Slow"), models.Normal("next", nil, "Next"))
	h.start(run)

	require.Eventually(t, func() bool { return runner.spawnCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	h.loop.Post(run.Cancel)

	require.False(t, h.wait(t))
	assert.Equal(t, 1, runner.spawnCount(), "next step must never start")
	assert.GreaterOrEqual(t, runner.process(0).killed.Load(), int32(1))
	assert.Equal(t, completion{success: false, message: MsgCancelled}, h.surface.lastCompletion())
	assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskFailed}, h.surface.statusesOf(0))
	assert.Empty(t, h.surface.statusesOf(1))
}

func TestCancelWinsOverSuccess(t *testing.T) {
	runner := newFakeRunner(nil)
	h := newHarness(t, runner, nil)

	run := h.newRun(models.Normal("ok", nil, "Ok"), models.Normal("next", nil, "Next"))
	sc := newStepContext(h.exec, run, 0)

	done := make(chan struct{})
	h.loop.Post(func() {
		sc.markStreamDone(StreamStdout)
		sc.markStreamDone(StreamStderr)
		run.Cancel()
		sc.setExitResult(models.ResultSuccess())
		close(done)
	})
	<-done

	require.False(t, h.wait(t))
	assert.Zero(t, runner.spawnCount())
	assert.Equal(t, MsgCancelled, h.surface.lastCompletion().message)
}

func TestExecuteAurWithoutHelper(t *testing.T) {
	runner := newFakeRunner(nil)
	h := newHarness(t, runner, staticHelpers{})

	run := h.newRun(models.Aur([]string{"-S", "cuda"}, "Installing CUDA Toolkit..."))
	h.start(run)

	require.False(t, h.wait(t))
	assert.Zero(t, runner.spawnCount())
	assert.Equal(t, MsgPrepareFailed, h.surface.lastCompletion().message)
	require.NotEmpty(t, h.surface.errorLines())
	assert.Contains(t, h.surface.errorLines()[0], ErrHelperNotFound.Error())
}

func TestExecuteSpawnError(t *testing.T) {
	runner := newFakeRunner(nil)
	runner.spawnErr = errBoom
	h := newHarness(t, runner, nil)

	h.start(h.newRun(models.Normal("x", nil, "X")))

	require.False(t, h.wait(t))
	assert.Equal(t, MsgStartFailed, h.surface.lastCompletion().message)
	assert.Contains(t, h.surface.logText(), "✗ Failed to start command: x: boom")
	assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskFailed}, h.surface.statusesOf(0))
}

func TestExecuteWaitError(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{"x": {waitErr: errBoom}})
	h := newHarness(t, runner, nil)

	h.start(h.newRun(models.Normal("x", nil, "X")))

	require.False(t, h.wait(t))
	assert.Contains(t, h.surface.logText(), "✗ Failed to wait for command:")
	assert.Equal(t, "Operation failed at step 1 of 1", h.surface.lastCompletion().message)
}

func TestExecuteStreamReadError(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{"x": {stdoutErr: errBoom}})
	h := newHarness(t, runner, nil)

	h.start(h.newRun(models.Normal("x", nil, "X")))

	require.True(t, h.wait(t), "a read error alone does not fail a step that exits zero")
	assert.Contains(t, h.surface.logText(), "✗ Failed to read command output: stdout: boom")
}

func TestExecuteUncapturedStream(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{"x": {noStdout: true, stderr: []string{"only stderr"}}})
	h := newHarness(t, runner, nil)

	h.start(h.newRun(models.Normal("x", nil, "X")))

	require.True(t, h.wait(t))
	assert.Contains(t, h.surface.errorLines(), "only stderr\n")
}

func TestEchoThenPrivilegedRestart(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{
		"echo":   {stdout: []string{"hi"}},
		"pkexec": {},
	})
	h := newHarness(t, runner, nil)

	h.start(h.newRun(
		models.Normal("echo", []string{"hi"}, "Say hi"),
		models.Privileged("systemctl", []string{"restart", "foo"}, "Restart foo"),
	))

	require.True(t, h.wait(t))
	assert.Equal(t, [2]int{2, 2}, h.surface.progress[len(h.surface.progress)-1])
	assert.Equal(t, []string{"pkexec", "systemctl", "restart", "foo"}, runner.argv(1))

	log := h.surface.logText()
	assert.Contains(t, log, "hi\n")
	assert.Contains(t, log, "=== Step 2/2: Restart foo ===")
	assert.Equal(t, []models.TaskStatus{models.TaskRunning, models.TaskSuccess}, h.surface.statusesOf(1))
	assert.True(t, h.surface.lastCompletion().success)
}

func TestLongSequenceKeepsGoing(t *testing.T) {
	runner := newFakeRunner(nil)
	h := newHarness(t, runner, nil)

	steps := make([]models.CommandStep, 300)
	for i := range steps {
		steps[i] = models.Normal("true", nil, fmt.Sprintf("Step %d", i+1))
	}
	h.start(h.newRun(steps...))

	require.True(t, h.wait(t))
	assert.Equal(t, 300, runner.spawnCount())
}

type observedStep struct {
	index  int
	status models.TaskStatus
}

type recordingObserver struct {
	started  []int
	finished []observedStep
	runs     []models.RunStatus
}

func (o *recordingObserver) StepStarted(_ *Run, index int, _ string, _ []string, _ int) {
	o.started = append(o.started, index)
}

func (o *recordingObserver) StepFinished(_ *Run, index int, status models.TaskStatus, _ *int) {
	o.finished = append(o.finished, observedStep{index, status})
}

func (o *recordingObserver) RunFinished(_ *Run, status models.RunStatus, _ string) {
	o.runs = append(o.runs, status)
}

func TestObserverSeesTransitions(t *testing.T) {
	runner := newFakeRunner(map[string]fakeScript{"bad": {exitCode: 1}})
	h := newHarness(t, runner, nil)
	obs := &recordingObserver{}
	h.exec.observer = obs

	h.start(h.newRun(models.Normal("ok", nil, "Ok"), models.Normal("bad", nil, "Bad")))
	require.False(t, h.wait(t))

	done := make(chan struct{})
	h.loop.Post(func() { close(done) })
	<-done

	assert.Equal(t, []int{0, 1}, obs.started)
	assert.Equal(t, []observedStep{{0, models.TaskSuccess}, {1, models.TaskFailed}}, obs.finished)
	assert.Equal(t, []models.RunStatus{models.RunStatusFailed}, obs.runs)
}

func TestResolutionErrorIsTyped(t *testing.T) {
	_, _, err := NewResolver("", staticHelpers{}).Resolve(models.Aur(nil, "x"))
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.ErrorIs(t, err, ErrHelperNotFound)
}

func TestLoggerKeysDoNotCollide(t *testing.T) {
	runner := newFakeRunner(nil)
	h := newHarness(t, runner, nil)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("run", 7)
	h.exec = New(h.loop, h.surface, NewResolver("pkexec", nil), WithRunner(runner), WithLogger(logger))

	h.start(h.newRun(models.Normal("one", nil, "One")))
	require.True(t, h.wait(t))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, " run="), line)
		assert.Contains(t, line, "session=test-run", line)
	}
}
