package executor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// fakeScript describes how a fake process behaves.
type fakeScript struct {
	stdout   []string
	stderr   []string
	exitCode int
	// block keeps the process alive until ForceTerminate.
	block     bool
	noStdout  bool
	waitErr   error
	stdoutErr error
}

type fakeRunner struct {
	mu       sync.Mutex
	scripts  map[string]fakeScript
	spawned  [][]string
	procs    []*fakeProcess
	spawnErr error
}

func newFakeRunner(scripts map[string]fakeScript) *fakeRunner {
	if scripts == nil {
		scripts = map[string]fakeScript{}
	}
	return &fakeRunner{scripts: scripts}
}

func (r *fakeRunner) Spawn(program string, args []string, opts SpawnOptions) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spawnErr != nil {
		return nil, &SpawnError{Program: program, OriginalError: r.spawnErr}
	}

	r.spawned = append(r.spawned, append([]string{program}, args...))
	p := startFakeProcess(len(r.spawned)+1000, r.scripts[program], opts)
	r.procs = append(r.procs, p)
	return p, nil
}

func (r *fakeRunner) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spawned)
}

func (r *fakeRunner) argv(i int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawned[i]
}

func (r *fakeRunner) process(i int) *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[i]
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

type fakeProcess struct {
	pid    int
	script fakeScript
	stdout io.Reader
	stderr io.Reader
	outW   *io.PipeWriter
	errW   *io.PipeWriter
	exit   chan ExitOutcome

	killOnce sync.Once
	killed   atomic.Int32
}

func startFakeProcess(pid int, script fakeScript, opts SpawnOptions) *fakeProcess {
	p := &fakeProcess{pid: pid, script: script, exit: make(chan ExitOutcome, 1)}

	var wg sync.WaitGroup
	if opts.CaptureStdout && !script.noStdout {
		if script.stdoutErr != nil {
			p.stdout = errReader{err: script.stdoutErr}
		} else {
			r, w := io.Pipe()
			p.stdout, p.outW = r, w
			wg.Add(1)
			go writeLines(&wg, w, script.stdout, script.block)
		}
	}
	if opts.CaptureStderr {
		r, w := io.Pipe()
		p.stderr, p.errW = r, w
		wg.Add(1)
		go writeLines(&wg, w, script.stderr, script.block)
	}

	if !script.block {
		go func() {
			wg.Wait()
			if script.exitCode == 0 {
				p.exit <- ExitOutcome{Success: true}
				return
			}
			code := script.exitCode
			p.exit <- ExitOutcome{Code: &code}
		}()
	}
	return p
}

func writeLines(wg *sync.WaitGroup, w *io.PipeWriter, lines []string, keepOpen bool) {
	defer wg.Done()
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return
		}
	}
	if !keepOpen {
		w.Close()
	}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }

func (p *fakeProcess) Stderr() io.Reader { return p.stderr }

func (p *fakeProcess) Wait() (ExitOutcome, error) {
	outcome := <-p.exit
	if p.script.waitErr != nil {
		return ExitOutcome{}, &WaitError{PID: p.pid, OriginalError: p.script.waitErr}
	}
	return outcome, nil
}

func (p *fakeProcess) ForceTerminate() error {
	p.killed.Add(1)
	p.killOnce.Do(func() {
		if p.outW != nil {
			p.outW.Close()
		}
		if p.errW != nil {
			p.errW.Close()
		}
		if p.script.block {
			p.exit <- ExitOutcome{}
		}
	})
	return nil
}

type logLine struct {
	text    string
	isError bool
}

type completion struct {
	success bool
	message string
}

// recordingSurface records every surface call. Calls arrive on the loop, reads
// come from the test goroutine.
type recordingSurface struct {
	mu             sync.Mutex
	progress       [][2]int
	titles         []string
	logs           []logLine
	statuses       map[int][]models.TaskStatus
	completions    []completion
	cancelDisabled bool
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{statuses: map[int][]models.TaskStatus{}}
}

func (s *recordingSurface) SetProgress(current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, [2]int{current, total})
}

func (s *recordingSurface) SetTitle(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, text)
}

func (s *recordingSurface) AppendLog(text string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, logLine{text: text, isError: isError})
}

func (s *recordingSurface) UpdateStepStatus(index int, status models.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[index] = append(s.statuses[index], status)
}

func (s *recordingSurface) ShowCompletion(success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, completion{success: success, message: message})
}

func (s *recordingSurface) DisableCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDisabled = true
}

func (s *recordingSurface) logText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, l := range s.logs {
		b.WriteString(l.text)
	}
	return b.String()
}

func (s *recordingSurface) errorLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, l := range s.logs {
		if l.isError {
			out = append(out, l.text)
		}
	}
	return out
}

func (s *recordingSurface) statusesOf(i int) []models.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TaskStatus(nil), s.statuses[i]...)
}

func (s *recordingSurface) lastCompletion() completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.completions) == 0 {
		return completion{}
	}
	return s.completions[len(s.completions)-1]
}

func (s *recordingSurface) completionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completions)
}

type staticHelpers struct {
	preferred string
	detected  string
}

func (h staticHelpers) PreferredHelper() (string, bool) { return h.preferred, h.preferred != "" }

func (h staticHelpers) DetectHelper() (string, bool) { return h.detected, h.detected != "" }

func startLoop(t *testing.T) *Loop {
	t.Helper()
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return loop
}

// harness wires an executor to a running loop and counts completion callbacks.
type harness struct {
	loop     *Loop
	surface  *recordingSurface
	runner   Runner
	exec     *Executor
	done     chan bool
	callback atomic.Int32
}

func newHarness(t *testing.T, runner Runner, helpers HelperSource) *harness {
	t.Helper()
	h := &harness{
		loop:    startLoop(t),
		surface: newRecordingSurface(),
		runner:  runner,
		done:    make(chan bool, 4),
	}
	h.exec = New(h.loop, h.surface, NewResolver("pkexec", helpers), WithRunner(runner))
	return h
}

func (h *harness) newRun(steps ...models.CommandStep) *Run {
	return NewRun("test-run", "Test", steps, func(ok bool) {
		h.callback.Add(1)
		h.done <- ok
	})
}

func (h *harness) start(run *Run) {
	h.loop.Post(func() { h.exec.Execute(run, 0) })
}

func (h *harness) wait(t *testing.T) bool {
	t.Helper()
	select {
	case ok := <-h.done:
		// Give any stray events a chance to fire a second callback.
		time.Sleep(50 * time.Millisecond)
		require.Equal(t, int32(1), h.callback.Load(), "completion callback must fire exactly once")
		return ok
	case <-time.After(10 * time.Second):
		t.Fatal("run did not complete")
		return false
	}
}

var errBoom = errors.New("boom")
