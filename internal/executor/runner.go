package executor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// SpawnOptions selects which output streams are captured.
type SpawnOptions struct {
	CaptureStdout bool
	CaptureStderr bool
}

// ExitOutcome is the exit status of a finished process. Code is nil when the
// process was killed by a signal.
type ExitOutcome struct {
	Success bool
	Code    *int
}

// Process is a live child process.
type Process interface {
	Pid() int
	// Stdout and Stderr return nil when the stream was not captured.
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits.
	Wait() (ExitOutcome, error)
	// ForceTerminate kills the process tree. Safe to call more than once and
	// after exit.
	ForceTerminate() error
}

// Runner starts child processes.
type Runner interface {
	Spawn(program string, args []string, opts SpawnOptions) (Process, error)
}

// ExecRunner runs real processes in their own process group.
type ExecRunner struct{}

func (ExecRunner) Spawn(program string, args []string, opts SpawnOptions) (Process, error) {
	cmd := exec.Command(program, args...)
	configureProcessGroup(cmd)

	p := &execProcess{cmd: cmd}

	// The runner owns the pipes instead of using StdoutPipe so that reading
	// and Wait are independent of each other.
	var childEnds []*os.File
	closeAll := func() {
		for _, f := range childEnds {
			f.Close()
		}
		if p.stdout != nil {
			p.stdout.Close()
		}
		if p.stderr != nil {
			p.stderr.Close()
		}
	}

	if opts.CaptureStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &SpawnError{Program: program, OriginalError: err}
		}
		p.stdout = r
		cmd.Stdout = w
		childEnds = append(childEnds, w)
	}
	if opts.CaptureStderr {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, &SpawnError{Program: program, OriginalError: err}
		}
		p.stderr = r
		cmd.Stderr = w
		childEnds = append(childEnds, w)
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, &SpawnError{Program: program, OriginalError: err}
	}

	for _, f := range childEnds {
		f.Close()
	}
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	mu     sync.Mutex
	exited bool
	killed bool
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

func (p *execProcess) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

func (p *execProcess) Wait() (ExitOutcome, error) {
	var err error
	if waitExited(p.cmd.Process.Pid) == nil {
		// The child is a zombie now; reap it under the lock so ForceTerminate
		// sees either a live pid or exited.
		p.mu.Lock()
		err = p.cmd.Wait()
		p.exited = true
		p.mu.Unlock()
	} else {
		err = p.cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
	}
	if err == nil {
		return ExitOutcome{Success: true}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome := ExitOutcome{}
		if code := exitErr.ExitCode(); code >= 0 {
			outcome.Code = &code
		}
		return outcome, nil
	}
	return ExitOutcome{}, &WaitError{PID: p.Pid(), OriginalError: err}
}

func (p *execProcess) ForceTerminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Never signal a reaped pid, it may belong to someone else by now.
	if p.killed || p.exited {
		return nil
	}
	p.killed = true
	return killProcessGroup(p.cmd.Process)
}
