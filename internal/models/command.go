package models

import "fmt"

// CommandType decides how a step is turned into a real invocation.
type CommandType string

const (
	CommandNormal     CommandType = "normal"
	CommandPrivileged CommandType = "privileged"
	CommandAur        CommandType = "aur"
)

// ParseCommandType accepts the string forms used in plan files and the database.
func ParseCommandType(s string) (CommandType, error) {
	switch CommandType(s) {
	case CommandNormal, CommandPrivileged, CommandAur:
		return CommandType(s), nil
	case "":
		return CommandNormal, nil
	}
	return "", fmt.Errorf("unknown command type %q", s)
}

// CommandStep is one unit of work in a plan.
type CommandStep struct {
	Type    CommandType `json:"type"`
	Command string      `json:"command"`
	Args    []string    `json:"args,omitempty"`
	Name    string      `json:"name"`
}

func NewStep(t CommandType, command string, args []string, name string) CommandStep {
	return CommandStep{
		Type:    t,
		Command: command,
		Args:    append([]string(nil), args...),
		Name:    name,
	}
}

func Normal(command string, args []string, name string) CommandStep {
	return NewStep(CommandNormal, command, args, name)
}

// Privileged steps run through the escalation tool (pkexec by default).
func Privileged(command string, args []string, name string) CommandStep {
	return NewStep(CommandPrivileged, command, args, name)
}

// Aur steps run through the resolved AUR helper; the command is a placeholder.
func Aur(args []string, name string) CommandStep {
	return NewStep(CommandAur, "aur", args, name)
}

// CommandResult is the outcome of one step. A nil ExitCode on failure means
// the process was signaled or the status could not be read.
type CommandResult struct {
	Success  bool
	ExitCode *int
}

func ResultSuccess() CommandResult {
	return CommandResult{Success: true}
}

func ResultFailure(code *int) CommandResult {
	return CommandResult{ExitCode: code}
}

func (r CommandResult) IsSuccess() bool { return r.Success }

// Code returns the exit code of a failure, if known.
func (r CommandResult) Code() (int, bool) {
	if r.Success || r.ExitCode == nil {
		return 0, false
	}
	return *r.ExitCode, true
}

// TaskStatus is the per-step indicator shown on the progress surface.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailed
}
