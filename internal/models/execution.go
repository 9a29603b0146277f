package models

import "time"

// Execution is the recorded history of one step of a run.
type Execution struct {
	ID          int64
	RunID       int64
	StepIndex   int
	Name        string
	CommandType CommandType
	Program     string
	Args        []string
	Status      TaskStatus
	ExitCode    *int
	PID         *int
	StartedAt   *time.Time
	CompletedAt *time.Time
}
