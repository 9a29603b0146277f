package models

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

type Run struct {
	ID          int64
	SessionID   string
	CreatedAt   time.Time
	CompletedAt *time.Time
	PlanName    string
	Title       string
	Status      RunStatus
	Message     string
	TotalSteps  int
}
