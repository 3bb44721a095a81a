package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusSucceeded, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

func (s TaskStatus) String() string {
	return string(s)
}

// Event types written to the task event log.
const (
	EventTaskCreated         = "task.created"
	EventTaskRunning         = "task.running"
	EventTaskProgress        = "task.progress"
	EventTaskCancelRequested = "task.cancel_requested"
	EventTaskCanceled        = "task.canceled"
	EventTaskCompleted       = "task.completed"
)

// Well-known task sources. Any other string is accepted.
const (
	SourceAPI       = "api"
	SourceAdmin     = "admin"
	SourceRetry     = "retry"
	SourceScheduler = "scheduler"
)

// Task represents a unit of background work
type Task struct {
	ID              uuid.UUID       `json:"id"`
	TaskType        string          `json:"task_type"`
	Status          TaskStatus      `json:"status"`
	Source          string          `json:"source"`
	RequestedBy     *int64          `json:"requested_by,omitempty"`
	ParentTaskID    *uuid.UUID      `json:"parent_task_id,omitempty"`
	DedupKey        *string         `json:"dedup_key,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TaskEvent is an immutable entry of the append-only event log.
// ID is assigned by the store and grows monotonically across all tasks.
type TaskEvent struct {
	ID        int64           `json:"id"`
	TaskID    uuid.UUID       `json:"task_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// GlobalEvent is an event joined with the current state of its owning task.
type GlobalEvent struct {
	EventID   int64      `json:"event_id"`
	TaskID    uuid.UUID  `json:"task_id"`
	TaskType  string     `json:"task_type"`
	Status    TaskStatus `json:"status"`
	EventType string     `json:"event_type"`
	CreatedAt time.Time  `json:"created_at"`
}

// HourSlot is the per-hour-of-day dispatch configuration of the recurring job.
type HourSlot struct {
	HourUTC        int        `json:"hour_utc"`
	Enabled        bool       `json:"enabled"`
	LastDispatchAt *time.Time `json:"last_dispatch_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Finalization carries the terminal state written by the worker.
type Finalization struct {
	Status       TaskStatus
	Result       json.RawMessage
	ErrorMessage *string
	FinishedAt   time.Time
}
