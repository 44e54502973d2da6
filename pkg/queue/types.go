package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority orders claimable tasks, 0-100, higher first.
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// RetryBackoff is the delay before the n-th retry of a failed task.
func RetryBackoff(retry int8) time.Duration {
	return time.Duration(retry) * 30 * time.Second
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskType    TaskType   `json:"task_type"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	RetryCount  int8       `json:"retry_count"`
	MaxRetries  int8       `json:"max_retries"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DeadTask is a task that exhausted its retries, kept for inspection.
type DeadTask struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	Queue      string    `json:"queue"`
	TaskType   TaskType  `json:"task_type"`
	TaskName   string    `json:"task_name"`
	Payload    []byte    `json:"payload,omitempty"`
	Priority   Priority  `json:"priority"`
	Error      string    `json:"error"`
	RetryCount int8      `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func deadTaskFrom(t *Task, now time.Time) *DeadTask {
	d := &DeadTask{
		ID:         uuid.New(),
		TaskID:     t.ID,
		Queue:      t.Queue,
		TaskType:   t.TaskType,
		TaskName:   t.TaskName,
		Payload:    t.Payload,
		Priority:   t.Priority,
		RetryCount: t.RetryCount,
		FailedAt:   now,
		CreatedAt:  now,
	}
	if t.Error != nil {
		d.Error = *t.Error
	}
	return d
}
