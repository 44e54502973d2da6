package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
	now             func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(e *Enqueuer) {
		if priority.Valid() {
			e.defaultPriority = priority
		}
	}
}

// WithEnqueuerClock overrides time.Now for scheduling.
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:            repo,
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt *time.Time
	taskName    string
}

type EnqueueOption func(*enqueueOptions)

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = priority }
}

// WithMaxRetries caps retries at 10.
func WithMaxRetries(maxRetries int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxRetries >= 0 && maxRetries <= 10 {
			o.maxRetries = maxRetries
		}
	}
}

func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.scheduledAt = &at }
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) { o.taskName = name }
}

// Enqueue stores payload as a pending one-time task.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	o := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.priority.Valid() {
		return ErrInvalidPriority
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload of type %T: %w", payload, err)
	}

	name := o.taskName
	if name == "" {
		name = TaskName(payload)
	}

	now := e.now()
	at := now.Add(o.delay)
	if o.scheduledAt != nil {
		at = *o.scheduledAt
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		TaskType:    TaskTypeOneTime,
		TaskName:    name,
		Payload:     body,
		Status:      TaskStatusPending,
		Priority:    o.priority,
		MaxRetries:  o.maxRetries,
		ScheduledAt: at,
		CreatedAt:   now,
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return nil
}
