package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements every repository interface in process.
// Processing tasks whose lock expired become claimable again.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dlq   []*DeadTask
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		now:   time.Now,
	}
}

// WithClock overrides time.Now; used by tests.
func (ms *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	ms.now = now
	return ms
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	cp := *task
	ms.tasks[task.ID] = &cp
	return nil
}

func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, name string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, t := range ms.tasks {
		if t.TaskName == name && (t.Status == TaskStatusPending || t.Status == TaskStatusProcessing) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTaskNotFound
}

// ClaimTask picks the highest priority due task, oldest schedule first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) || t.ScheduledAt.After(now) {
			continue
		}
		switch t.Status {
		case TaskStatusPending:
		case TaskStatusProcessing:
			if t.LockedUntil == nil || t.LockedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ScheduledAt.Before(best.ScheduledAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lock)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &workerID
	cp := *best
	return &cp, nil
}

func (ms *MemoryStorage) processing(id uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, id)
	}
	return t, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, id uuid.UUID, msg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	t.RetryCount++
	t.Error = &msg
	t.LockedUntil, t.LockedBy = nil, nil
	if t.RetryCount >= t.MaxRetries {
		t.Status = TaskStatusFailed
		return nil
	}
	t.Status = TaskStatusPending
	t.ScheduledAt = ms.now().Add(RetryBackoff(t.RetryCount))
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	ms.dlq = append(ms.dlq, deadTaskFrom(t, ms.now()))
	delete(ms.tasks, id)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, id uuid.UUID, d time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	until := ms.now().Add(d)
	t.LockedUntil = &until
	return nil
}

// Task returns a copy of the stored task.
func (ms *MemoryStorage) Task(id uuid.UUID) (*Task, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Tasks returns copies of all stored tasks in no particular order.
func (ms *MemoryStorage) Tasks() []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]Task, 0, len(ms.tasks))
	for _, t := range ms.tasks {
		out = append(out, *t)
	}
	return out
}

func (ms *MemoryStorage) DeadTasks() []DeadTask {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]DeadTask, 0, len(ms.dlq))
	for _, d := range ms.dlq {
		out = append(out, *d)
	}
	return out
}
