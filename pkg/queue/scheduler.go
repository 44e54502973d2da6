package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitle/pkg/logger"
)

type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// GetPendingTaskByName returns a pending or processing task with the
	// given name, or ErrTaskNotFound.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler creates periodic tasks. At most one unfinished task per name
// exists at a time, so several scheduler replicas sharing one store do not
// multiply the work.
type Scheduler struct {
	repo     SchedulerRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	tasks map[string]*scheduledTask
}

type scheduledTask struct {
	name       string
	schedule   Schedule
	queue      string
	priority   Priority
	maxRetries int8
	last       *time.Time
}

type SchedulerOption func(*Scheduler)

func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type SchedulerTaskOption func(*scheduledTask)

func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(t *scheduledTask) {
		if queue != "" {
			t.queue = queue
		}
	}
}

func WithTaskPriority(p Priority) SchedulerTaskOption {
	return func(t *scheduledTask) {
		if p.Valid() {
			t.priority = p
		}
	}
}

func WithTaskMaxRetries(n int8) SchedulerTaskOption {
	return func(t *scheduledTask) {
		if n >= 0 && n <= 10 {
			t.maxRetries = n
		}
	}
}

func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	s := &Scheduler{
		repo:     repo,
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		tasks:    make(map[string]*scheduledTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("queue.scheduler"))
	return s, nil
}

func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if schedule == nil {
		return ErrInvalidSchedule
	}
	t := &scheduledTask{
		name:       name,
		schedule:   schedule,
		queue:      DefaultQueueName,
		priority:   PriorityDefault,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}
	s.tasks[name] = t
	s.logger.Info("registered periodic task", slog.String("task_name", name), slog.String("schedule", schedule.String()))
	return nil
}

func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start checks once immediately and then on every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Run adapts the scheduler to errgroup.Go.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error { return s.Start(ctx) }
}

// Tick creates every task that is due.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	now := s.now()
	for _, t := range tasks {
		if err := s.scheduleIfDue(ctx, t, now); err != nil {
			s.logger.Error("failed to schedule task", slog.String("task_name", t.name), logger.Error(err))
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, t *scheduledTask, now time.Time) error {
	s.mu.Lock()
	last := t.last
	s.mu.Unlock()

	next := t.schedule.Next(now)
	if last != nil {
		next = t.schedule.Next(*last)
		if next.After(now) {
			return nil
		}
	}

	existing, err := s.repo.GetPendingTaskByName(ctx, t.name)
	switch {
	case err == nil && existing != nil:
		s.setLast(t, existing.ScheduledAt)
		return nil
	case err != nil && !errors.Is(err, ErrTaskNotFound):
		return fmt.Errorf("look up pending task: %w", err)
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       t.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		Priority:    t.priority,
		MaxRetries:  t.maxRetries,
		ScheduledAt: next,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create periodic task: %w", err)
	}
	s.setLast(t, next)
	s.logger.Info("created periodic task", slog.String("task_name", t.name), slog.Time("scheduled_for", next))
	return nil
}

func (s *Scheduler) setLast(t *scheduledTask, at time.Time) {
	s.mu.Lock()
	t.last = &at
	s.mu.Unlock()
}
