package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitle/pkg/logger"
)

type WorkerRepository interface {
	// ClaimTask locks the next due task for workerID or returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records the error, increments RetryCount and either reschedules
	// the task with backoff or marks it failed when retries are exhausted.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	id       uuid.UUID
	sem      chan struct{}

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		id:           uuid.New(),
		sem:          make(chan struct{}, 1),
		pullInterval: 5 * time.Second,
		lockTimeout:  5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.id.String()))
	return w, nil
}

func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if _, ok := w.handlers[h.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, h.Name())
		}
		w.handlers[h.Name()] = h
	}
	return nil
}

// Start launches the polling loop. Tasks in flight at Stop are allowed to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Info("worker started", slog.Any("queues", w.queues), slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	<-done
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Run adapts the worker to errgroup.Go.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// loop owns every wg.Add so Stop can wait on done before wg.Wait.
func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case w.sem <- struct{}{}:
		default:
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			if _, err := w.ProcessNext(ctx); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to process task", logger.Error(err))
			}
		}()
	}
}

// ProcessNext claims and runs one task synchronously. It reports false when
// nothing was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) || (err == nil && task == nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return true, w.process(task)
}

func (w *Worker) process(task *Task) (err error) {
	start := time.Now()
	log := w.logger.With(logger.TaskID(task.ID.String()), slog.String("task_name", task.TaskName))

	w.mu.Lock()
	h, ok := w.handlers[task.TaskName]
	w.mu.Unlock()
	if !ok {
		log.Error("no handler registered for task")
		return w.bury(task, ErrHandlerNotFound.Error()+": "+task.TaskName, ErrHandlerNotFound)
	}

	// Storage calls use a context detached from the worker so shutdown
	// does not abandon a finished task in processing state.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", slog.Any("panic", r))
			err = w.fail(ctx, log, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	if herr := h.Handle(ctx, task.Payload); herr != nil {
		return w.fail(ctx, log, task, herr, time.Since(start))
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	log.Info("task completed", logger.Duration(time.Since(start)))
	return nil
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, task *Task, cause error, took time.Duration) error {
	log.Error("task failed",
		logger.Error(cause),
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(took))

	if err := w.repo.FailTask(ctx, task.ID, cause.Error()); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if task.RetryCount+1 < task.MaxRetries {
		return nil
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to dead letter queue: %w", task.ID, err)
	}
	log.Warn("task moved to dead letter queue")
	return nil
}

func (w *Worker) bury(task *Task, msg string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()
	if err := w.repo.FailTask(ctx, task.ID, msg); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to dead letter queue: %w", task.ID, err)
	}
	return cause
}

// ExtendLock keeps a long-running task claimed.
func (w *Worker) ExtendLock(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

func (w *Worker) ID() uuid.UUID { return w.id }
