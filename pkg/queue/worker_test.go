package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/queue"
)

type confirmPayload struct {
	Reference string `json:"reference"`
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*queue.MemoryStorage, *queue.Enqueuer, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := queue.NewMemoryStorage().WithClock(c.Now)
	enq, err := queue.NewEnqueuer(store, queue.WithEnqueuerClock(c.Now))
	require.NoError(t, err)
	return store, enq, c
}

func newWorker(t *testing.T, store queue.WorkerRepository, handlers ...queue.Handler) *queue.Worker {
	t.Helper()
	w, err := queue.NewWorker(store,
		queue.WithWorkerLogger(logger.Discard()),
		queue.WithPullInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandlers(handlers...))
	return w
}

func TestWorker_ProcessNext(t *testing.T) {
	t.Parallel()

	t.Run("runs the typed handler and completes the task", func(t *testing.T) {
		t.Parallel()
		store, enq, _ := setup(t)

		var got confirmPayload
		w := newWorker(t, store, queue.NewTaskHandler(func(_ context.Context, p confirmPayload) error {
			got = p
			return nil
		}))

		require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{Reference: "ref-1"}))

		ok, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ref-1", got.Reference)

		tasks := store.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, queue.TaskStatusCompleted, tasks[0].Status)
		assert.NotNil(t, tasks[0].ProcessedAt)
	})

	t.Run("idle when nothing is due", func(t *testing.T) {
		t.Parallel()
		store, enq, _ := setup(t)
		w := newWorker(t, store, queue.NewTaskHandler(func(context.Context, confirmPayload) error { return nil }))

		require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{}, queue.WithDelay(time.Minute)))

		ok, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("retries with backoff then moves to the dead letter queue", func(t *testing.T) {
		t.Parallel()
		store, enq, c := setup(t)

		var calls atomic.Int32
		w := newWorker(t, store, queue.NewTaskHandler(func(context.Context, confirmPayload) error {
			calls.Add(1)
			return errors.New("provider unavailable")
		}))

		require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{Reference: "ref-2"}, queue.WithMaxRetries(2)))

		ok, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		tasks := store.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, queue.TaskStatusPending, tasks[0].Status)
		assert.Equal(t, int8(1), tasks[0].RetryCount)
		assert.Equal(t, c.Now().Add(queue.RetryBackoff(1)), tasks[0].ScheduledAt)

		ok, err = w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.False(t, ok, "backoff keeps the task out of reach")

		c.Advance(queue.RetryBackoff(1))
		ok, err = w.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, int32(2), calls.Load())
		assert.Empty(t, store.Tasks())
		dead := store.DeadTasks()
		require.Len(t, dead, 1)
		assert.Equal(t, "provider unavailable", dead[0].Error)
		assert.Equal(t, int8(2), dead[0].RetryCount)
	})

	t.Run("panicking handler counts as a failure", func(t *testing.T) {
		t.Parallel()
		store, enq, _ := setup(t)
		w := newWorker(t, store, queue.NewTaskHandler(func(context.Context, confirmPayload) error {
			panic("boom")
		}))

		require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{}, queue.WithMaxRetries(0)))

		ok, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		dead := store.DeadTasks()
		require.Len(t, dead, 1)
		assert.Contains(t, dead[0].Error, "boom")
	})

	t.Run("unknown task goes straight to the dead letter queue", func(t *testing.T) {
		t.Parallel()
		store, enq, _ := setup(t)
		w := newWorker(t, store, queue.NewPeriodicTaskHandler("billing.sweep", func(context.Context) error { return nil }))

		require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{}, queue.WithMaxRetries(5)))

		_, err := w.ProcessNext(context.Background())
		assert.ErrorIs(t, err, queue.ErrHandlerNotFound)
		assert.Len(t, store.DeadTasks(), 1)
	})

	t.Run("higher priority is claimed first", func(t *testing.T) {
		t.Parallel()
		store, enq, _ := setup(t)

		var order []string
		w := newWorker(t, store, queue.NewTaskHandler(func(_ context.Context, p confirmPayload) error {
			order = append(order, p.Reference)
			return nil
		}))

		ctx := context.Background()
		require.NoError(t, enq.Enqueue(ctx, confirmPayload{Reference: "low"}, queue.WithPriority(queue.PriorityLow)))
		require.NoError(t, enq.Enqueue(ctx, confirmPayload{Reference: "high"}, queue.WithPriority(queue.PriorityHigh)))

		for range 2 {
			_, err := w.ProcessNext(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"high", "low"}, order)
	})
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(store)
	require.NoError(t, err)

	done := make(chan string, 1)
	w := newWorker(t, store, queue.NewTaskHandler(func(_ context.Context, p confirmPayload) error {
		done <- p.Reference
		return nil
	}))

	_, err = queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrWorkerStarted)

	require.NoError(t, enq.Enqueue(context.Background(), confirmPayload{Reference: "async"}))

	select {
	case ref := <-done:
		assert.Equal(t, "async", ref)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}
	require.NoError(t, w.Stop())

	assert.Eventually(t, func() bool {
		tasks := store.Tasks()
		return len(tasks) == 1 && tasks[0].Status == queue.TaskStatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_NoHandlers(t *testing.T) {
	t.Parallel()

	w, err := queue.NewWorker(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
}

type mockWorkerRepository struct {
	mock.Mock
}

func (m *mockWorkerRepository) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*queue.Task, error) {
	args := m.Called(ctx, workerID, queues, lock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Task), args.Error(1)
}

func (m *mockWorkerRepository) CompleteTask(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockWorkerRepository) FailTask(ctx context.Context, id uuid.UUID, msg string) error {
	return m.Called(ctx, id, msg).Error(0)
}

func (m *mockWorkerRepository) MoveToDLQ(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockWorkerRepository) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	return m.Called(ctx, id, d).Error(0)
}

func TestWorker_StorageErrors(t *testing.T) {
	t.Parallel()

	t.Run("claim failure is reported", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ClaimTask", mock.Anything, mock.Anything, []string{queue.DefaultQueueName}, mock.Anything).
			Return(nil, errors.New("connection reset")).Once()

		w := newWorker(t, repo, queue.NewTaskHandler(func(context.Context, confirmPayload) error { return nil }))
		ok, err := w.ProcessNext(context.Background())
		assert.False(t, ok)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("complete failure is reported", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepository)
		defer repo.AssertExpectations(t)

		task := &queue.Task{ID: uuid.New(), TaskName: queue.TaskName(confirmPayload{}), Payload: []byte(`{}`)}
		repo.On("ClaimTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(task, nil).Once()
		repo.On("CompleteTask", mock.Anything, task.ID).Return(queue.ErrTaskNotProcessing).Once()

		w := newWorker(t, repo, queue.NewTaskHandler(func(context.Context, confirmPayload) error { return nil }))
		ok, err := w.ProcessNext(context.Background())
		assert.True(t, ok)
		assert.ErrorIs(t, err, queue.ErrTaskNotProcessing)
	})
}
