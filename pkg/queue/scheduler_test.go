package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/queue"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 1, 12, 7, 0, 0, time.UTC)

	tests := []struct {
		spec string
		next time.Time
	}{
		{"15m", from.Add(15 * time.Minute)},
		{"@every 1h", from.Add(time.Hour)},
		{"*/10 * * * *", time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"0 3 * * 1", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			s, err := queue.ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.next, s.Next(from))
			assert.NotEmpty(t, s.String())
		})
	}

	for _, bad := range []string{"", "-5m", "not a cron", "61 * * * *"} {
		_, err := queue.ParseSchedule(bad)
		assert.ErrorIs(t, err, queue.ErrInvalidSchedule, bad)
	}
	assert.Panics(t, func() { queue.MustParseSchedule("nope") })
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := queue.NewMemoryStorage().WithClock(c.Now)

	s, err := queue.NewScheduler(store,
		queue.WithSchedulerClock(c.Now),
		queue.WithSchedulerLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, s.AddTask("billing.sweep", queue.EveryInterval(time.Minute), queue.WithTaskMaxRetries(1)))
	assert.ErrorIs(t, s.AddTask("billing.sweep", queue.EveryInterval(time.Hour)), queue.ErrTaskAlreadyRegistered)
	assert.Equal(t, []string{"billing.sweep"}, s.ListTasks())

	ctx := context.Background()
	s.Tick(ctx)

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskTypePeriodic, tasks[0].TaskType)
	assert.Equal(t, c.Now().Add(time.Minute), tasks[0].ScheduledAt)
	assert.Equal(t, int8(1), tasks[0].MaxRetries)

	c.Advance(30 * time.Second)
	s.Tick(ctx)
	assert.Len(t, store.Tasks(), 1, "not due yet")

	c.Advance(time.Minute)
	s.Tick(ctx)
	assert.Len(t, store.Tasks(), 1, "previous run still pending")

	w := newWorker(t, store, queue.NewPeriodicTaskHandler("billing.sweep", func(context.Context) error { return nil }))
	ok, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	c.Advance(time.Minute)
	s.Tick(ctx)
	pending := 0
	for _, task := range store.Tasks() {
		if task.Status == queue.TaskStatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
}

func TestScheduler_SharedStore(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := queue.NewMemoryStorage().WithClock(c.Now)

	for range 3 {
		s, err := queue.NewScheduler(store, queue.WithSchedulerClock(c.Now), queue.WithSchedulerLogger(logger.Discard()))
		require.NoError(t, err)
		require.NoError(t, s.AddTask("billing.sweep", queue.MustParseSchedule("*/5 * * * *")))
		s.Tick(context.Background())
	}
	assert.Len(t, store.Tasks(), 1)
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	s, err := queue.NewScheduler(store, queue.WithSchedulerLogger(logger.Discard()))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(context.Background()), queue.ErrSchedulerNotConfigured)

	require.NoError(t, s.AddTask("billing.sweep", queue.EveryInterval(time.Hour)))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx)() }()

	assert.Eventually(t, func() bool { return len(store.Tasks()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-errc)
}

func TestEnqueuer(t *testing.T) {
	t.Parallel()

	_, err := queue.NewEnqueuer(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	store, enq, c := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, enq.Enqueue(ctx, nil), queue.ErrPayloadNil)
	assert.ErrorIs(t, enq.Enqueue(ctx, confirmPayload{}, queue.WithPriority(101)), queue.ErrInvalidPriority)

	at := c.Now().Add(time.Hour)
	require.NoError(t, enq.Enqueue(ctx, &confirmPayload{Reference: "r"},
		queue.WithQueue("billing"),
		queue.WithScheduledAt(at),
		queue.WithTaskName("custom")))

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "billing", tasks[0].Queue)
	assert.Equal(t, "custom", tasks[0].TaskName)
	assert.Equal(t, at, tasks[0].ScheduledAt)
	assert.JSONEq(t, `{"reference":"r"}`, string(tasks[0].Payload))
	assert.Equal(t, queue.TaskName(confirmPayload{}), queue.TaskName(&confirmPayload{}))
}
