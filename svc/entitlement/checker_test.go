package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/svc/entitlement"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
	"github.com/dmitrymomot/entitle/svc/usage"
)

var now = time.Date(2026, time.April, 15, 10, 0, 0, 0, time.UTC)

type env struct {
	subs    *subscription.MemoryStore
	ledger  *usage.Ledger
	checker *entitlement.Checker
}

func newEnv(t *testing.T, opts ...entitlement.Option) *env {
	t.Helper()
	e := &env{subs: subscription.NewMemoryStore()}
	clock := func() time.Time { return now }
	e.ledger = usage.NewLedger(usage.NewMemoryStore(), usage.WithClock(clock))
	opts = append([]entitlement.Option{
		entitlement.WithClock(clock),
		entitlement.WithMetrics(metrics.New()),
		entitlement.WithLogger(logger.Discard()),
	}, opts...)
	e.checker = entitlement.NewChecker(e.subs, e.ledger, opts...)
	return e
}

func (e *env) subscribe(t *testing.T, userID string, status subscription.Status, limits plan.Limits) {
	t.Helper()
	end := now.Add(24 * time.Hour)
	s := &subscription.Subscription{
		UserID: userID, Plan: plan.Starter, Status: status, StartDate: now.Add(-time.Hour),
		Limits: limits, AutoRenew: true,
	}
	switch status {
	case subscription.StatusTrial:
		s.TrialEndDate = &end
	case subscription.StatusCancelled:
		s.EndDate = &end
	}
	require.NoError(t, e.subs.Create(context.Background(), s))
}

func (e *env) use(t *testing.T, userID string, metric plan.Metric, n int) {
	t.Helper()
	for range n {
		_, err := e.checker.RecordUsage(context.Background(), userID, metric, 1, usage.Metadata{})
		require.NoError(t, err)
	}
}

func TestCheckUsageLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("boundary", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.subscribe(t, "u1", subscription.StatusTrial, plan.Limits{plan.ContentGenerations: 5})

		for i := range 5 {
			res, err := e.checker.CheckUsageLimit(ctx, "u1", plan.ContentGenerations)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, int64(5-i), res.Remaining)
			e.use(t, "u1", plan.ContentGenerations, 1)
		}

		res, err := e.checker.CheckUsageLimit(ctx, "u1", plan.ContentGenerations)
		require.NoError(t, err)
		assert.Equal(t, entitlement.Result{
			Allowed: false, Remaining: 0, Limit: 5, Used: 5, Metric: plan.ContentGenerations,
		}, res)
	})

	t.Run("remaining never negative", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.APICalls: 3})
		e.use(t, "u1", plan.APICalls, 7)

		res, err := e.checker.CheckUsageLimit(ctx, "u1", plan.APICalls)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.Equal(t, int64(7), res.Used)
	})

	t.Run("unlimited", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.ImageGenerations: plan.Unlimited})
		e.use(t, "u1", plan.ImageGenerations, 100)

		res, err := e.checker.CheckUsageLimit(ctx, "u1", plan.ImageGenerations)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, entitlement.Unbounded, res.Remaining)
	})

	t.Run("no access without a live subscription", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.subscribe(t, "inactive", subscription.StatusInactive, plan.Limits{plan.APICalls: 100})
		e.subscribe(t, "pending", subscription.StatusPendingPayment, plan.Limits{plan.APICalls: 100})
		e.subscribe(t, "cancelled", subscription.StatusCancelled, plan.Limits{plan.APICalls: 100})

		for _, id := range []string{"inactive", "pending"} {
			res, err := e.checker.CheckUsageLimit(ctx, id, plan.APICalls)
			require.NoError(t, err)
			assert.False(t, res.Allowed, id)
			assert.Zero(t, res.Remaining, id)
		}

		res, err := e.checker.CheckUsageLimit(ctx, "cancelled", plan.APICalls)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "cancelled keeps access until its end date")
	})

	t.Run("pending charge keeps the running term", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		end := now.Add(24 * time.Hour)
		require.NoError(t, e.subs.Create(ctx, &subscription.Subscription{
			UserID: "u1", Plan: plan.Starter, Status: subscription.StatusPendingPayment, StartDate: now.Add(-time.Hour),
			EndDate: &end, Limits: plan.Limits{plan.APICalls: 100},
			PaymentDetails: &subscription.PaymentDetails{TransactionID: "tx-1", ResumeStatus: subscription.StatusActive},
		}))

		res, err := e.checker.CheckUsageLimit(ctx, "u1", plan.APICalls)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(100), res.Remaining)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.checker.CheckUsageLimit(ctx, "ghost", plan.APICalls)
		assert.ErrorIs(t, err, subscription.ErrNotFound)

		_, err = e.checker.CheckUsageLimit(ctx, "ghost", "tokens")
		assert.ErrorIs(t, err, usage.ErrUnknownMetric)
	})

	t.Run("limits lists every metric", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		starter, err := plan.Default().GetPlan(ctx, plan.Starter)
		require.NoError(t, err)
		e.subscribe(t, "u1", subscription.StatusTrial, starter.Limits)
		all, err := e.checker.Limits(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, all, len(plan.Metrics))
		assert.Equal(t, plan.ContentGenerations, all[0].Metric)
	})
}

type fakeGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *fakeGenerator) GenerateContent(_ context.Context, prompt string, _ entitlement.GenerateOptions) (string, int64, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", 0, g.err
	}
	return "echo: " + prompt, 42, nil
}

func TestGenerateSixthRequestDenied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.subscribe(t, "u1", subscription.StatusTrial, plan.Limits{plan.ContentGenerations: 5})
	e.use(t, "u1", plan.ContentGenerations, 5)

	gen := &fakeGenerator{}
	_, err := entitlement.Generate(ctx, e.checker, gen, "u1", "hello", entitlement.GenerateOptions{})

	var limitErr *entitlement.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, entitlement.ErrLimitExceeded)
	assert.Equal(t, int64(5), limitErr.Limit)
	assert.Zero(t, limitErr.Remaining)
	assert.Zero(t, gen.calls.Load(), "provider must not be called")

	n, err := e.ledger.CurrentUsage(ctx, "u1", plan.ContentGenerations)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestGenerateRecordsOnlyOnSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, entitlement.WithReserver(entitlement.NewMemoryReserver()))
	e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.ContentGenerations: 5})

	failing := &fakeGenerator{err: errors.New("model overloaded")}
	_, err := entitlement.Generate(ctx, e.checker, failing, "u1", "hi", entitlement.GenerateOptions{})
	assert.EqualError(t, err, "model overloaded")

	text, err := entitlement.Generate(ctx, e.checker, &fakeGenerator{}, "u1", "hi", entitlement.GenerateOptions{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", text)

	sum, err := e.ledger.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Usage[plan.ContentGenerations])
	assert.Equal(t, int64(42), sum.TotalTokensUsed)
}

func testStrictAdmission(t *testing.T, reserver entitlement.Reserver) {
	ctx := context.Background()
	e := newEnv(t, entitlement.WithReserver(reserver))
	e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.ImageGenerations: 5})
	e.use(t, "u1", plan.ImageGenerations, 1)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		denied   atomic.Int32
		release  = make(chan struct{})
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := entitlement.Guard(ctx, e.checker, "u1", plan.ImageGenerations,
				func(context.Context) (struct{}, usage.Metadata, error) {
					admitted.Add(1)
					<-release
					return struct{}{}, usage.Metadata{}, nil
				})
			if errors.Is(err, entitlement.ErrLimitExceeded) {
				denied.Add(1)
				return
			}
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return admitted.Load()+denied.Load() == 20 },
		2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 4, admitted.Load())
	assert.EqualValues(t, 16, denied.Load())

	n, err := e.ledger.CurrentUsage(ctx, "u1", plan.ImageGenerations)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestStrictAdmissionMemory(t *testing.T) {
	t.Parallel()
	r := entitlement.NewMemoryReserver()
	testStrictAdmission(t, r)
	assert.Zero(t, r.InFlight("u1", plan.ImageGenerations))
}

func TestStrictAdmissionRedis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	testStrictAdmission(t, entitlement.NewRedisReserver(client, "test:", time.Minute))
	assert.Equal(t, "0", mr.HGet("test:reserve:u1:imageGenerations", "n"), "counter drained")
	assert.Positive(t, mr.TTL("test:reserve:u1:imageGenerations"))
}

// settlingUsage runs settle once, right after the first usage read it serves
// once armed, so a concurrent commit lands between a read and its acquire.
type settlingUsage struct {
	*usage.Ledger
	armed  atomic.Bool
	settle func()
	once   sync.Once
}

func (u *settlingUsage) CurrentUsage(ctx context.Context, userID string, metric plan.Metric) (int64, error) {
	n, err := u.Ledger.CurrentUsage(ctx, userID, metric)
	if u.armed.Load() {
		u.once.Do(u.settle)
	}
	return n, err
}

func testCommitBetweenReadAndAcquire(t *testing.T, reserver entitlement.Reserver) {
	ctx := context.Background()
	e := newEnv(t)
	e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.APICalls: 5})
	e.use(t, "u1", plan.APICalls, 3)

	u := &settlingUsage{Ledger: e.ledger}
	checker := entitlement.NewChecker(e.subs, u,
		entitlement.WithReserver(reserver),
		entitlement.WithClock(func() time.Time { return now }),
		entitlement.WithLogger(logger.Discard()))

	first, err := checker.Reserve(ctx, "u1", plan.APICalls, 1)
	require.NoError(t, err)
	_, err = checker.RecordUsage(ctx, "u1", plan.APICalls, 1, usage.Metadata{})
	require.NoError(t, err, "an unreserved report brings usage to 4")

	u.settle = func() {
		_, err := first.Commit(ctx, usage.Metadata{})
		assert.NoError(t, err)
	}
	u.armed.Store(true)

	_, err = checker.Reserve(ctx, "u1", plan.APICalls, 1)
	assert.ErrorIs(t, err, entitlement.ErrLimitExceeded, "the settled commit used the last unit")

	n, err := e.ledger.CurrentUsage(ctx, "u1", plan.APICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCommitBetweenReadAndAcquire(t *testing.T) {
	t.Parallel()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		testCommitBetweenReadAndAcquire(t, entitlement.NewMemoryReserver())
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		testCommitBetweenReadAndAcquire(t, entitlement.NewRedisReserver(client, "test:", time.Minute))
	})
}

func TestReserveWithoutReserver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.subscribe(t, "u1", subscription.StatusActive, plan.Limits{plan.APICalls: 10})
	e.use(t, "u1", plan.APICalls, 8)

	_, err := e.checker.Reserve(ctx, "u1", plan.APICalls, 3)
	assert.ErrorIs(t, err, entitlement.ErrLimitExceeded)

	r, err := e.checker.Reserve(ctx, "u1", plan.APICalls, 2)
	require.NoError(t, err)
	_, err = r.Commit(ctx, usage.Metadata{})
	require.NoError(t, err)
	r.Release(ctx)

	_, err = e.checker.Reserve(ctx, "u1", plan.APICalls, 0)
	assert.ErrorIs(t, err, usage.ErrInvalidAmount)
}
