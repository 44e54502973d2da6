// Command server runs the subscription and usage API together with the
// background worker that applies payment confirmations and sweeps expired
// subscriptions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/migrations"
	"github.com/dmitrymomot/entitle/modules/billing"
	"github.com/dmitrymomot/entitle/pkg/clientip"
	"github.com/dmitrymomot/entitle/pkg/config"
	"github.com/dmitrymomot/entitle/pkg/httpserver"
	"github.com/dmitrymomot/entitle/pkg/jwt"
	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/pkg/mongo"
	"github.com/dmitrymomot/entitle/pkg/pg"
	"github.com/dmitrymomot/entitle/pkg/queue"
	"github.com/dmitrymomot/entitle/pkg/ratelimiter"
	"github.com/dmitrymomot/entitle/pkg/redis"
	"github.com/dmitrymomot/entitle/pkg/requestid"
	"github.com/dmitrymomot/entitle/svc/confirmation"
	"github.com/dmitrymomot/entitle/svc/entitlement"
	"github.com/dmitrymomot/entitle/svc/notify"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
	"github.com/dmitrymomot/entitle/svc/sweeper"
	"github.com/dmitrymomot/entitle/svc/usage"
)

func main() {
	var cfg Config
	config.MustLoad(&cfg)

	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithContextExtractors(requestid.LoggerExtractor, jwt.LoggerExtractor),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	log := logger.New(opts...)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	m := metrics.New()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	}()

	checks := map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	}

	catalog := plan.Default()
	if cfg.PlansFile != "" {
		if catalog, err = plan.LoadFile(cfg.PlansFile); err != nil {
			return err
		}
	}

	var usageStore usage.Store = usage.NewPostgresStore(pool)
	if cfg.UsageBackend == usageBackendMongo {
		db, err := mongo.Database(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Client().Disconnect(context.WithoutCancel(ctx)); err != nil {
				log.Error("failed to disconnect mongo", logger.Error(err))
			}
		}()
		ms := usage.NewMongoStore(db, cfg.UsageCollection)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return err
		}
		usageStore = ms
		checks["mongo"] = mongo.Healthcheck(db.Client())
	}

	gateway, err := newGateway(cfg.Payment, m, log)
	if err != nil {
		return err
	}

	subOpts := []subscription.Option{
		subscription.WithConfig(cfg.Subscription),
		subscription.WithMetrics(m),
		subscription.WithLogger(log),
	}
	if cfg.Notify.Enabled() {
		sender, err := notify.NewPostmarkSender(cfg.Notify)
		if err != nil {
			return err
		}
		subOpts = append(subOpts, subscription.WithNotifier(
			notify.New(sender, catalog, notify.WithConfig(cfg.Notify), notify.WithLogger(log))))
	} else {
		log.Warn("email notifications disabled: POSTMARK_SERVER_TOKEN is not set")
	}
	subStore := subscription.NewCachedStore(subscription.NewPostgresStore(pool), cfg.Subscription.CacheSize, cfg.Subscription.CacheTTL)
	subs := subscription.NewService(subStore, catalog, gateway, subOpts...)

	ledger := usage.NewLedger(usageStore, usage.WithLogger(log))
	checker := entitlement.NewChecker(subs, ledger,
		entitlement.WithReserver(entitlement.NewRedisReserver(rdb, cfg.Redis.KeyPrefix, cfg.ReservationTTL)),
		entitlement.WithMetrics(m),
		entitlement.WithLogger(log))

	// Queue
	taskStore := queue.NewPostgresStorage(pool)
	enqueuer, err := queue.NewEnqueuer(taskStore)
	if err != nil {
		return err
	}
	confirmations := confirmation.NewHandler(subs,
		confirmation.WithConfig(cfg.Confirmation),
		confirmation.WithEnqueuer(enqueuer),
		confirmation.WithDeduper(confirmation.NewRedisDeduper(rdb, cfg.Redis.KeyPrefix, cfg.Confirmation.DedupeTTL)),
		confirmation.WithMetrics(m),
		confirmation.WithLogger(log))
	sw := sweeper.New(subStore, subs,
		sweeper.WithPendingTimeout(cfg.Sweeper.PendingTimeout),
		sweeper.WithMetrics(m),
		sweeper.WithLogger(log))

	worker, err := queue.NewWorker(taskStore, append(cfg.Queue.WorkerOptions(), queue.WithWorkerLogger(log))...)
	if err != nil {
		return err
	}
	if err := worker.RegisterHandlers(
		queue.NewTaskHandler[confirmation.ConfirmTask](confirmations.Process),
		queue.NewPeriodicTaskHandler(sweeper.TaskName, sw.Task),
	); err != nil {
		return err
	}
	scheduler, err := queue.NewScheduler(taskStore,
		queue.WithCheckInterval(cfg.Queue.SchedulerInterval),
		queue.WithSchedulerLogger(log))
	if err != nil {
		return err
	}
	if err := scheduler.AddTask(sweeper.TaskName, queue.MustParseSchedule(cfg.Sweeper.Schedule)); err != nil {
		return err
	}

	// HTTP
	tokens, err := jwt.New(cfg.JWT)
	if err != nil {
		return err
	}
	limiter, err := newLimiter(cfg, rdb)
	if err != nil {
		return err
	}

	errs := handler.NewErrorHandler(log, billing.ErrorMapper)
	protect := billing.WithProtection(
		jwt.Middleware(tokens, jwt.WithErrorHandler(handler.HTTPErrorWriter(errs))),
		ratelimiter.Middleware(limiter, billing.RateLimitKey,
			ratelimiter.WithErrorHandler(billing.RateLimitErrorHandler(errs))),
		billing.EnsureSubscription(subs, errs),
	)
	parsers := billing.Parsers{Signed: confirmation.NewSignedParser(cfg.Confirmation.Secret, cfg.Confirmation.Tolerance)}
	if cfg.Confirmation.PaddleEnabled {
		parsers.Paddle = confirmation.NewPaddleParser(cfg.Confirmation.PaddleSecret)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(cfg.HTTP.TrustProxy))
	r.Use(m.Middleware)

	r.Get("/health/live", httpserver.Live())
	r.Get("/health/ready", httpserver.Ready(log, cfg.HealthTimeout, checks))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Mount("/", billing.Router(billing.RouterOptions{
		Subscription: billing.NewSubscriptionService(subs, catalog, protect, billing.WithErrorHandler(errs)),
		Usage:        billing.NewUsageService(ledger, checker, protect, billing.WithErrorHandler(errs)),
		Payments:     billing.NewPaymentService(subs, confirmations, parsers, protect, billing.WithErrorHandler(errs)),
	}))

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log), httpserver.WithTracing(cfg.Service))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, r) })
	g.Go(worker.Run(gctx))
	g.Go(scheduler.Run(gctx))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newGateway(cfg payment.Config, m *metrics.Metrics, log *slog.Logger) (*payment.Gateway, error) {
	opts := []payment.GatewayOption{payment.WithMetrics(m), payment.WithLogger(log)}
	if cfg.Card.Enabled {
		card, err := payment.NewCardProvider(cfg.Card, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, payment.WithProvider(card))
	}
	if cfg.MTN.Enabled {
		opts = append(opts, payment.WithProvider(payment.NewMTNProvider(cfg.MTN, cfg)))
	}
	if cfg.Airtel.Enabled {
		opts = append(opts, payment.WithProvider(payment.NewAirtelProvider(cfg.Airtel, cfg)))
	}

	g := payment.NewGateway(opts...)
	if len(g.Kinds()) == 0 {
		log.Warn("no payment provider enabled: paid plans cannot be purchased")
	}
	return g, nil
}

func newLimiter(cfg Config, rdb goredis.Cmdable) (*ratelimiter.Limiter, error) {
	var store ratelimiter.Store
	if cfg.RateLimit.Backend == "redis" {
		store = ratelimiter.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	} else {
		store = ratelimiter.NewMemoryStore()
	}
	return ratelimiter.New(store, cfg.RateLimit)
}
