package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/entitle/pkg/config"
	"github.com/dmitrymomot/entitle/pkg/httpserver"
	"github.com/dmitrymomot/entitle/pkg/jwt"
	"github.com/dmitrymomot/entitle/pkg/mongo"
	"github.com/dmitrymomot/entitle/pkg/pg"
	"github.com/dmitrymomot/entitle/pkg/queue"
	"github.com/dmitrymomot/entitle/pkg/ratelimiter"
	"github.com/dmitrymomot/entitle/pkg/redis"
	"github.com/dmitrymomot/entitle/svc/confirmation"
	"github.com/dmitrymomot/entitle/svc/notify"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/subscription"
	"github.com/dmitrymomot/entitle/svc/sweeper"
)

const (
	usageBackendPostgres = "postgres"
	usageBackendMongo    = "mongo"
)

// Config is the whole process configuration.
type Config struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	Service   string `env:"SERVICE_NAME" envDefault:"entitle"`
	LogLevel  string `env:"LOG_LEVEL"`
	PlansFile string `env:"PLANS_FILE"`

	UsageBackend    string        `env:"USAGE_BACKEND" envDefault:"postgres"`
	UsageCollection string        `env:"USAGE_MONGO_COLLECTION" envDefault:"usage_records"`
	ReservationTTL  time.Duration `env:"ENTITLEMENT_RESERVATION_TTL" envDefault:"10m"`
	HealthTimeout   time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`

	HTTP         httpserver.Config
	PG           pg.Config
	Redis        redis.Config
	Mongo        mongo.Config
	Queue        queue.Config
	JWT          jwt.Config
	RateLimit    ratelimiter.Config
	Payment      payment.Config
	Subscription subscription.Config
	Confirmation confirmation.Config
	Sweeper      sweeper.Config
	Notify       notify.Config
}

// Validate checks every section so a misconfigured process never starts.
func (c Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, fmt.Errorf("%w: JWT_SECRET", config.ErrMissingSecret))
	}
	switch c.UsageBackend {
	case usageBackendPostgres, usageBackendMongo:
	default:
		errs = append(errs, fmt.Errorf("%w: USAGE_BACKEND must be postgres or mongo, got %q", config.ErrInvalidValue, c.UsageBackend))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("%w: RATE_LIMIT_BACKEND must be memory or redis, got %q", config.ErrInvalidValue, c.RateLimit.Backend))
	}
	if _, err := queue.ParseSchedule(c.Sweeper.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("%w: SWEEPER_SCHEDULE: %v", config.ErrInvalidValue, err))
	}
	errs = append(errs, c.Payment.Validate(), c.Confirmation.Validate())
	return errors.Join(errs...)
}
