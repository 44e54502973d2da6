package subscription

import (
	"time"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// Config holds subscription settings.
type Config struct {
	TrialPeriod time.Duration `env:"SUBSCRIPTION_TRIAL_PERIOD" envDefault:"336h"`
	DefaultPlan plan.ID       `env:"SUBSCRIPTION_DEFAULT_PLAN" envDefault:"starter"`
	CacheSize   int           `env:"SUBSCRIPTION_CACHE_SIZE" envDefault:"4096"`
	CacheTTL    time.Duration `env:"SUBSCRIPTION_CACHE_TTL" envDefault:"30s"`
}
