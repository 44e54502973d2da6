package confirmation

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/entitle/pkg/config"
)

type Config struct {
	Secret        string        `env:"WEBHOOK_SECRET"`
	Tolerance     time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	PaddleSecret  string        `env:"PADDLE_WEBHOOK_SECRET"`
	DedupeTTL     time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"24h"`
	DedupeSize    int           `env:"WEBHOOK_DEDUPE_SIZE" envDefault:"10000"`
	MaxBodyBytes  int64         `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"65536"`
	TaskRetries   int8          `env:"WEBHOOK_TASK_RETRIES" envDefault:"5"`
	PaddleEnabled bool          `env:"PADDLE_ENABLED" envDefault:"false"`
}

// Validate requires the signing secrets of every enabled webhook source.
func (c Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("%w: WEBHOOK_SECRET", config.ErrMissingSecret)
	}
	if c.PaddleEnabled && c.PaddleSecret == "" {
		return fmt.Errorf("%w: PADDLE_WEBHOOK_SECRET", config.ErrMissingSecret)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: WEBHOOK_MAX_BODY_BYTES must be positive", config.ErrInvalidValue)
	}
	return nil
}
