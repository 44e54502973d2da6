package payment

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/entitle/pkg/config"
)

// Config holds settings shared by the provider adapters.
type Config struct {
	RequestTimeout   time.Duration `env:"PAYMENT_REQUEST_TIMEOUT" envDefault:"30s"`
	TokenSkew        time.Duration `env:"PAYMENT_TOKEN_SKEW" envDefault:"30s"`
	BreakerFailures  int           `env:"PAYMENT_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccesses int           `env:"PAYMENT_BREAKER_SUCCESSES" envDefault:"2"`
	BreakerRecovery  time.Duration `env:"PAYMENT_BREAKER_RECOVERY" envDefault:"30s"`

	Card   CardConfig
	MTN    MTNConfig
	Airtel AirtelConfig
}

// CardConfig configures the Paddle hosted checkout.
type CardConfig struct {
	Enabled     bool   `env:"PADDLE_ENABLED" envDefault:"false"`
	APIKey      string `env:"PADDLE_API_KEY"`
	Sandbox     bool   `env:"PADDLE_SANDBOX" envDefault:"true"`
	CheckoutURL string `env:"PADDLE_CHECKOUT_URL"`
	// PriceIDs maps "plan:cycle" to a Paddle catalog price, e.g. "professional:monthly=pri_01".
	PriceIDs map[string]string `env:"PADDLE_PRICE_IDS" envSeparator:"," envKeyValSeparator:"="`
}

// MTNConfig configures the MTN MoMo collection API.
type MTNConfig struct {
	Enabled           bool   `env:"MTN_ENABLED" envDefault:"false"`
	BaseURL           string `env:"MTN_BASE_URL" envDefault:"https://sandbox.momodeveloper.mtn.com"`
	SubscriptionKey   string `env:"MTN_SUBSCRIPTION_KEY"`
	APIUser           string `env:"MTN_API_USER"`
	APIKey            string `env:"MTN_API_KEY"`
	TargetEnvironment string `env:"MTN_TARGET_ENVIRONMENT" envDefault:"sandbox"`
	CallbackURL       string `env:"MTN_CALLBACK_URL"`
	// Currency pins the account currency; charges priced otherwise are
	// rejected. The sandbox only accepts EUR.
	Currency string `env:"MTN_CURRENCY"`
}

// AirtelConfig configures the Airtel Money merchant API.
type AirtelConfig struct {
	Enabled      bool   `env:"AIRTEL_ENABLED" envDefault:"false"`
	BaseURL      string `env:"AIRTEL_BASE_URL" envDefault:"https://openapiuat.airtel.africa"`
	ClientID     string `env:"AIRTEL_CLIENT_ID"`
	ClientSecret string `env:"AIRTEL_CLIENT_SECRET"`
	Country      string `env:"AIRTEL_COUNTRY" envDefault:"UG"`
	// Currency is the wallet currency; charges priced otherwise are rejected.
	Currency string `env:"AIRTEL_CURRENCY" envDefault:"UGX"`
}

// Validate fails when an enabled provider is missing its credentials.
func (c Config) Validate() error {
	if c.Card.Enabled && c.Card.APIKey == "" {
		return fmt.Errorf("%w: PADDLE_API_KEY", config.ErrMissingSecret)
	}
	if c.MTN.Enabled && (c.MTN.SubscriptionKey == "" || c.MTN.APIUser == "" || c.MTN.APIKey == "") {
		return fmt.Errorf("%w: MTN_SUBSCRIPTION_KEY, MTN_API_USER and MTN_API_KEY", config.ErrMissingSecret)
	}
	if c.Airtel.Enabled && (c.Airtel.ClientID == "" || c.Airtel.ClientSecret == "") {
		return fmt.Errorf("%w: AIRTEL_CLIENT_ID and AIRTEL_CLIENT_SECRET", config.ErrMissingSecret)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: PAYMENT_REQUEST_TIMEOUT must be positive", config.ErrInvalidValue)
	}
	return nil
}
