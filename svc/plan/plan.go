package plan

import (
	"maps"
	"slices"
	"time"
)

// ID identifies a plan in the catalog.
type ID string

const (
	Starter      ID = "starter"
	Professional ID = "professional"
	Enterprise   ID = "enterprise"
)

// Metric is a metered action with a per-period quota.
type Metric string

const (
	ContentGenerations  Metric = "contentGenerations"
	AudioTranscriptions Metric = "audioTranscriptions"
	ImageGenerations    Metric = "imageGenerations"
	APICalls            Metric = "apiCalls"
)

// Metrics lists every metered action in display order.
var Metrics = []Metric{ContentGenerations, AudioTranscriptions, ImageGenerations, APICalls}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return slices.Contains(Metrics, m)
}

// Unlimited marks a quota without an upper bound.
const Unlimited int64 = -1

// Limits maps a metric to its quota per billing period.
type Limits map[Metric]int64

// Limit returns the quota for m. Metrics absent from the map have a zero quota.
func (l Limits) Limit(m Metric) int64 {
	return l[m]
}

// Clone returns an independent copy.
func (l Limits) Clone() Limits {
	if l == nil {
		return Limits{}
	}
	return maps.Clone(l)
}

// BillingCycle is the length of a paid term.
type BillingCycle string

const (
	Monthly BillingCycle = "monthly"
	Yearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == Monthly || c == Yearly
}

// Extend returns t moved forward by one cycle in calendar terms.
func (c BillingCycle) Extend(t time.Time) time.Time {
	if c == Yearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Plan is an immutable catalog entry. Prices are in minor currency units.
type Plan struct {
	ID              ID           `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Price           int64        `json:"price" yaml:"price"`
	YearlyPrice     int64        `json:"yearlyPrice,omitempty" yaml:"yearly_price"`
	Currency        string       `json:"currency" yaml:"currency"`
	BillingInterval BillingCycle `json:"billingInterval" yaml:"billing_interval"`
	Limits          Limits       `json:"limits" yaml:"limits"`
	Features        []string     `json:"features" yaml:"features"`
}

// Free reports whether subscribing requires no payment.
func (p Plan) Free() bool {
	return p.Price == 0
}

// PriceFor returns the amount charged for one term of the given cycle.
// Without an explicit yearly price a year costs twelve monthly payments.
func (p Plan) PriceFor(cycle BillingCycle) int64 {
	if cycle == Yearly {
		if p.YearlyPrice > 0 {
			return p.YearlyPrice
		}
		return p.Price * 12
	}
	return p.Price
}

// HasFeature reports whether the plan grants a capability.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

func (p Plan) clone() Plan {
	p.Limits = p.Limits.Clone()
	p.Features = slices.Clone(p.Features)
	return p
}
