package plan

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Catalog is the read-only plan lookup.
type Catalog interface {
	GetPlan(ctx context.Context, id ID) (Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}

// MemoryCatalog holds plans in memory. It is built once and never mutated, so
// it is safe for concurrent use; every returned plan is a deep copy.
type MemoryCatalog struct {
	plans map[ID]Plan
	order []ID
}

// NewMemoryCatalog validates plans and builds a catalog ordered by monthly price.
func NewMemoryCatalog(plans ...Plan) (*MemoryCatalog, error) {
	c := &MemoryCatalog{plans: make(map[ID]Plan, len(plans))}
	for _, p := range plans {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, ok := c.plans[p.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlan, p.ID)
		}
		c.plans[p.ID] = p.clone()
		c.order = append(c.order, p.ID)
	}

	slices.SortStableFunc(c.order, func(a, b ID) int {
		return cmp.Compare(c.plans[a].Price, c.plans[b].Price)
	})

	return c, nil
}

func (c *MemoryCatalog) GetPlan(_ context.Context, id ID) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p.clone(), nil
}

func (c *MemoryCatalog) ListPlans(_ context.Context) ([]Plan, error) {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id].clone())
	}
	return out, nil
}

func validate(p Plan) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidPlan)
	case p.Price < 0 || p.YearlyPrice < 0:
		return fmt.Errorf("%w: %s has a negative price", ErrInvalidPlan, p.ID)
	case len(p.Currency) != 3:
		return fmt.Errorf("%w: %s has currency %q", ErrInvalidPlan, p.ID, p.Currency)
	case !p.BillingInterval.Valid():
		return fmt.Errorf("%w: %s has billing interval %q", ErrInvalidPlan, p.ID, p.BillingInterval)
	}
	for m, v := range p.Limits {
		if !m.Valid() {
			return fmt.Errorf("%w: %s limits unknown metric %q", ErrInvalidPlan, p.ID, m)
		}
		if v < Unlimited {
			return fmt.Errorf("%w: %s limit for %s is %d", ErrInvalidPlan, p.ID, m, v)
		}
	}
	return nil
}
