package entitlement

import (
	"context"

	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/usage"
)

// Guard reserves one unit of metric, runs fn and records usage only when fn
// succeeds. A denied reservation returns a *LimitError without calling fn.
func Guard[T any](ctx context.Context, c *Checker, userID string, metric plan.Metric,
	fn func(ctx context.Context) (T, usage.Metadata, error),
) (T, error) {
	var zero T
	r, err := c.Reserve(ctx, userID, metric, 1)
	if err != nil {
		return zero, err
	}

	out, meta, err := fn(ctx)
	if err != nil {
		r.Release(ctx)
		return zero, err
	}
	if _, err := r.Commit(ctx, meta); err != nil {
		return out, err
	}
	return out, nil
}

// GenerateOptions tunes a content generation request.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generator is the external AI capability consumed after an entitlement check.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, opts GenerateOptions) (text string, tokens int64, err error)
}

// Generate runs a content generation for userID under the contentGenerations quota.
func Generate(ctx context.Context, c *Checker, g Generator, userID, prompt string, opts GenerateOptions) (string, error) {
	return Guard(ctx, c, userID, plan.ContentGenerations, func(ctx context.Context) (string, usage.Metadata, error) {
		text, tokens, err := g.GenerateContent(ctx, prompt, opts)
		if err != nil {
			return "", usage.Metadata{}, err
		}
		meta := usage.Metadata{Tokens: tokens}
		if opts.Model != "" {
			meta.Attributes = map[string]string{"model": opts.Model}
		}
		return text, meta, nil
	})
}
