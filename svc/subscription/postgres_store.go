package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/entitle/pkg/pg"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
)

const subscriptionColumns = `user_id, email, plan, status, start_date, end_date, trial_end_date,
	payment_method, payment_details, limits, features, billing_history, auto_renew, created_at, updated_at`

// PostgresStore persists subscriptions in the subscriptions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Create(ctx context.Context, s *Subscription) error {
	args, err := encode(s)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`, args...)
	if pg.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return errors.Join(ErrStoreOperation, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*Subscription, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scan(row)
}

func (p *PostgresStore) Update(ctx context.Context, userID string, fn func(*Subscription) error) (*Subscription, error) {
	var out *Subscription
	err := pg.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 FOR UPDATE`, userID)
		s, err := scan(row)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		args, err := encode(s)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET
			email = $2, plan = $3, status = $4, start_date = $5, end_date = $6, trial_end_date = $7,
			payment_method = $8, payment_details = $9, limits = $10, features = $11,
			billing_history = $12, auto_renew = $13, updated_at = $15
			WHERE user_id = $1`, args...); err != nil {
			return errors.Join(ErrStoreOperation, err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresStore) FindByReference(ctx context.Context, reference string) (*Subscription, error) {
	history, err := json.Marshal([]map[string]string{{"reference": reference}})
	if err != nil {
		return nil, err
	}
	row := p.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE payment_details ->> 'reference' = $1 OR billing_history @> $2::jsonb
		LIMIT 1`, reference, history)
	return scan(row)
}

func (p *PostgresStore) ListDue(ctx context.Context, now, pendingBefore time.Time) ([]*Subscription, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE (status = 'trial' AND trial_end_date < $1)
		   OR (status IN ('active', 'cancelled') AND end_date < $1)
		   OR (status = 'pending_payment' AND (payment_details ->> 'initiatedAt')::timestamptz < $2)
		ORDER BY user_id`, now, pendingBefore)
	if err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}
	return out, nil
}

func encode(s *Subscription) ([]any, error) {
	var details []byte
	if s.PaymentDetails != nil {
		b, err := json.Marshal(s.PaymentDetails)
		if err != nil {
			return nil, fmt.Errorf("encode payment details: %w", err)
		}
		details = b
	}
	limits, err := json.Marshal(s.Limits)
	if err != nil {
		return nil, fmt.Errorf("encode limits: %w", err)
	}
	features, err := json.Marshal(nonNil(s.Features))
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	history, err := json.Marshal(nonNil(s.BillingHistory))
	if err != nil {
		return nil, fmt.Errorf("encode billing history: %w", err)
	}
	return []any{
		s.UserID, s.Email, string(s.Plan), string(s.Status), s.StartDate, s.EndDate, s.TrialEndDate,
		string(s.PaymentMethod), details, limits, features, history, s.AutoRenew, s.CreatedAt, s.UpdatedAt,
	}, nil
}

func scan(row pgx.Row) (*Subscription, error) {
	var (
		s                                  Subscription
		planID, status, method             string
		details, limits, features, history []byte
	)
	err := row.Scan(&s.UserID, &s.Email, &planID, &status, &s.StartDate, &s.EndDate, &s.TrialEndDate,
		&method, &details, &limits, &features, &history, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}

	s.Plan, s.Status, s.PaymentMethod = plan.ID(planID), Status(status), payment.Kind(method)
	if len(details) > 0 {
		s.PaymentDetails = &PaymentDetails{}
		if err := json.Unmarshal(details, s.PaymentDetails); err != nil {
			return nil, fmt.Errorf("decode payment details: %w", err)
		}
	}
	if err := json.Unmarshal(limits, &s.Limits); err != nil {
		return nil, fmt.Errorf("decode limits: %w", err)
	}
	if err := json.Unmarshal(features, &s.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(history, &s.BillingHistory); err != nil {
		return nil, fmt.Errorf("decode billing history: %w", err)
	}
	return &s, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
