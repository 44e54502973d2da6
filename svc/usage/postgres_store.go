package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// metricColumns maps metrics to their JSONB event columns.
var metricColumns = map[plan.Metric]string{
	plan.ContentGenerations:  "content_generations",
	plan.AudioTranscriptions: "audio_transcriptions",
	plan.ImageGenerations:    "image_generations",
	plan.APICalls:            "api_calls",
}

// PostgresStore keeps one row per user and day with an event array per metric.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, userID string, day time.Time, metric plan.Metric, e Event) error {
	col, ok := metricColumns[metric]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Join(ErrStoreOperation, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_records (user_id, day, %[1]s, total_tokens_used, total_storage_used)
		VALUES ($1, $2, jsonb_build_array($3::jsonb), $4, $5)
		ON CONFLICT (user_id, day) DO UPDATE SET
			%[1]s = usage_records.%[1]s || EXCLUDED.%[1]s,
			total_tokens_used = usage_records.total_tokens_used + EXCLUDED.total_tokens_used,
			total_storage_used = usage_records.total_storage_used + EXCLUDED.total_storage_used`, col)

	if _, err := s.pool.Exec(ctx, query, userID, day, string(payload), e.Tokens, e.Storage); err != nil {
		return errors.Join(ErrStoreOperation, err)
	}
	return nil
}

func (s *PostgresStore) Sum(ctx context.Context, userID string, metric plan.Metric, from, to time.Time) (int64, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM((e ->> 'amount')::bigint), 0)
		FROM usage_records r, jsonb_array_elements(r.%s) AS e
		WHERE r.user_id = $1 AND r.day >= $2 AND r.day < $3`, col)

	var total int64
	if err := s.pool.QueryRow(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, errors.Join(ErrStoreOperation, err)
	}
	return total, nil
}

func (s *PostgresStore) Records(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, day, content_generations, audio_transcriptions, image_generations, api_calls,
		       total_tokens_used, total_storage_used
		FROM usage_records
		WHERE user_id = $1 AND day >= $2 AND day < $3
		ORDER BY day`, userID, from, to)
	if err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                            Record
			content, audio, images, apiRaw []byte
		)
		if err := rows.Scan(&rec.UserID, &rec.Date, &content, &audio, &images, &apiRaw,
			&rec.TotalTokensUsed, &rec.TotalStorageUsed); err != nil {
			return nil, errors.Join(ErrStoreOperation, err)
		}
		for _, f := range []struct {
			raw []byte
			dst *[]Event
		}{
			{content, &rec.ContentGenerations},
			{audio, &rec.AudioTranscriptions},
			{images, &rec.ImageGenerations},
			{apiRaw, &rec.APICalls},
		} {
			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				return nil, errors.Join(ErrStoreOperation, err)
			}
		}
		rec.Date = rec.Date.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}
	return out, nil
}
