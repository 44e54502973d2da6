package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/entitle/pkg/pg"
)

const taskColumns = `id, queue, task_type, task_name, payload, status, priority, retry_count,
	max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// PostgresStorage persists tasks in queue_tasks and queue_tasks_dlq.
// Claims use FOR UPDATE SKIP LOCKED so replicas never take the same task.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool, now: time.Now}
}

func (s *PostgresStorage) CreateTask(ctx context.Context, t *Task) error {
	if t == nil {
		return ErrPayloadNil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_tasks (id, queue, task_type, task_name, payload, status, priority,
			retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Queue, string(t.TaskType), t.TaskName, t.Payload, string(t.Status),
		int16(t.Priority), int16(t.RetryCount), int16(t.MaxRetries), t.ScheduledAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetPendingTaskByName(ctx context.Context, name string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM queue_tasks
		WHERE task_name = $1 AND status IN ('pending', 'processing')
		ORDER BY scheduled_at LIMIT 1`, name)
	t, err := scanTask(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $3, locked_by = $4
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1) AND scheduled_at <= $2
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $2))
			ORDER BY priority DESC, scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		queues, now, now.Add(lock), workerID)
	t, err := scanTask(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrNoTaskToClaim
	}
	return t, err
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id, s.now())
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, id)
	}
	return nil
}

func (s *PostgresStorage) FailTask(ctx context.Context, id uuid.UUID, msg string) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var retries, maxRetries int16
		err := tx.QueryRow(ctx, `SELECT retry_count, max_retries FROM queue_tasks
			WHERE id = $1 AND status = 'processing' FOR UPDATE`, id).Scan(&retries, &maxRetries)
		if pg.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", ErrTaskNotProcessing, id)
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		retries++
		status, at := TaskStatusFailed, s.now()
		if retries < maxRetries {
			status = TaskStatusPending
			at = at.Add(RetryBackoff(int8(retries)))
		}
		_, err = tx.Exec(ctx, `
			UPDATE queue_tasks SET status = $2, retry_count = $3, error = $4, scheduled_at = CASE WHEN $2 = 'pending' THEN $5 ELSE scheduled_at END,
				locked_until = NULL, locked_by = NULL
			WHERE id = $1`, id, string(status), retries, msg, at)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) MoveToDLQ(ctx context.Context, id uuid.UUID) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTask(tx.QueryRow(ctx, `DELETE FROM queue_tasks WHERE id = $1 RETURNING `+taskColumns, id))
		if pg.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if err != nil {
			return err
		}
		d := deadTaskFrom(t, s.now())
		_, err = tx.Exec(ctx, `
			INSERT INTO queue_tasks_dlq (id, task_id, queue, task_type, task_name, payload, priority,
				error, retry_count, failed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			d.ID, d.TaskID, d.Queue, string(d.TaskType), d.TaskName, d.Payload, int16(d.Priority),
			d.Error, int16(d.RetryCount), d.FailedAt, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert dead task: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	tag, err := s.pool.Exec(ctx, `UPDATE queue_tasks SET locked_until = $2 WHERE id = $1 AND status = 'processing'`,
		id, s.now().Add(d))
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, id)
	}
	return nil
}

// DeadTasks lists the dead letter table, newest first.
func (s *PostgresStorage) DeadTasks(ctx context.Context, limit int) ([]DeadTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at
		FROM queue_tasks_dlq ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead tasks: %w", err)
	}
	defer rows.Close()

	var out []DeadTask
	for rows.Next() {
		var (
			d                    DeadTask
			taskType             string
			priority, retryCount int16
		)
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Queue, &taskType, &d.TaskName, &d.Payload, &priority,
			&d.Error, &retryCount, &d.FailedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.TaskType, d.Priority, d.RetryCount = TaskType(taskType), Priority(priority), int8(retryCount)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t                             Task
		taskType, status              string
		priority, retries, maxRetries int16
	)
	err := row.Scan(&t.ID, &t.Queue, &taskType, &t.TaskName, &t.Payload, &status, &priority, &retries,
		&maxRetries, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.TaskType, t.Status = TaskType(taskType), TaskStatus(status)
	t.Priority, t.RetryCount, t.MaxRetries = Priority(priority), int8(retries), int8(maxRetries)
	return &t, nil
}
