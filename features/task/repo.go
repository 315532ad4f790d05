package task

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context) ([]Task, error)
	ListByDocument(ctx context.Context, documentID string) ([]Task, error)
	Count(ctx context.Context) (int, error)

	// Transitions. Each is a conditional update guarded by the current
	// status, so a concurrent transition on the same task loses the race
	// instead of clobbering it.
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	ResetForRetry(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const taskColumns = `id, document_id, user_id, task_type, status, retry_count, max_retries,
	progress, COALESCE(error_message, ''), started_at, ended_at, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, t *Task) error {
	query := `INSERT INTO processing_tasks (document_id, user_id, task_type, status, max_retries)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, t.DocumentID, t.UserID, t.Type, string(t.Status), t.MaxRetries).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Task, error) {
	t := &Task{}
	query := `SELECT ` + taskColumns + ` FROM processing_tasks WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.DocumentID, &t.UserID, &t.Type, &t.Status, &t.RetryCount, &t.MaxRetries,
		&t.Progress, &t.ErrorMessage, &t.StartedAt, &t.EndedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks ORDER BY created_at DESC`
	return r.queryTasks(ctx, query)
}

func (r *PostgresRepo) ListByDocument(ctx context.Context, documentID string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks WHERE document_id = $1 ORDER BY created_at DESC`
	return r.queryTasks(ctx, query, documentID)
}

func (r *PostgresRepo) queryTasks(ctx context.Context, query string, args ...interface{}) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.UserID, &t.Type, &t.Status, &t.RetryCount,
			&t.MaxRetries, &t.Progress, &t.ErrorMessage, &t.StartedAt, &t.EndedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_tasks`).Scan(&count)
	return count, err
}

// MarkProcessing starts a pending task. COALESCE keeps the first started_at,
// so a redelivered start is idempotent.
func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE processing_tasks
		SET status = 'processing', started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`
	return r.transition(ctx, query, id)
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE processing_tasks
		SET status = 'completed', progress = 100, ended_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`
	return r.transition(ctx, query, id)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	query := `UPDATE processing_tasks
		SET status = 'failed', error_message = $2, ended_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`
	res, err := r.db.ExecContext(ctx, query, id, errorMessage)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ResetForRetry moves failed→pending in place, incrementing retry_count. The
// retry-budget check rides in the WHERE clause so two racing retries cannot
// both pass it.
func (r *PostgresRepo) ResetForRetry(ctx context.Context, id string) error {
	query := `UPDATE processing_tasks
		SET status = 'pending', retry_count = retry_count + 1, progress = 0,
			error_message = NULL, started_at = NULL, ended_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND retry_count < max_retries`
	return r.transition(ctx, query, id)
}

func (r *PostgresRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	query := `UPDATE processing_tasks SET progress = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, progress)
	return err
}

func (r *PostgresRepo) transition(ctx context.Context, query, id string) error {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}
