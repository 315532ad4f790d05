package task_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"scholaria/backend/features/task"
)

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO processing_tasks").
		WithArgs("doc-1", "user-1", task.TypeVectorize, "pending", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("task-1", now, now))

	tk := &task.Task{
		DocumentID: "doc-1",
		UserID:     "user-1",
		Type:       task.TypeVectorize,
		Status:     task.StatusPending,
		MaxRetries: 3,
	}
	err = repo.Create(context.Background(), tk)

	assert.NoError(t, err)
	assert.Equal(t, "task-1", tk.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "user_id", "task_type", "status", "retry_count", "max_retries",
		"progress", "error_message", "started_at", "ended_at", "created_at", "updated_at",
	})
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM processing_tasks WHERE id").
			WithArgs("task-1").
			WillReturnRows(taskRows().AddRow(
				"task-1", "doc-1", "user-1", task.TypeVectorize, "failed", 1, 3,
				55, "embed quota", &now, &now, now, now))

		tk, err := repo.Get(context.Background(), "task-1")
		assert.NoError(t, err)
		assert.Equal(t, task.StatusFailed, tk.Status)
		assert.Equal(t, 1, tk.RetryCount)
		assert.Equal(t, 55, tk.Progress)
		assert.Equal(t, "embed quota", tk.ErrorMessage)
		assert.NotNil(t, tk.StartedAt)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM processing_tasks WHERE id").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, task.ErrNotFound)
	})
}

func TestPostgresRepo_MarkProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	t.Run("Pending task starts", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkProcessing(context.Background(), "task-1"))
	})

	t.Run("Completed task cannot start", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkProcessing(context.Background(), "task-1")
		assert.ErrorIs(t, err, task.ErrInvalidTransition)
	})
}

func TestPostgresRepo_MarkCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	t.Run("Processing task completes", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkCompleted(context.Background(), "task-1"))
	})

	t.Run("Pending task cannot complete", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkCompleted(context.Background(), "task-1")
		assert.ErrorIs(t, err, task.ErrInvalidTransition)
	})
}

func TestPostgresRepo_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	mock.ExpectExec("UPDATE processing_tasks").
		WithArgs("task-1", "vector store write failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkFailed(context.Background(), "task-1", "vector store write failed"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ResetForRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	t.Run("Failed task with budget resets", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ResetForRetry(context.Background(), "task-1"))
	})

	t.Run("Exhausted or non-failed task does not reset", func(t *testing.T) {
		mock.ExpectExec("UPDATE processing_tasks").
			WithArgs("task-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.ResetForRetry(context.Background(), "task-1")
		assert.ErrorIs(t, err, task.ErrInvalidTransition)
	})
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := task.NewPostgresRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
}
