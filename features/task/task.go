package task

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Processing stages, one task per attempt category.
const (
	TypeParse     = "parse"
	TypeVectorize = "vectorize"
	TypeIndex     = "index"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrRetryExhausted    = errors.New("task retries exhausted")
)

// Task tracks one document-processing attempt through its lifecycle. Tasks
// are never deleted: a retry resets the row in place so the retry-count
// history survives.
type Task struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	UserID       string     `json:"user_id"`
	Type         string     `json:"type"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Terminal reports whether no further transition is permitted.
func (t *Task) Terminal() bool {
	if t.Status == StatusCompleted {
		return true
	}
	return t.Status == StatusFailed && t.RetryCount >= t.MaxRetries
}
