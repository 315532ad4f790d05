package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"scholaria/backend/internal/config"
	"scholaria/backend/internal/middleware"
)

type Deindexer interface {
	Deindex(ctx context.Context, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// ProgressCache is the fast layer over the durable repo; all writes go to
// both, reads prefer the cache and backfill it on a miss.
type ProgressCache interface {
	SetProgress(ctx context.Context, taskID string, progress int) error
	GetProgress(ctx context.Context, taskID string) (int, bool, error)
	SetStatus(ctx context.Context, taskID, status string) error
	GetStatus(ctx context.Context, taskID string) (string, bool, error)
}

// Service owns the task state machine. All status changes pass through it;
// nothing else mutates processing_tasks.
type Service struct {
	repo       Repository
	cache      ProgressCache
	deindexer  Deindexer
	pub        EventPublisher
	maxRetries int
}

func NewService(repo Repository, cache ProgressCache, d Deindexer, pub EventPublisher, maxRetries int) *Service {
	return &Service{repo: repo, cache: cache, deindexer: d, pub: pub, maxRetries: maxRetries}
}

func (s *Service) Create(ctx context.Context, documentID, userID, taskType string) (*Task, error) {
	t := &Task{
		DocumentID: documentID,
		UserID:     userID,
		Type:       taskType,
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, t.ID, string(StatusPending))
	s.cacheProgress(ctx, t.ID, 0)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Task, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]Task, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

func (s *Service) Start(ctx context.Context, id string) error {
	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		return err
	}
	s.cacheStatus(ctx, id, string(StatusProcessing))
	return nil
}

func (s *Service) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := s.repo.UpdateProgress(ctx, id, progress); err != nil {
		return err
	}
	s.cacheProgress(ctx, id, progress)
	return nil
}

func (s *Service) Complete(ctx context.Context, id string) error {
	if err := s.repo.MarkCompleted(ctx, id); err != nil {
		return err
	}
	s.cacheStatus(ctx, id, string(StatusCompleted))
	s.cacheProgress(ctx, id, 100)
	return nil
}

func (s *Service) Fail(ctx context.Context, id, errorMessage string) error {
	if err := s.repo.MarkFailed(ctx, id, errorMessage); err != nil {
		return err
	}
	s.cacheStatus(ctx, id, string(StatusFailed))
	return nil
}

// Progress reads through the cache; a miss falls back to the durable store
// and repopulates the cache with what it found.
func (s *Service) Progress(ctx context.Context, id string) (int, Status, error) {
	if s.cache == nil {
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return 0, "", err
		}
		return t.Progress, t.Status, nil
	}

	progress, progressOK, err := s.cache.GetProgress(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "progress cache read failed", "error", err, "task_id", id)
		progressOK = false
	}
	status, statusOK, err := s.cache.GetStatus(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "status cache read failed", "error", err, "task_id", id)
		statusOK = false
	}
	if progressOK && statusOK {
		return progress, Status(status), nil
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, "", err
	}
	s.cacheProgress(ctx, id, t.Progress)
	s.cacheStatus(ctx, id, string(t.Status))
	return t.Progress, t.Status, nil
}

// Retry resets a failed task and re-queues its document. Partially indexed
// vectors are cleaned up first; a flaky cleanup is logged and does not block
// the retry, or tasks would wedge permanently behind it.
func (s *Service) Retry(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if t.Status != StatusFailed {
		return fmt.Errorf("%w: cannot retry task in status %q", ErrInvalidTransition, t.Status)
	}
	if t.RetryCount >= t.MaxRetries {
		return fmt.Errorf("%w: %d of %d attempts used", ErrRetryExhausted, t.RetryCount, t.MaxRetries)
	}

	if err := s.deindexer.Deindex(ctx, t.DocumentID); err != nil {
		slog.WarnContext(ctx, "pre-retry vector cleanup failed, continuing",
			"error", err, "task_id", id, "document_id", t.DocumentID)
	}

	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Lost the race against a concurrent retry or transition.
			return fmt.Errorf("%w: task %s changed underneath retry", ErrInvalidTransition, id)
		}
		return err
	}
	s.cacheStatus(ctx, id, string(StatusPending))
	s.cacheProgress(ctx, id, 0)

	payload, _ := json.Marshal(map[string]interface{}{
		"task_id":         id,
		"document_id":     t.DocumentID,
		"user_id":         t.UserID,
		"processing_type": t.Type,
		"correlation_id":  middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		return fmt.Errorf("publish retry task: %w", err)
	}

	slog.InfoContext(ctx, "task re-queued", "task_id", id, "document_id", t.DocumentID, "attempt", t.RetryCount+1)
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) cacheStatus(ctx context.Context, id, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStatus(ctx, id, status); err != nil {
		slog.WarnContext(ctx, "status cache write failed", "error", err, "task_id", id)
	}
}

func (s *Service) cacheProgress(ctx context.Context, id string, progress int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetProgress(ctx, id, progress); err != nil {
		slog.WarnContext(ctx, "progress cache write failed", "error", err, "task_id", id)
	}
}
