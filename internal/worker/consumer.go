package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"scholaria/backend/features/task"
	"scholaria/backend/internal/index"
	"scholaria/backend/internal/middleware"
	"scholaria/backend/internal/text"
)

// DocumentInfo is what the pipeline needs from a stored document: extracted
// text plus the structural hints, if the extractor produced any.
type DocumentInfo struct {
	Content  string
	Title    string
	DocType  string
	Sections []text.Section
}

type DocumentStore interface {
	GetForProcessing(ctx context.Context, documentID string) (*DocumentInfo, error)
	UpdateStatus(ctx context.Context, documentID, status string) error
}

type TaskTracker interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	Start(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, errorMessage string) error
}

type Chunker interface {
	Chunk(ctx context.Context, content string, sections []text.Section, targetTokens, overlapTokens int) []text.Chunk
}

type Indexer interface {
	Index(ctx context.Context, chunks []text.Chunk, documentID, userID string, meta index.DocumentMeta) error
	Deindex(ctx context.Context, documentID string) error
}

// IngestConsumer runs a document through chunk→index under task supervision.
// Stage failures mark the task failed and consume the message; re-queueing
// is the operator's explicit retry, not NSQ redelivery.
type IngestConsumer struct {
	tasks         TaskTracker
	docs          DocumentStore
	chunker       Chunker
	indexer       Indexer
	targetTokens  int
	overlapTokens int
}

func NewIngestConsumer(t TaskTracker, d DocumentStore, c Chunker, i Indexer, targetTokens, overlapTokens int) *IngestConsumer {
	return &IngestConsumer{
		tasks:         t,
		docs:          d,
		chunker:       c,
		indexer:       i,
		targetTokens:  targetTokens,
		overlapTokens: overlapTokens,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.TaskID == "" || payload.DocumentID == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "task_id", payload.TaskID, "document_id", payload.DocumentID)
		return nil
	}

	t, err := h.tasks.Get(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			slog.ErrorContext(ctx, "task not found, dropping", "task_id", payload.TaskID)
			return nil
		}
		return err // transient store error, let NSQ redeliver
	}

	// At-least-once delivery: acting on a redelivered message for a
	// finished task would duplicate vectors.
	if t.Status == task.StatusCompleted {
		slog.InfoContext(ctx, "task already completed, dropping redelivery", "task_id", t.ID)
		return nil
	}
	if t.Terminal() {
		slog.InfoContext(ctx, "task is terminal, dropping", "task_id", t.ID, "status", t.Status)
		return nil
	}

	if err := h.tasks.Start(ctx, t.ID); err != nil {
		// A failed task waits for an explicit retry, not a redelivery.
		slog.WarnContext(ctx, "cannot start task, dropping", "task_id", t.ID, "error", err)
		return nil
	}
	_ = h.docs.UpdateStatus(ctx, payload.DocumentID, "processing")

	if err := h.process(ctx, payload); err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "task_id", t.ID, "document_id", payload.DocumentID, "error", err)
		if failErr := h.tasks.Fail(ctx, t.ID, err.Error()); failErr != nil {
			slog.ErrorContext(ctx, "failed to mark task failed", "task_id", t.ID, "error", failErr)
		}
		_ = h.docs.UpdateStatus(ctx, payload.DocumentID, "failed")
		return nil
	}

	if err := h.tasks.Complete(ctx, t.ID); err != nil {
		slog.ErrorContext(ctx, "failed to mark task completed", "task_id", t.ID, "error", err)
	}
	_ = h.docs.UpdateStatus(ctx, payload.DocumentID, "completed")

	slog.InfoContext(ctx, "document processed", "task_id", t.ID, "document_id", payload.DocumentID)
	return nil
}

func (h *IngestConsumer) process(ctx context.Context, payload IngestPayload) error {
	info, err := h.docs.GetForProcessing(ctx, payload.DocumentID)
	if err != nil {
		return err
	}
	_ = h.tasks.SetProgress(ctx, payload.TaskID, 10)

	// Clear any leftovers from an earlier attempt so reprocessing cannot
	// accumulate duplicate vectors.
	if err := h.indexer.Deindex(ctx, payload.DocumentID); err != nil {
		return err
	}
	_ = h.tasks.SetProgress(ctx, payload.TaskID, 20)

	chunks := h.chunker.Chunk(ctx, info.Content, info.Sections, h.targetTokens, h.overlapTokens)
	_ = h.tasks.SetProgress(ctx, payload.TaskID, 40)

	if len(chunks) == 0 {
		slog.WarnContext(ctx, "document produced no chunks", "document_id", payload.DocumentID)
		return nil
	}

	meta := index.DocumentMeta{Title: info.Title, DocType: info.DocType}
	if err := h.indexer.Index(ctx, chunks, payload.DocumentID, payload.UserID, meta); err != nil {
		return err
	}
	_ = h.tasks.SetProgress(ctx, payload.TaskID, 90)
	return nil
}
