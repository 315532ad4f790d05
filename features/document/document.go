package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"scholaria/backend/features/task"
	"scholaria/backend/internal/config"
	"scholaria/backend/internal/middleware"
	"scholaria/backend/internal/text"
)

// Document holds extracted text ready for chunking. Extraction (PDF, Word,
// structural parsing) happens upstream; Sections are the optional structural
// hints the extractor produced.
type Document struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Title       string         `json:"title"`
	DocType     string         `json:"doc_type"`
	Content     string         `json:"content,omitempty"`
	ContentHash string         `json:"-"`
	Status      string         `json:"status"`
	Sections    []text.Section `json:"sections,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, userID string) ([]Document, error)
	ExistsByHash(ctx context.Context, userID, hash string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Deindexer interface {
	Deindex(ctx context.Context, documentID string) error
}

type TaskCreator interface {
	Create(ctx context.Context, documentID, userID, taskType string) (*task.Task, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo      Repository
	tasks     TaskCreator
	deindexer Deindexer
	pub       EventPublisher
}

func NewService(repo Repository, tasks TaskCreator, d Deindexer, pub EventPublisher) *Service {
	return &Service{repo: repo, tasks: tasks, deindexer: d, pub: pub}
}

// Create stores the document, opens its processing task and hands the work
// to the queue. Duplicate content for the same user is rejected by hash.
func (s *Service) Create(ctx context.Context, doc *Document) (*task.Task, error) {
	hash := sha256.Sum256([]byte(doc.Content))
	doc.ContentHash = fmt.Sprintf("%x", hash)

	exists, err := s.repo.ExistsByHash(ctx, doc.UserID, doc.ContentHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("duplicate document content")
	}

	doc.Status = "pending"
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	t, err := s.tasks.Create(ctx, doc.ID, doc.UserID, task.TypeVectorize)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"task_id":         t.ID,
		"document_id":     doc.ID,
		"user_id":         doc.UserID,
		"processing_type": t.Type,
		"correlation_id":  middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "document_id", doc.ID)
		return nil, err
	}

	slog.InfoContext(ctx, "document queued for processing", "document_id", doc.ID, "task_id", t.ID)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string) ([]Document, error) {
	return s.repo.List(ctx, userID)
}

// Delete removes vector data before the rows referencing it; the mapping
// table must outlive the vectors it addresses.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.deindexer.Deindex(ctx, id); err != nil {
		return fmt.Errorf("deindex document: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
