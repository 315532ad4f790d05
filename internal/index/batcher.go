package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scholaria/backend/internal/text"
)

// indexBatchSize matches the embedding provider's maximum batch size.
const indexBatchSize = 10

// Item is one vector-store entry: chunk content, its vector and the
// metadata later used for filtered search and deletion-by-document.
type Item struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]interface{}
}

type VectorStore interface {
	AddBatch(ctx context.Context, items []Item) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Mapping is the durable link between a chunk and its vector-store entry.
// It is the only record that can address vectors for deletion without
// re-deriving them.
type Mapping struct {
	DocumentID string
	ChunkIndex int
	VectorID   string
	CreatedAt  time.Time
}

type Repository interface {
	SaveChunks(ctx context.Context, documentID string, chunks []text.Chunk) error
	SaveMappings(ctx context.Context, mappings []Mapping) error
	ListMappings(ctx context.Context, documentID string) ([]Mapping, error)
	DeleteMappings(ctx context.Context, documentID string) error
	DeleteChunks(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int, error)
}

type DocumentMeta struct {
	Title   string
	DocType string
}

// Batcher writes chunks to the vector store in provider-sized batches and
// records a Mapping per written chunk. Indexing is fail-fast: any embed or
// write error aborts the stage so the task can be retried after cleanup.
type Batcher struct {
	embedder Embedder
	store    VectorStore
	repo     Repository
}

func NewBatcher(e Embedder, vs VectorStore, r Repository) *Batcher {
	return &Batcher{embedder: e, store: vs, repo: r}
}

func (b *Batcher) Index(ctx context.Context, chunks []text.Chunk, documentID, userID string, meta DocumentMeta) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := b.repo.SaveChunks(ctx, documentID, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	now := time.Now().UTC()
	for start := 0; start < len(chunks); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}

		items := make([]Item, len(batch))
		mappings := make([]Mapping, len(batch))
		for i, c := range batch {
			id := uuid.New().String()
			items[i] = Item{
				ID:      id,
				Content: c.Content,
				Vector:  vectors[i],
				Metadata: map[string]interface{}{
					"documentId":   documentID,
					"userId":       userID,
					"title":        meta.Title,
					"docType":      meta.DocType,
					"chunkIndex":   c.Index,
					"sectionTitle": c.SectionTitle,
					"createdAt":    now.Format(time.RFC3339),
				},
			}
			mappings[i] = Mapping{
				DocumentID: documentID,
				ChunkIndex: c.Index,
				VectorID:   id,
				CreatedAt:  now,
			}
		}

		if err := b.store.AddBatch(ctx, items); err != nil {
			return fmt.Errorf("vector store write at %d: %w", start, err)
		}
		// Mappings follow each successful write so a partial failure leaves
		// every stored vector addressable for cleanup.
		if err := b.repo.SaveMappings(ctx, mappings); err != nil {
			return fmt.Errorf("save mappings at %d: %w", start, err)
		}
	}

	slog.InfoContext(ctx, "document indexed", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// Deindex removes a document's vector-store entries, then its mappings and
// chunk rows. Vector deletion comes first: the mapping table is the only
// record of otherwise-orphaned vectors.
func (b *Batcher) Deindex(ctx context.Context, documentID string) error {
	if err := b.store.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := b.repo.DeleteMappings(ctx, documentID); err != nil {
		return fmt.Errorf("delete mappings: %w", err)
	}
	if err := b.repo.DeleteChunks(ctx, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	slog.InfoContext(ctx, "document deindexed", "document_id", documentID)
	return nil
}
