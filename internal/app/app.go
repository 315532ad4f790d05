package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"scholaria/backend/features/document"
	"scholaria/backend/features/search"
	"scholaria/backend/features/stats"
	"scholaria/backend/features/task"
	"scholaria/backend/internal/cache"
	"scholaria/backend/internal/config"
	"scholaria/backend/internal/index"
	"scholaria/backend/internal/middleware"
	"scholaria/backend/internal/rerank"
	"scholaria/backend/internal/retrieval"
	"scholaria/backend/internal/text"
	"scholaria/backend/internal/worker"
)

// VectorStore is everything the app needs from the vector backend: batched
// writes and document-scoped deletes for indexing, similarity search for
// the query path.
type VectorStore interface {
	index.VectorStore
	retrieval.VectorStore
}

// AIClient covers the model operations the pipeline uses. A single Gemini
// client satisfies all three in production.
type AIClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Complete(ctx context.Context, system, user string) (string, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	TaskService     *task.Service
	IngestConsumer  *worker.IngestConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	progress *cache.ProgressCache,
	taskPub TaskPublisher,
	ai AIClient,
	logger *slog.Logger,
) (*App, error) {

	// Repositories
	docRepo := document.NewPostgresRepo(db)
	taskRepo := task.NewPostgresRepo(db)
	indexRepo := index.NewPostgresRepo(db)

	// Indexing
	batcher := index.NewBatcher(ai, vecStore, indexRepo)

	// Feature: Task
	// A nil *ProgressCache must stay a nil interface so the service falls
	// back to postgres instead of calling through a nil pointer.
	var progressCache task.ProgressCache
	if progress != nil {
		progressCache = progress
	}
	taskService := task.NewService(taskRepo, progressCache, batcher, taskPub, cfg.TaskMaxRetries)
	taskHandler := task.NewHandler(taskService)

	// Feature: Document
	docService := document.NewService(docRepo, taskService, batcher, taskPub)
	docHandler := document.NewHandler(docService)

	// Feature: Search
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	reranker := rerank.New(ai)
	retrievalService := retrieval.NewService(ai, vecStore, docRepo, reranker, cfg.VectorWeight, cfg.TextWeight, queryLogger)
	searchHandler := search.NewHandler(retrievalService)

	// Feature: Stats
	statsHandler := stats.NewHandler(docRepo, taskRepo, indexRepo)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(docHandler.Create)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(docHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Delete)))

	mux.Handle("GET /tasks", middleware.CorrelationID(enableCORS(taskHandler.List)))
	mux.Handle("GET /tasks/{id}", middleware.CorrelationID(enableCORS(taskHandler.Get)))
	mux.Handle("POST /tasks/{id}/retry", middleware.CorrelationID(enableCORS(taskHandler.Retry)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Ingest Consumer) Setup
	chunker := text.NewChunker(ai)
	docStore := &documentStoreAdapter{repo: docRepo}

	ingestConsumer := worker.NewIngestConsumer(taskService, docStore, chunker, batcher, cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens)

	return &App{
		Handler:         mux,
		DocumentService: docService,
		TaskService:     taskService,
		IngestConsumer:  ingestConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Adapter for DocumentStore in Worker
type documentStoreAdapter struct {
	repo document.Repository
}

func (a *documentStoreAdapter) GetForProcessing(ctx context.Context, documentID string) (*worker.DocumentInfo, error) {
	doc, err := a.repo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &worker.DocumentInfo{
		Content:  doc.Content,
		Title:    doc.Title,
		DocType:  doc.DocType,
		Sections: doc.Sections,
	}, nil
}

func (a *documentStoreAdapter) UpdateStatus(ctx context.Context, documentID, status string) error {
	return a.repo.UpdateStatus(ctx, documentID, status)
}
