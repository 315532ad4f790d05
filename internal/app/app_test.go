package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"scholaria/backend/internal/config"
	"scholaria/backend/internal/index"
	"scholaria/backend/internal/retrieval"
)

type stubVectorStore struct{}

func (stubVectorStore) AddBatch(ctx context.Context, items []index.Item) error        { return nil }
func (stubVectorStore) DeleteByDocument(ctx context.Context, documentID string) error { return nil }
func (stubVectorStore) SimilaritySearch(ctx context.Context, vector []float32, topK int, threshold float64, filters map[string]interface{}) ([]retrieval.VectorHit, error) {
	return nil, nil
}

type stubAI struct{}

func (stubAI) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (stubAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (stubAI) Complete(ctx context.Context, system, user string) (string, error) { return "", nil }

type stubPublisher struct{}

func (stubPublisher) Publish(topic string, body []byte) error { return nil }

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	appCfg := &config.Config{
		ChunkTargetTokens:  512,
		ChunkOverlapTokens: 50,
		VectorWeight:       0.6,
		TextWeight:         0.4,
		TaskMaxRetries:     3,
		QueryLogPath:       filepath.Join(t.TempDir(), "query.log"),
		ServerPort:         8081,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	app, err := New(appCfg, db, stubVectorStore{}, nil, stubPublisher{}, stubAI{}, logger)
	assert.NoError(t, err)
	assert.NotNil(t, app)
	assert.NotNil(t, app.Handler)
	assert.NotNil(t, app.DocumentService)
	assert.NotNil(t, app.TaskService)
	assert.NotNil(t, app.IngestConsumer)

	// Verify Route (Integration-ish)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_CORSHeaders(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	appCfg := &config.Config{
		ChunkTargetTokens: 512,
		VectorWeight:      0.6,
		TextWeight:        0.4,
		TaskMaxRetries:    3,
		QueryLogPath:      filepath.Join(t.TempDir(), "query.log"),
	}

	app, err := New(appCfg, db, stubVectorStore{}, nil, stubPublisher{}, stubAI{}, slog.Default())
	assert.NoError(t, err)

	// The stats handler fails against the expectation-less mock DB, but the
	// CORS headers are written before the handler runs.
	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
