package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"scholaria/backend/internal/config"
)

func TestLoadConfig(t *testing.T) {
	// Set env var directly to test envconfig logic
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 512, cfg.ChunkTargetTokens)
	assert.Equal(t, 50, cfg.ChunkOverlapTokens)
	assert.Equal(t, 0.6, cfg.VectorWeight)
	assert.Equal(t, 0.4, cfg.TextWeight)
	assert.Equal(t, 3, cfg.TaskMaxRetries)
	assert.Equal(t, 24, cfg.ProgressTTLHours)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	// Create a temp .env file
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_GeminiModels(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key")
	os.Setenv("RERANK_MODEL", "gemini-2.5-pro")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("RERANK_MODEL")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.RerankModel)
	assert.Equal(t, "gemini-embedding-001", cfg.EmbedModel)
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_API", "false")
	os.Setenv("ENABLE_INGEST_WORKER", "true")
	os.Setenv("TASK_MAX_RETRIES", "5")
	defer os.Unsetenv("ENABLE_API")
	defer os.Unsetenv("ENABLE_INGEST_WORKER")
	defer os.Unsetenv("TASK_MAX_RETRIES")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableIngestWorker)
	assert.Equal(t, 5, cfg.TaskMaxRetries)
}
