package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholaria/backend/features/stats"
)

type stubCounter struct {
	count int
	err   error
}

func (s *stubCounter) Count(ctx context.Context) (int, error) {
	return s.count, s.err
}

func (s *stubCounter) CountChunks(ctx context.Context) (int, error) {
	return s.count, s.err
}

func TestGetStats(t *testing.T) {
	h := stats.NewHandler(&stubCounter{count: 12}, &stubCounter{count: 34}, &stubCounter{count: 560})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rr := httptest.NewRecorder()
	h.GetStats(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data stats.StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.Data.Documents)
	assert.Equal(t, 34, resp.Data.Tasks)
	assert.Equal(t, 560, resp.Data.Chunks)
}

func TestGetStats_DocumentCountFails(t *testing.T) {
	h := stats.NewHandler(&stubCounter{err: errors.New("db down")}, &stubCounter{}, &stubCounter{})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rr := httptest.NewRecorder()
	h.GetStats(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, rr.Body.String(), "failed to count documents")
}

func TestGetStats_ChunkCountFails(t *testing.T) {
	h := stats.NewHandler(&stubCounter{count: 1}, &stubCounter{count: 1}, &stubCounter{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rr := httptest.NewRecorder()
	h.GetStats(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "failed to count chunks")
}
