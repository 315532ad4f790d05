package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"scholaria/backend/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
}

type TaskRepo interface {
	Count(ctx context.Context) (int, error)
}

type ChunkRepo interface {
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	documentRepo DocumentRepo
	taskRepo     TaskRepo
	chunkRepo    ChunkRepo
}

func NewHandler(d DocumentRepo, t TaskRepo, c ChunkRepo) *Handler {
	return &Handler{documentRepo: d, taskRepo: t, chunkRepo: c}
}

type StatsResponse struct {
	Documents int `json:"documents"`
	Tasks     int `json:"tasks"`
	Chunks    int `json:"chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dCount, err := h.documentRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	tCount, err := h.taskRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count tasks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count tasks", http.StatusInternalServerError)
		return
	}

	cCount, err := h.chunkRepo.CountChunks(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents: dCount,
		Tasks:     tCount,
		Chunks:    cCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
