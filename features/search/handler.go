package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"scholaria/backend/internal/middleware"
	"scholaria/backend/internal/retrieval"
)

type Handler struct {
	service *retrieval.Service
}

func NewHandler(s *retrieval.Service) *Handler {
	return &Handler{service: s}
}

type searchRequest struct {
	Query       string   `json:"query"`
	Queries     []string `json:"queries,omitempty"`
	UserID      string   `json:"user_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Queries) == 0 {
		h.writeError(ctx, w, "BAD_REQUEST", "query is required", http.StatusBadRequest)
		return
	}

	scope := retrieval.Scope{UserID: req.UserID, DocumentIDs: req.DocumentIDs}

	var (
		results []retrieval.Candidate
		err     error
	)
	if len(req.Queries) > 0 {
		results, err = h.service.MultiSearch(ctx, req.Queries, scope)
	} else {
		results, err = h.service.Search(ctx, req.Query, scope)
	}
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []retrieval.Candidate{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
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
