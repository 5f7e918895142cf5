package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"nestora/backend/internal/middleware"
	"nestora/backend/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts *retrieval.Options) retrieval.Result
}

// Handler serves retrieval context to the conversational layer. It has no
// failure mode besides validation: retrieval degrades internally and an
// empty context is a valid response.
type Handler struct {
	retriever Retriever
}

func NewHandler(retriever Retriever) *Handler {
	return &Handler{retriever: retriever}
}

func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		TopK       *int   `json:"top_k,omitempty"`
		DocumentID string `json:"document_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK != nil && *req.TopK <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "top_k must be positive", http.StatusBadRequest)
		return
	}

	result := h.retriever.Retrieve(r.Context(), req.Query, &retrieval.Options{
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.Error("failed to encode response", "error", err)
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
