package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"nestora/backend/internal/middleware"
	"nestora/backend/internal/text"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": s}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "similarity_threshold must be within [0,1]", http.StatusBadRequest)
		return
	}
	if s.SearchTopK <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "search_top_k must be positive", http.StatusBadRequest)
		return
	}
	// Reject chunking parameters that the chunker itself would refuse.
	if _, err := text.NewChunker(text.StrategySentence, s.ChunkTargetSize, s.ChunkOverlap); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.Update(r.Context(), &s); err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to update settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": s}); err != nil {
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
