package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"nestora/backend/internal/middleware"
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadMB int) *Handler {
	return &Handler{service: service, maxUploadBytes: int64(maxUploadMB) << 20}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	documentType := r.FormValue("document_type")

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to read file", http.StatusInternalServerError)
		return
	}

	doc, err := h.service.Upload(r.Context(), header.Filename, documentType, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			h.writeError(r.Context(), w, "CONFLICT", err.Error(), http.StatusConflict)
		case errors.Is(err, ErrUnsupportedFile), errors.Is(err, ErrBadDocumentType):
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		default:
			slog.Error("upload failed", "error", err, "name", header.Filename)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	// Return [] instead of null for an empty list
	if docs == nil {
		docs = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := 100
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}

	detail, err := h.service.Get(r.Context(), id, limit, offset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": detail}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type addChunkRequest struct {
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
}

func (h *Handler) AddChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req addChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "content is required", http.StatusBadRequest)
		return
	}

	chunkID, err := h.service.AddChunk(r.Context(), id, req.Content, req.ChunkIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"id": chunkID}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Reprocess(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
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
