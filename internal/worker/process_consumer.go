package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nsqio/go-nsq"
	"nestora/backend/internal/config"
	"nestora/backend/internal/middleware"
)

const (
	// maxAttempts caps NSQ redelivery before a document is marked failed for
	// the retry endpoint to pick up.
	maxAttempts = 3

	processTimeout = 5 * time.Minute

	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

type ProcessConsumer struct {
	pipeline  Processor
	documents DocumentStatusUpdater
	failures  FailureRecorder
	producer  Publisher

	// readFile is swappable for tests.
	readFile func(string) ([]byte, error)
}

func NewProcessConsumer(p Processor, d DocumentStatusUpdater, f FailureRecorder, pub Publisher) *ProcessConsumer {
	return &ProcessConsumer{
		pipeline:  p,
		documents: d,
		failures:  f,
		producer:  pub,
		readFile:  os.ReadFile,
	}
}

func (h *ProcessConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload DocumentProcessPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	raw, err := h.readFile(filepath.Clean(payload.StoragePath))
	if err != nil {
		slog.ErrorContext(ctx, "cannot read stored document", "document_id", payload.DocumentID, "path", payload.StoragePath, "error", err)
		return h.fail(ctx, m, payload, "stored file unreadable: "+err.Error())
	}

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, StatusProcessing); err != nil {
		slog.ErrorContext(ctx, "status update failed", "document_id", payload.DocumentID, "error", err)
		return err // Retry
	}

	procCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	res, err := h.pipeline.ProcessDocument(procCtx, raw, payload.DocumentID, payload.ContentType, payload.DocumentType)
	if err != nil {
		slog.ErrorContext(ctx, "document processing failed",
			"document_id", payload.DocumentID,
			"attempt", m.Attempts,
			"error", err)
		return h.fail(ctx, m, payload, err.Error())
	}

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, StatusProcessed); err != nil {
		slog.ErrorContext(ctx, "status update failed", "document_id", payload.DocumentID, "error", err)
		return err // Retry
	}

	h.publishResult(ctx, DocumentResultPayload{
		DocumentID:    payload.DocumentID,
		Success:       true,
		ChunksCreated: res.ChunksCreated,
		TotalChunks:   res.TotalChunks,
		CorrelationID: payload.CorrelationID,
	})

	slog.InfoContext(ctx, "document processed",
		"document_id", payload.DocumentID,
		"chunks_created", res.ChunksCreated,
		"total_chunks", res.TotalChunks)
	return nil
}

// fail retries transient failures through NSQ and gives up after maxAttempts,
// recording the job so it can be replayed from the API.
func (h *ProcessConsumer) fail(ctx context.Context, m *nsq.Message, payload DocumentProcessPayload, reason string) error {
	if m.Attempts < maxAttempts {
		return nsqRetryErr{reason}
	}

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, StatusFailed); err != nil {
		slog.ErrorContext(ctx, "cannot mark document failed", "document_id", payload.DocumentID, "error", err)
	}
	if err := h.failures.Record(ctx, payload.DocumentID, config.TopicDocumentProcess, reason, m.Body); err != nil {
		slog.ErrorContext(ctx, "cannot record failed job", "document_id", payload.DocumentID, "error", err)
	}

	h.publishResult(ctx, DocumentResultPayload{
		DocumentID:    payload.DocumentID,
		Success:       false,
		Error:         reason,
		CorrelationID: payload.CorrelationID,
	})
	return nil
}

func (h *ProcessConsumer) publishResult(ctx context.Context, result DocumentResultPayload) {
	if h.producer == nil {
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		slog.ErrorContext(ctx, "cannot marshal result payload", "error", err)
		return
	}
	if err := h.producer.Publish(config.TopicDocumentResult, body); err != nil {
		slog.ErrorContext(ctx, "cannot publish result", "document_id", result.DocumentID, "error", err)
	}
}

type nsqRetryErr struct{ reason string }

func (e nsqRetryErr) Error() string { return e.reason }
