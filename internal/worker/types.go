package worker

import (
	"context"

	"nestora/backend/internal/ingest"
)

type Processor interface {
	ProcessDocument(ctx context.Context, raw []byte, documentID, contentType, documentType string) (ingest.Result, error)
}

type DocumentStatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

type FailureRecorder interface {
	Record(ctx context.Context, documentID, topic, reason string, payload []byte) error
}

type Publisher interface {
	Publish(topic string, body []byte) error
}
