package job

import (
	"encoding/json"
	"time"
)

// Job is a dead-lettered queue message kept for manual replay after NSQ
// retries are exhausted. Payload holds the original message body verbatim,
// so a retry republishes exactly what the worker first consumed.
type Job struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewDeadLetter builds the ledger entry for a message the worker gave up on.
func NewDeadLetter(documentID, topic, reason string, payload []byte) *Job {
	return &Job{
		DocumentID: documentID,
		Topic:      topic,
		Payload:    json.RawMessage(payload),
		Error:      reason,
	}
}
