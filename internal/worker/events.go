package worker

// DocumentProcessPayload is published to the process topic when a document is
// uploaded or reprocessed.
type DocumentProcessPayload struct {
	DocumentID   string `json:"document_id"`
	StoragePath  string `json:"storage_path"`
	ContentType  string `json:"content_type"`
	DocumentType string `json:"document_type"`

	CorrelationID string `json:"correlation_id"`
}

// DocumentResultPayload is published to the result topic after processing so
// downstream consumers can react without polling.
type DocumentResultPayload struct {
	DocumentID    string `json:"document_id"`
	Success       bool   `json:"success"`
	ChunksCreated int    `json:"chunks_created"`
	TotalChunks   int    `json:"total_chunks"`
	Error         string `json:"error,omitempty"`

	CorrelationID string `json:"correlation_id"`
}
