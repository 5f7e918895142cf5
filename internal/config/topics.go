package config

const (
	// TopicDocumentProcess is the NSQ topic for document processing tasks
	// (extract, chunk, embed, store).
	TopicDocumentProcess = "document.process"

	// TopicDocumentResult is the NSQ topic for processing outcomes consumed
	// by the status updater.
	TopicDocumentResult = "document.result"
)
