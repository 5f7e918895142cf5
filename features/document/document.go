package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/config"
	"nestora/backend/internal/middleware"
	"nestora/backend/internal/worker"
)

var (
	ErrDuplicate       = errors.New("document already uploaded")
	ErrUnsupportedFile = errors.New("only .pdf, .md and .txt files are supported")
	ErrBadDocumentType = errors.New("document type must be brochure, faq or pricing")
)

// contentTypes maps accepted upload extensions to the MIME type the
// processing pipeline keys its strategy on.
var contentTypes = map[string]string{
	".pdf": "application/pdf",
	".md":  "text/markdown",
	".txt": "text/plain",
}

var documentTypes = map[string]bool{
	"brochure": true,
	"faq":      true,
	"pricing":  true,
}

type Document struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"content_type"`
	StoragePath  string `json:"-"`
	DocumentType string `json:"document_type"`
	ContentHash  string `json:"-"`
	Status       string `json:"status"` // queued, processing, processed, failed
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type ChunkStore interface {
	GetChunks(ctx context.Context, documentID string, limit, offset int) ([]chunkstore.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// ChunkInserter embeds and stores a single hand-authored chunk. Satisfied by
// the ingestion pipeline.
type ChunkInserter interface {
	AddChunk(ctx context.Context, documentID, documentType, content string, chunkIndex int) (string, error)
}

type Service struct {
	repo       Repository
	pub        EventPublisher
	chunkStore ChunkStore
	inserter   ChunkInserter
	uploadDir  string
}

func NewService(repo Repository, pub EventPublisher, chunkStore ChunkStore, inserter ChunkInserter, uploadDir string) *Service {
	return &Service{repo: repo, pub: pub, chunkStore: chunkStore, inserter: inserter, uploadDir: uploadDir}
}

func (s *Service) Upload(ctx context.Context, filename, documentType string, data []byte) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := contentTypes[ext]
	if !ok {
		return nil, ErrUnsupportedFile
	}
	if !documentTypes[documentType] {
		return nil, ErrBadDocumentType
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.repo.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	storagePath, err := s.store(filename, data)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	doc := &Document{
		Name:         filepath.Base(filename),
		ContentType:  contentType,
		StoragePath:  storagePath,
		DocumentType: documentType,
		ContentHash:  hash,
		Status:       "queued",
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	s.publishProcess(ctx, doc)
	return doc, nil
}

func (s *Service) store(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type DocumentDetail struct {
	Document
	Chunks      []chunkstore.Chunk `json:"chunks"`
	TotalChunks int                `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, id string, limit, offset int) (*DocumentDetail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunkStore.GetChunks(ctx, id, limit, offset)
	if err != nil {
		slog.Warn("failed to fetch chunks", "error", err, "document_id", id)
		chunks = []chunkstore.Chunk{}
	}

	return &DocumentDetail{
		Document:    *doc,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

// AddChunk stores one hand-authored chunk under an existing document,
// embedding it synchronously instead of going through the async pipeline.
// Useful for corrections the source files do not contain.
func (s *Service) AddChunk(ctx context.Context, id, content string, chunkIndex int) (string, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.inserter.AddChunk(ctx, doc.ID, doc.DocumentType, content, chunkIndex)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete purges stored chunks first so retrieval can never serve content
// from a document that no longer exists.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.chunkStore.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) Reprocess(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, "queued"); err != nil {
		return err
	}
	s.publishProcess(ctx, doc)
	return nil
}

func (s *Service) publishProcess(ctx context.Context, doc *Document) {
	payload, _ := json.Marshal(worker.DocumentProcessPayload{
		DocumentID:    doc.ID,
		StoragePath:   doc.StoragePath,
		ContentType:   doc.ContentType,
		DocumentType:  doc.DocumentType,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicDocumentProcess, payload); err != nil {
		slog.Error("failed to publish document.process event", "error", err, "document_id", doc.ID)
	} else {
		slog.Info("published document.process event", "document_id", doc.ID, "name", doc.Name)
	}
}
