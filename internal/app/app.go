package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"nestora/backend/features/chat"
	"nestora/backend/features/document"
	"nestora/backend/features/job"
	"nestora/backend/features/stats"
	"nestora/backend/internal/adapter/extractor"
	"nestora/backend/internal/adapter/gemini"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/config"
	"nestora/backend/internal/ingest"
	"nestora/backend/internal/middleware"
	"nestora/backend/internal/retrieval"
	"nestora/backend/internal/settings"
	"nestora/backend/internal/worker"
)

// Database exists so tests can hand in sqlmock; repositories still need the
// concrete *sql.DB underneath.
type Database interface {
	PingContext(ctx context.Context) error
}

// ChunkStore is the full chunk persistence surface. Both the pgvector store
// and the Weaviate store satisfy it.
type ChunkStore interface {
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []chunkstore.Chunk) (int, error)
	InsertChunk(ctx context.Context, chunk chunkstore.Chunk) (string, error)
	NearestNeighbors(ctx context.Context, vector []float32, threshold float32, limit int, documentID string) ([]chunkstore.Match, error)
	TextSearch(ctx context.Context, query string, limit int) ([]chunkstore.Match, error)
	GetChunks(ctx context.Context, documentID string, limit, offset int) ([]chunkstore.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	ProcessConsumer *worker.ProcessConsumer

	port int
}

func New(
	cfg *config.Config,
	db Database,
	chunks ChunkStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
) (*App, error) {
	sqlDB := db.(*sql.DB)

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(sqlDB)
	settingsService := settings.NewService(settingsRepo)
	seedAPIKey(cfg, settingsService)
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters
	embedder := gemini.NewEmbedder(settingsService, cfg.EmbedConcurrency)
	extractorClient := extractor.NewClient(cfg.ExtractorURL)

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(extractorClient, embedder, embedder, chunks, settingsService, cfg.ChunkTargetSize, cfg.ChunkOverlap)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(sqlDB)
	documentService := document.NewService(documentRepo, taskPub, chunks, pipeline, cfg.UploadDir)
	documentHandler := document.NewHandler(documentService, int(cfg.MaxUploadSizeMB))

	// Feature: Job
	jobRepo := job.NewPostgresRepo(sqlDB)
	jobService := job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, jobRepo, chunks)

	// Feature: Chat (retrieval)
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, chunks, settingsService, queryLogger)
	chatHandler := chat.NewHandler(retrievalService)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/reprocess", middleware.CorrelationID(enableCORS(documentHandler.Reprocess)))
	mux.Handle("POST /documents/{id}/chunks", middleware.CorrelationID(enableCORS(documentHandler.AddChunk)))

	mux.Handle("POST /chat/context", middleware.CorrelationID(enableCORS(chatHandler.Context)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	processConsumer := worker.NewProcessConsumer(pipeline, documentRepo, jobService, taskPub)

	return &App{
		Handler:         mux,
		DocumentService: documentService,
		ProcessConsumer: processConsumer,
		port:            cfg.ServerPort,
	}, nil
}

// seedAPIKey copies the env-provided Gemini key into settings when none is
// stored yet, so a fresh deployment works without touching the settings API.
func seedAPIKey(cfg *config.Config, svc *settings.Service) {
	if cfg.GeminiAPIKey == "" {
		return
	}
	ctx := context.Background()
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}
	if set.GeminiAPIKey != "" {
		return
	}
	set.GeminiAPIKey = cfg.GeminiAPIKey
	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed gemini api key", "error", err)
	} else {
		slog.Info("seeded gemini api key from environment")
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
