package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "nestora/backend/internal/adapter/weaviate"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/config"
	"nestora/backend/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	ChunkStore  ChunkStore
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// Chunk store backend
	chunks, err := buildChunkStore(ctx, cfg, db, retryDelay)
	if err != nil {
		return nil, err
	}

	// NSQ Producer
	nsqCfg := nsq.NewConfig()
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		ChunkStore:  chunks,
		NSQProducer: producer,
	}, nil
}

func buildChunkStore(ctx context.Context, cfg *config.Config, db *sql.DB, retryDelay time.Duration) (ChunkStore, error) {
	if cfg.VectorBackend != "weaviate" {
		// pgvector lives in the main database; its schema comes from the
		// regular migrations.
		return chunkstore.NewPostgres(db), nil
	}

	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}

	if err := ensureSchemaWithRetry(ctx, vector.Schema(wClient), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}

	return wstore.NewStore(wClient), nil
}

func ensureSchemaWithRetry(ctx context.Context, client vector.SchemaClient, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = vector.EnsureSchema(ctx, client); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

// createTopics pre-creates topics so consumers can subscribe before the first
// message is published.
func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicDocumentProcess)
		create(config.TopicDocumentResult)
	}()
}
