package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"nestora"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"nestora"`

	// Vector backend: "pgvector" keeps chunks in the main database,
	// "weaviate" routes them to a dedicated instance.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	ExtractorURL string `envconfig:"EXTRACTOR_URL" default:"http://extractor:8000"`
	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI           bool   `envconfig:"ENABLE_API" default:"true"`
	EnableProcessWorker bool   `envconfig:"ENABLE_PROCESS_WORKER" default:"true"`
	MigrationPath       string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`

	// Chunking defaults; runtime overrides live in the settings table.
	ChunkTargetSize  int `envconfig:"CHUNK_TARGET_SIZE" default:"900"`
	ChunkOverlap     int `envconfig:"CHUNK_OVERLAP" default:"100"`
	EmbedConcurrency int `envconfig:"EMBED_CONCURRENCY" default:"4"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"NESTORA_UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.VectorBackend != "pgvector" && c.VectorBackend != "weaviate" {
		return fmt.Errorf("%w: VECTOR_BACKEND must be pgvector or weaviate", ErrMissingRequired)
	}
	if c.ChunkOverlap >= c.ChunkTargetSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be smaller than CHUNK_TARGET_SIZE", ErrMissingRequired)
	}
	if c.EmbedConcurrency < 1 {
		return fmt.Errorf("%w: EMBED_CONCURRENCY must be at least 1", ErrMissingRequired)
	}
	return nil
}
