package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"nestora/backend/internal/logger"
	"nestora/backend/internal/middleware"
)

func TestContextHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(logger.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := middleware.WithCorrelationID(context.Background(), "corr-42")
	l.InfoContext(ctx, "chunk stored")

	var record map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "corr-42", record["correlation_id"])
}

func TestContextHandler_NoCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(logger.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	l.InfoContext(context.Background(), "chunk stored")

	var record map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, present := record["correlation_id"]
	assert.False(t, present)
}
