package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"nestora/backend/internal/app"
	"nestora/backend/internal/config"
	"nestora/backend/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	application, err := app.New(cfg, deps.DB, deps.ChunkStore, deps.NSQProducer, log)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if cfg.EnableProcessWorker {
		consumer, err := nsq.NewConsumer(config.TopicDocumentProcess, "backend", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddHandler(application.ProcessConsumer)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("process worker connected", "topic", config.TopicDocumentProcess)
	}

	if !cfg.EnableAPI {
		slog.Info("API disabled, running worker only")
		<-ctx.Done()
		return
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
