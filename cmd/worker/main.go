package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
	"github.com/dharsanguruparan/pdfsummarizer/internal/database"
	"github.com/dharsanguruparan/pdfsummarizer/internal/logging"
	"github.com/dharsanguruparan/pdfsummarizer/internal/queue"
	"github.com/dharsanguruparan/pdfsummarizer/internal/repository"
	"github.com/dharsanguruparan/pdfsummarizer/internal/s3storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("init logging")
	}
	if !cfg.ArchiveEnabled() || !cfg.StorageEnabled() {
		log.Fatal("worker needs SUMMARIZER_REDIS_ADDR and SUMMARIZER_S3_ENDPOINT")
	}

	var journal worker.ArchiveJournal
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("connect database")
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.WithError(err).Fatal("ensure schema")
		}
		journal = repository.NewSubmissionRepository(pool)
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.WithError(err).Fatal("ensure bucket")
	}

	server := asynq.NewServer(queue.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.ArchiveWorkers,
		Logger:      log,
	})
	processor := worker.NewProcessor(journal, store, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.WithFields(logrus.Fields{"bucket": store.Bucket(), "workers": cfg.ArchiveWorkers}).Info("archive worker starting")
	if err := server.Run(mux); err != nil {
		log.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}
