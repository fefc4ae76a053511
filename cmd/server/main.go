// Package main runs the summarizer HTTP surface: one upload session backed by
// the remote summarization service.
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
	"github.com/dharsanguruparan/pdfsummarizer/internal/encoder"
	"github.com/dharsanguruparan/pdfsummarizer/internal/logging"
	"github.com/dharsanguruparan/pdfsummarizer/internal/metrics"
	"github.com/dharsanguruparan/pdfsummarizer/internal/processing"
	"github.com/dharsanguruparan/pdfsummarizer/internal/queue"
	"github.com/dharsanguruparan/pdfsummarizer/internal/remote"
	"github.com/dharsanguruparan/pdfsummarizer/internal/repository"
	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
	"github.com/dharsanguruparan/pdfsummarizer/internal/s3storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/server"
	"github.com/dharsanguruparan/pdfsummarizer/internal/session"
	"github.com/dharsanguruparan/pdfsummarizer/internal/storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/validate"
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

	m := metrics.New()
	client := remote.New(cfg.Endpoint, cfg.RequestTimeout)
	// One worker: a second request is never issued while one is outstanding.
	processor := processing.New(encoder.New(cfg.MaxFileSize), client, 1, cfg.QueueDepth, log, m)
	processor.Start(ctx)

	// The journal also answers archive lookups for /summary/archive.
	var journal interface {
		session.Journal
		server.ArchiveLookup
	}
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
	} else {
		journal = storage.NewMemoryStore()
	}
	opts := session.Options{Metrics: m, Logger: log, Journal: journal}
	if cfg.ArchiveEnabled() {
		queueClient := asynq.NewClient(queue.RedisOpt(cfg))
		defer queueClient.Close()
		opts.Sinks = append(opts.Sinks, queue.NewArchiver(queueClient))
		log.WithField("redis", cfg.RedisAddr).Info("summary archive enabled")
	}

	ctrl := session.New(
		validate.New(cfg.AcceptedType, cfg.AcceptedExtension),
		processor,
		reveal.New(cfg.RevealInterval),
		opts,
	)
	defer ctrl.Close()

	log.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"maxBytes": cfg.MaxFileSize,
		"timeout":  cfg.RequestTimeout,
	}).Info("summarizer starting")
	srv := server.New(cfg, ctrl, m, log)
	if cfg.StorageEnabled() {
		store, err := s3storage.New(cfg)
		if err != nil {
			log.WithError(err).Fatal("init storage")
		}
		srv.WithArchive(journal, store)
	}
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
