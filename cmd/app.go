/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/repository"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/utils"
	"go.uber.org/zap"
)

// app holds the components shared by the server and the CLI commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	index    database.VectorIndex
	docs     *service.DocumentService
	sessions *service.SessionFactory
	feedback service.FeedbackService
	activity service.ActivityService
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// loadApp reads the --config file and wires every component.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(cmd.Context(), cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	var index database.VectorIndex
	switch cfg.VectorStore.Driver {
	case "weaviate":
		index, err = database.NewWeaviateIndex(cfg.VectorStore, logger)
		if err != nil {
			return nil, err
		}
	default:
		index = database.NewMemoryIndex(cfg.AI.Dimension)
	}
	a.index = index

	var (
		documents repository.DocumentRepo
		audit     repository.AuditRepo
		feedback  repository.FeedbackRepo
	)
	switch cfg.MetadataStore.Driver {
	case "mongo":
		client, err := database.NewMongoClient(ctx, cfg.MetadataStore.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		db := client.Database(cfg.MetadataStore.Database)
		if documents, err = repository.NewDocumentRepo(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		if audit, err = repository.NewAuditRepo(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		feedback = repository.NewFeedbackRepo(db)
	default:
		sqlDB, err := database.OpenSQLite(cfg.MetadataStore.Path)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewSQLiteStore(ctx, sqlDB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		documents, audit, feedback = store.DocumentRepo(), store.AuditRepo(), store.FeedbackRepo()
	}

	archiver, err := service.NewArchiver(cfg.Archive, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	embedder := service.NewOpenAIEmbedder(cfg.AI, logger)
	a.docs = service.NewDocumentService(service.DocumentServiceDeps{
		Extractor: service.NewPDFExtractor(logger),
		Chunker:   service.NewChunker(service.WithChunkSize(cfg.Chunker.Size), service.WithChunkOverlap(cfg.Chunker.Overlap)),
		Embedder:  embedder,
		Index:     index,
		Documents: documents,
		Audit:     audit,
		Archiver:  archiver,
		Ranker:    service.NewRanker(cfg.Ranking, embedder, index, logger),
		EmbedderFor: func(apiKey string) service.Embedder {
			aiCfg := cfg.AI
			aiCfg.APIKey = apiKey
			return service.NewOpenAIEmbedder(aiCfg, logger)
		},
		ScanLimit: cfg.VectorStore.ScanLimit,
		Logger:    logger,
	})
	a.sessions = service.NewSessionFactory(service.NewAssistantBuilder(cfg.AI, a.docs, logger))
	a.feedback = service.NewFeedbackService(feedback)
	a.activity = service.NewActivityService(audit)
	return a, nil
}
