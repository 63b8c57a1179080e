package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/ai"
	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/db"
	"github.com/clavisedu/ragline/internal/embedcache"
	"github.com/clavisedu/ragline/internal/filestore"
	"github.com/clavisedu/ragline/internal/handler"
	"github.com/clavisedu/ragline/internal/job"
	"github.com/clavisedu/ragline/internal/knowledge"
	"github.com/clavisedu/ragline/internal/middleware"
	"github.com/clavisedu/ragline/internal/repo"
	"github.com/clavisedu/ragline/internal/schedule"
	"github.com/clavisedu/ragline/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragline",
		Short: "retrieval pipeline and chat backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "process the pending embedding queue once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runDrain(cfg, conn)
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "check database and provider connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runVerify(cfg, conn)
		},
	}

	rootCmd.AddCommand(runCmd, drainCmd, verifyCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func buildGenerator(cfg *config.Config) (ai.IGenerator, error) {
	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	primary := ai.NewGenerator(provider, cfg.AI.Model)
	if len(cfg.AI.Fallbacks) == 0 {
		return primary, nil
	}
	entries := []ai.GeneratorEntry{{Name: cfg.AI.Provider, Generator: primary}}
	for _, fb := range cfg.AI.Fallbacks {
		p, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
		}
		model := fb.Model
		if model == "" {
			model = cfg.AI.Model
		}
		entries = append(entries, ai.GeneratorEntry{Name: fb.Provider, Generator: ai.NewGenerator(p, model)})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg *config.Config) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.AI.EmbedProvider, cfg.AI.EmbedData)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel)
	if len(cfg.AI.Fallbacks) > 0 {
		entries := []ai.EmbedderEntry{{Name: cfg.AI.EmbedProvider, Embedder: embedder}}
		for _, fb := range cfg.AI.Fallbacks {
			p, err := ai.NewEmbedProvider(fb.Provider, fb.Data)
			if err != nil {
				return nil, fmt.Errorf("init fallback embed provider %s: %w", fb.Provider, err)
			}
			model := fb.EmbedModel
			if model == "" {
				model = cfg.AI.EmbedModel
			}
			entries = append(entries, ai.EmbedderEntry{Name: fb.Provider, Embedder: ai.NewEmbedder(p, model)})
		}
		embedder = ai.NewGroupEmbedder(entries)
	}
	if cfg.Search.CacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Search.CacheSize, time.Duration(cfg.Search.CacheTTLMin)*time.Minute)
	}
	return embedder, nil
}

func buildIndexer(cfg *config.Config, conn *sql.DB, embedder ai.IEmbedder) (*service.Indexer, error) {
	audit, err := filestore.New(cfg.AuditStore.Type, cfg.AuditStore.Data)
	if err != nil {
		return nil, fmt.Errorf("init audit store: %w", err)
	}
	embeddingRepo := repo.NewEmbeddingRepo(conn)
	queueRepo := repo.NewQueueRepo(conn)
	return service.NewIndexer(embeddingRepo, queueRepo, embedder, nil, audit, cfg.Indexer), nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embed_provider", cfg.AI.EmbedProvider),
	)

	embeddingRepo := repo.NewEmbeddingRepo(conn)
	queueRepo := repo.NewQueueRepo(conn)
	analyticsRepo := repo.NewAnalyticsRepo(conn)

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	indexer, err := buildIndexer(cfg, conn, embedder)
	if err != nil {
		return err
	}

	knowledgeSet, err := knowledge.Load(cfg.Knowledge.DataPath)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}

	searchEngine := service.NewSearchEngine(embeddingRepo, embedder, cfg.Search)
	analytics := service.NewAnalytics(analyticsRepo)
	orchestrator := service.NewChatOrchestrator(
		service.NewClassifier(),
		searchEngine,
		knowledge.NewAssembler(knowledgeSet, cfg.Knowledge.MaxContextChars),
		service.NewPromptAssembler(cfg.Prompt),
		generator,
		analytics,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second,
	)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIndexDrainJob(indexer), cfg.Indexer.DrainSpec); err != nil {
		return fmt.Errorf("schedule drain job: %w", err)
	}

	deps := handler.RouterDeps{
		Chat:           handler.NewChatHandler(orchestrator),
		Search:         handler.NewSearchHandler(searchEngine),
		Index:          handler.NewIndexHandler(indexer),
		Feedback:       handler.NewFeedbackHandler(analytics),
		Diag:           handler.NewDiagHandler(embeddingRepo, queueRepo, analyticsRepo, embedder, scheduler),
		ChatRateWindow: time.Duration(cfg.ChatRateWindowMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runDrain(cfg *config.Config, conn *sql.DB) error {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	indexer, err := buildIndexer(cfg, conn, embedder)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := indexer.DrainQueue(ctx)
	logutil.GetLogger(ctx).Info("drain finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("poisoned", report.Poisoned),
	)
	return err
}

func runVerify(cfg *config.Config, conn *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := logutil.GetLogger(ctx)

	embeddingRepo := repo.NewEmbeddingRepo(conn)
	queueRepo := repo.NewQueueRepo(conn)
	analyticsRepo := repo.NewAnalyticsRepo(conn)

	records, err := embeddingRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count embedding records: %w", err)
	}
	pending, err := queueRepo.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count queue: %w", err)
	}
	turns, err := analyticsRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count analytics: %w", err)
	}
	logger.Info("database reachable",
		zap.Int64("embedding_records", records),
		zap.Int64("queue_pending", pending),
		zap.Int64("analytics_rows", turns),
	)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	emb, err := embedder.Embed(ctx, "ping", "RETRIEVAL_QUERY")
	if err != nil {
		return fmt.Errorf("embed smoke test: %w", err)
	}
	if cfg.AI.EmbedDimension > 0 && len(emb) != cfg.AI.EmbedDimension {
		return fmt.Errorf("embedding dimension mismatch: provider returned %d, store expects %d", len(emb), cfg.AI.EmbedDimension)
	}
	logger.Info("embed provider reachable", zap.String("model", embedder.ModelName()), zap.Int("dimension", len(emb)))
	return nil
}
