package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caselens/timeline-back/internal/cache"
	"github.com/caselens/timeline-back/internal/config"
	"github.com/caselens/timeline-back/internal/extract"
	httpserver "github.com/caselens/timeline-back/internal/http"
	"github.com/caselens/timeline-back/internal/http/handlers"
	"github.com/caselens/timeline-back/internal/queue"
	"github.com/caselens/timeline-back/internal/repository"
	"github.com/caselens/timeline-back/internal/service"
	"github.com/caselens/timeline-back/internal/state"
	"github.com/caselens/timeline-back/internal/textsource"
	"github.com/caselens/timeline-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[timeline-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	texts, err := textsource.NewFileStore(cfg.ExtractedTextDir)
	if err != nil {
		logger.Fatalf("initialize text store: %v", err)
	}

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	extractor, modelID := setupExtractor(cfg, logger)
	coordinator := extract.NewCoordinator(extractor, extract.CoordinatorConfig{
		ConcurrencyLimit: cfg.ExtractConcurrency,
		MaxAttempts:      cfg.ExtractMaxAttempts,
	}, logger)

	machine := state.NewMachine(repo)
	orchestrator := service.NewOrchestrator(service.OrchestratorDependencies{
		Machine:       machine,
		TextSource:    texts,
		Coordinator:   coordinator,
		MaxChunkSize:  cfg.MaxChunkSize,
		ChunkLookback: cfg.ChunkLookback,
		Logger:        logger,
	})

	documentsService := service.NewDocumentsService(repo, texts, producer)
	api := handlers.NewAPI(documentsService)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(consumer, orchestrator, logger)
		go processor.Start(ctx)
		logger.Printf("worker enabled and started model=%s", modelID)
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.DocumentsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryDocumentsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresDocumentsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryDocumentsRepository(), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, 3, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: 3,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(512, 3, logger)
		return local, local, func() {}
	}

	logger.Printf("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}

func setupExtractor(cfg config.Config, logger *log.Logger) (extract.Extractor, string) {
	resultCache := cache.NewExtractionCache(cache.Config{
		TTL:        time.Duration(cfg.ExtractionCacheTTLSeconds) * time.Second,
		MaxEntries: cfg.ExtractionCacheMaxEntries,
	})

	if cfg.OpenRouterAPIKey == "" {
		logger.Printf("OPENROUTER_API_KEY not configured, using mock extractor")
		return extract.NewCachedExtractor(extract.NewMockExtractor(), resultCache, "mock"), "mock"
	}

	client := extract.NewOpenRouterExtractor(extract.OpenRouterExtractorConfig{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
		Timeout: time.Duration(cfg.OpenRouterTimeoutMS) * time.Millisecond,
		SiteURL: cfg.OpenRouterSiteURL,
		AppName: cfg.OpenRouterAppName,
	})
	return extract.NewCachedExtractor(client, resultCache, client.Model()), client.Model()
}
