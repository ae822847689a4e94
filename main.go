package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/background"
	cfg "github.com/openclaw/memoryd/internal/config"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/embeddings"
	"github.com/openclaw/memoryd/internal/enricher"
	"github.com/openclaw/memoryd/internal/health"
	"github.com/openclaw/memoryd/internal/httpapi"
	"github.com/openclaw/memoryd/internal/ingest"
	"github.com/openclaw/memoryd/internal/llm"
	"github.com/openclaw/memoryd/internal/parser"
	"github.com/openclaw/memoryd/internal/ratelimit"
	"github.com/openclaw/memoryd/internal/retriever"
	"github.com/openclaw/memoryd/internal/vectordb"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	config, err := cfg.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Relational store. Schema bootstrap is idempotent.
	store, err := db.NewClient(&db.Config{
		Host:            config.Postgres.Host,
		Port:            config.Postgres.Port,
		User:            config.Postgres.User,
		Password:        config.Postgres.Password,
		Database:        config.Postgres.Database,
		SSLMode:         config.Postgres.SSLMode,
		MaxConnections:  config.Postgres.MaxConnections,
		IdleConnections: config.Postgres.IdleConnections,
		MaxLifetime:     config.Postgres.MaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer store.Close()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Initialize(initCtx); err != nil {
		cancel()
		logger.Fatal("Failed to initialize schema", zap.Error(err))
	}
	cancel()

	// Embedding cache: in-process LRU always, Redis second level when
	// configured. Redis being down at startup is not fatal.
	var redisCache *embeddings.RedisCache
	var embedCache embeddings.Cache
	if config.Redis.Enabled {
		redisCache, err = embeddings.NewRedisCache(config.Redis.Addr)
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing without it",
				zap.String("addr", config.Redis.Addr),
				zap.Error(err))
		} else {
			defer redisCache.Close()
			embedCache = redisCache
		}
	}

	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:      config.LLM.EmbeddingsBaseURL,
		APIKey:       config.LLM.APIKey,
		DefaultModel: config.LLM.EmbeddingModel,
		Timeout:      config.LLM.EmbeddingTimeout,
	}, embedCache)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:           config.LLM.ChatBaseURL,
		APIKey:            config.LLM.APIKey,
		Model:             config.LLM.ChatModel,
		VisionModel:       config.LLM.VisionModel,
		Timeout:           config.LLM.ChatTimeout,
		VisionTimeout:     config.LLM.VisionTimeout,
		RequestsPerSecond: config.LLM.RequestsPerSecond,
	}, logger)

	redactor := llm.NewRedactor(config.Redaction.BaseURL, config.Redaction.Timeout, logger)

	vectors := vectordb.NewClient(vectordb.Config{
		Host:      config.Vector.Host,
		Port:      config.Vector.Port,
		Dimension: config.Vector.Dimension,
		Timeout:   config.Vector.Timeout,
	}, logger)

	collCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := vectors.EnsureCollections(collCtx); err != nil {
		// Vector search degrades to the relational fallback, so a cold
		// Qdrant only warns here.
		logger.Warn("Vector collections unavailable at startup", zap.Error(err))
	}
	cancel()

	// Pipeline services.
	docParser := parser.New(llmClient, logger)
	enrich := enricher.New(llmClient, store, logger)
	ingestor := ingest.NewService(store, docParser, enrich, redactor, embedder, vectors, logger)
	search := retriever.New(store, embedder, vectors, logger)

	// Gate.
	agentAuth := auth.NewService(store, logger)
	adminAuth := auth.NewAdmin(config.Admin.PasswordHash, config.Admin.JWTSecret, config.Admin.TokenExpiry)
	authMW := auth.NewMiddleware(agentAuth, adminAuth)
	limiter := ratelimit.NewLimiter()
	rateMW := ratelimit.NewMiddleware(limiter, store, logger)

	// Prompt seed overlay with hot reload. A missing directory only
	// costs the seeding feature.
	if watcher, werr := cfg.NewWatcher(config.Seed.Dir, logger); werr != nil {
		logger.Warn("Seed watcher unavailable", zap.Error(werr))
	} else {
		watcher.OnChange("prompts.yaml", func(event cfg.ChangeEvent) error {
			return applyPromptSeed(ctx, store, event)
		})
		if werr := watcher.Start(ctx); werr != nil {
			logger.Warn("Seed watcher failed to start", zap.Error(werr))
		} else {
			defer watcher.Stop()
		}
	}

	// Background loop.
	exporter := background.NewExporter(store, logger)
	miner := background.NewMiner(store, llmClient, ingestor, logger)
	loop := background.NewLoop(store, exporter, miner, limiter, logger)
	loop.Start()
	defer loop.Stop()

	// Health manager shared by both servers.
	hm := health.NewManager(logger)
	mustRegister(logger, hm, health.NewPostgresChecker(store.DB()))
	mustRegister(logger, hm, health.NewQdrantChecker(vectors.BaseURL()))
	if redisCache != nil {
		mustRegister(logger, hm, health.NewRedisChecker(redisCache.Client()))
	}
	healthHandler := health.NewHTTPHandler(hm, logger)

	// Agent-facing API.
	apiMux := http.NewServeMux()
	httpapi.NewInteractionsHandler(ingestor, store, authMW, rateMW, logger).RegisterRoutes(apiMux)
	httpapi.NewSearchHandler(search, authMW, rateMW, logger).RegisterRoutes(apiMux)
	httpapi.NewLessonsHandler(ingestor, store, authMW, rateMW, logger).RegisterRoutes(apiMux)
	healthHandler.RegisterRoutes(apiMux)

	// Admin surface, separate listener.
	adminMux := http.NewServeMux()
	httpapi.NewAdminHandler(adminAuth, agentAuth, store, vectors, authMW, logger).RegisterRoutes(adminMux)
	healthHandler.RegisterRoutes(adminMux)
	adminMux.Handle("GET /metrics", promhttp.Handler())

	apiServer := newServer(config, config.Service.Port, apiMux)
	adminServer := newServer(config, config.Service.AdminPort, adminMux)

	go serve(logger, "api", apiServer)
	go serve(logger, "admin", adminServer)

	logger.Info("memoryd started",
		zap.Int("port", config.Service.Port),
		zap.Int("admin_port", config.Service.AdminPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, config.Service.GracefulTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown error", zap.Error(err))
	}
}

func newServer(config *cfg.Config, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  config.Service.ReadTimeout,
		WriteTimeout: config.Service.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

func serve(logger *zap.Logger, name string, srv *http.Server) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("HTTP server failed",
			zap.String("server", name),
			zap.Error(err))
	}
}

func mustRegister(logger *zap.Logger, hm *health.Manager, c health.Checker) {
	if err := hm.RegisterChecker(c); err != nil {
		logger.Error("Failed to register health checker", zap.Error(err))
	}
}

// applyPromptSeed installs prompt templates from the seed overlay.
// Expected shape: task type keys mapping to {name, prompt_text}.
func applyPromptSeed(ctx context.Context, store *db.Client, event cfg.ChangeEvent) error {
	if event.Action == "delete" {
		return nil
	}
	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for taskType, raw := range event.Config {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		text, _ := entry["prompt_text"].(string)
		if text == "" {
			continue
		}
		if name == "" {
			name = taskType + " default"
		}
		if err := store.SeedSystemPrompt(seedCtx, taskType, name, text); err != nil {
			return err
		}
	}
	return nil
}
