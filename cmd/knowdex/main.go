package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/chunker"
	"github.com/norma-cloud/knowdex/internal/config"
	"github.com/norma-cloud/knowdex/internal/db"
	dbRedis "github.com/norma-cloud/knowdex/internal/db/redis"
	"github.com/norma-cloud/knowdex/internal/fetch"
	logpkg "github.com/norma-cloud/knowdex/internal/logger"
	"github.com/norma-cloud/knowdex/internal/metrics"
	"github.com/norma-cloud/knowdex/internal/repository/feedstate"
	chiTransport "github.com/norma-cloud/knowdex/internal/transport/chi"
	openaiTransport "github.com/norma-cloud/knowdex/internal/transport/openai"
	healthuc "github.com/norma-cloud/knowdex/internal/usecase/health"
	ingestuc "github.com/norma-cloud/knowdex/internal/usecase/ingest"
	raguc "github.com/norma-cloud/knowdex/internal/usecase/rag"
	scheduleruc "github.com/norma-cloud/knowdex/internal/usecase/scheduler"
	searchuc "github.com/norma-cloud/knowdex/internal/usecase/search"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
	vsMemory "github.com/norma-cloud/knowdex/internal/vectorstore/memory"
	vsRedis "github.com/norma-cloud/knowdex/internal/vectorstore/redis"
	"github.com/norma-cloud/knowdex/internal/version"
)

func main() {
	// .env is optional; real deployments use actual env variables
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting knowdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Database.Driver),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestionMetrics()

	ctx := context.Background()

	// Vector store backend: in-process reference store or Redis FT index.
	var (
		store    vectorstore.Store
		kvStore  db.KVStore
		dbPinger db.Pinger
	)
	switch cfg.Database.Driver {
	case "memory":
		store = vsMemory.New(cfg.Embedding.Dimensions)
		kvStore = feedstate.NewMemoryKV()
	case "redis":
		redisStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		kvStore = redisStore
		dbPinger = redisStore
		defer redisStore.Close()

		if err := redisStore.WaitForReady(ctx,
			time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		store = vsRedis.New(redisStore, cfg.Embedding.Dimensions)
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Database.Driver))
	}

	if err := store.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect vector store", zap.Error(err))
	}
	defer func() { _ = store.Close(ctx) }()
	logger.Info("Vector store connected", zap.Int("dimensions", cfg.Embedding.Dimensions))

	embedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Model:    cfg.Generation.Model,
		Provider: cfg.Generation.Provider,
		Logger:   logger,
	})

	// Overlap >= size is a configuration fault; refuse to start.
	textChunker, err := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunking configuration", zap.Error(err))
	}

	fetchTimeout := time.Duration(cfg.Ingestion.FetchTimeout) * time.Second
	webFetcher := fetch.NewWebFetcher(fetchTimeout)
	rssFetcher := fetch.NewRSSFetcher(fetchTimeout)

	ingestSvc := ingestuc.New(store, embedder, textChunker).
		WithEmbedBatchSize(cfg.Ingestion.EmbedBatchSize)
	searchSvc := searchuc.New(store, embedder)
	ragSvc := raguc.New(searchSvc, generator)

	stateRepo := feedstate.New(kvStore, cfg.Scheduler.StateKey)
	schedulerSvc := scheduleruc.New(rssFetcher, webFetcher, ingestSvc, stateRepo, logger).
		WithItemDelay(time.Duration(cfg.Scheduler.ItemDelaySec) * time.Second).
		WithFeedDelay(time.Duration(cfg.Scheduler.FeedDelaySec) * time.Second)
	if err := schedulerSvc.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore feed registry", zap.Error(err))
	}
	schedulerSvc.Start()
	defer schedulerSvc.Stop()

	healthSvc := healthuc.New(store, dbPinger, embedder)

	server := chiTransport.NewServer(searchSvc, ragSvc, ingestSvc, schedulerSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
