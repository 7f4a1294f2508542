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
	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/config"
	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/index/lexical"
	"github.com/aicook/recipesearch/internal/index/vector"
	logpkg "github.com/aicook/recipesearch/internal/logger"
	"github.com/aicook/recipesearch/internal/metrics"
	"github.com/aicook/recipesearch/internal/provider"
	"github.com/aicook/recipesearch/internal/repository/embcache"
	"github.com/aicook/recipesearch/internal/repository/recipes"
	"github.com/aicook/recipesearch/internal/segment"
	chiTransport "github.com/aicook/recipesearch/internal/transport/chi"
	healthuc "github.com/aicook/recipesearch/internal/usecase/health"
	rebuilduc "github.com/aicook/recipesearch/internal/usecase/rebuild"
	searchuc "github.com/aicook/recipesearch/internal/usecase/search"
	"github.com/aicook/recipesearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting recipesearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("dataset", cfg.Dataset.Path),
	)

	// Register embedding and search metrics explicitly (no init())
	metrics.Register()

	// Load the dataset and build the lexical index once at startup.
	dataset, err := recipes.Load(cfg.Dataset.Path)
	if err != nil {
		logger.Fatal("Failed to load recipe dataset", zap.Error(err))
	}

	segmenter, err := segment.New(cfg.Search.Stopwords...)
	if err != nil {
		logger.Fatal("Failed to create segmenter", zap.Error(err))
	}

	lexIndex := lexical.Build(dataset, segmenter, lexical.Options{
		K1:             cfg.Search.BM25K1,
		B:              cfg.Search.BM25B,
		FuzzyThreshold: cfg.Search.FuzzyThreshold,
		FuzzyDiscount:  cfg.Search.FuzzyDiscount,
	})
	logger.Info("Lexical index built",
		zap.Int("recipes", lexIndex.DocCount()),
		zap.Int("terms", lexIndex.TermCount()),
	)

	// The vector index starts empty and is populated by POST /rebuild.
	vectors := &vector.Holder{}

	// Build embedder chain: providers -> gateway -> cache decorator
	registry := provider.NewRegistry(cfg.Embedding, logger)
	var embedder domain.Embedder = provider.NewGateway(
		registry, time.Duration(cfg.Embedding.TimeoutSec)*time.Second, logger,
	)

	if len(cfg.Cache.Addrs) > 0 {
		store, err := embcache.NewStore(embcache.StoreConfig{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to embedding cache", zap.Error(err))
		}
		defer store.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Fatal("Embedding cache not ready", zap.Error(err))
		}

		embedder = embcache.New(
			embedder, store,
			time.Duration(cfg.Cache.TTLHours)*time.Hour,
			metrics.EmbeddingCacheTotal, logger,
		)
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Create use case services
	searchSvc := searchuc.NewService(lexIndex, vectors, embedder, segmenter, searchuc.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Weights: searchuc.Weights{
			Lexical: cfg.Search.Weights.Lexical,
			Vector:  cfg.Search.Weights.Vector,
			Fuzzy:   cfg.Search.Weights.Fuzzy,
		},
		DefaultProvider: cfg.Embedding.DefaultProvider,
	}, logger)

	rebuildSvc := rebuilduc.NewService(dataset, vectors, embedder, rebuilduc.Config{
		DefaultProvider: cfg.Embedding.DefaultProvider,
		BatchSize:       cfg.Embedding.BatchSize,
		MaxBatchSize:    cfg.Embedding.MaxBatchSize,
	}, logger)

	healthSvc := healthuc.NewService(lexIndex, vectors)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, rebuildSvc, healthSvc, registry, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one line per request
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
