package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/config"
	"github.com/kailas-cloud/propsearch/internal/db"
	dbRedis "github.com/kailas-cloud/propsearch/internal/db/redis"
	"github.com/kailas-cloud/propsearch/internal/domain"
	logpkg "github.com/kailas-cloud/propsearch/internal/logger"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	"github.com/kailas-cloud/propsearch/internal/repository/embcache"
	propertyrepo "github.com/kailas-cloud/propsearch/internal/repository/property"
	chiTransport "github.com/kailas-cloud/propsearch/internal/transport/chi"
	lcCompleter "github.com/kailas-cloud/propsearch/internal/transport/langchain"
	openaiTransport "github.com/kailas-cloud/propsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/propsearch/internal/usecase/embedding"
	"github.com/kailas-cloud/propsearch/internal/usecase/extraction"
	healthuc "github.com/kailas-cloud/propsearch/internal/usecase/health"
	"github.com/kailas-cloud/propsearch/internal/usecase/ranking"
	searchuc "github.com/kailas-cloud/propsearch/internal/usecase/search"
	"github.com/kailas-cloud/propsearch/internal/version"
)

func main() {
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

	logger.Info("Starting propsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	catalog := propertyrepo.New(store, propertyrepo.Config{
		IndexName:  cfg.Index.Name,
		KeyPrefix:  cfg.Index.KeyPrefix,
		Dimensions: cfg.Embedding.Dimensions,
		Vector:     vectorIndexConfig(cfg.Index),
	})
	if err := catalog.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure catalog index", zap.Error(err))
	}

	embedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("embedding_mode", string(embedder.Mode())),
		zap.String("model", embedder.Model()),
		zap.Int("dimensions", embedder.Dimensions()),
	)

	completer, err := buildCompleter(cfg.Extraction, logger)
	if err != nil {
		logger.Fatal("Failed to create completer", zap.Error(err))
	}
	extractor := extraction.New(completer, extraction.Config{
		Temperature: cfg.Extraction.Temperature,
		MaxTokens:   cfg.Extraction.MaxTokens,
		Timeout:     time.Duration(cfg.Extraction.TimeoutMs) * time.Millisecond,
		Amenities:   cfg.Extraction.Amenities,
	}, logger)

	searchSvc := searchuc.New(catalog, extractor, embedder, ranking.DefaultRegistry(), searchuc.Config{
		CandidateLimit: cfg.Search.CandidateLimit,
		MinScore:       cfg.Search.MinScore,
	}, logger)

	healthSvc := healthuc.New(store, embedder, newProviderHealthChecker(completer))

	server := chiTransport.NewServer(searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// vectorIndexConfig maps the validated index section onto the catalog's vector index settings.
func vectorIndexConfig(ic config.IndexConfig) propertyrepo.VectorIndexConfig {
	algo := db.VectorHNSW
	if ic.Algorithm == config.IndexAlgorithmFlat {
		algo = db.VectorFlat
	}
	return propertyrepo.VectorIndexConfig{
		Algorithm:   algo,
		M:           ic.HNSWM,
		EFConstruct: ic.HNSWEFConstruct,
		BlockSize:   ic.FlatBlockSize,
	}
}

// buildEmbedder picks the live provider (behind the query cache) or the hash fallback.
func buildEmbedder(cfg config.EmbeddingConfig, store *dbRedis.Store, logger *zap.Logger) *embeddinguc.Service {
	opts := embeddinguc.Options{
		Dimensions: cfg.Dimensions,
		Timeout:    time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}

	if !cfg.LiveEmbedding() {
		logger.Warn("Embedding API key not configured, using deterministic fallback embeddings; "+
			"similarity scores carry no meaning",
			zap.String("embedding_mode", string(domain.EmbeddingNonSemantic)),
		)
		opts.Mode = domain.EmbeddingNonSemantic
		opts.Model = embeddinguc.HashModel
		return embeddinguc.NewService(embeddinguc.NewHashEmbedder(cfg.Dimensions), opts, logger)
	}

	var inner domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Logger:     logger,
	})
	if cfg.CacheTTLSec > 0 {
		inner = embcache.New(inner, store, embcache.Options{
			Model: cfg.Model,
			TTL:   time.Duration(cfg.CacheTTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	opts.Mode = domain.EmbeddingSemantic
	opts.Model = cfg.Model
	return embeddinguc.NewService(inner, opts, logger)
}

func buildCompleter(cfg config.ExtractionConfig, logger *zap.Logger) (domain.Completer, error) {
	switch cfg.Provider {
	case config.ExtractionProviderLangchain:
		return lcCompleter.New(lcCompleter.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Logger:  logger,
		})
	default:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			logger.Warn("Extraction API key not configured; filter extraction will degrade on every query")
		}
		return openaiTransport.NewCompleter(&openaiTransport.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		}), nil
	}
}

// providerHealthChecker probes a provider when it supports health checks.
type providerHealthChecker struct {
	provider any
}

func newProviderHealthChecker(provider any) *providerHealthChecker {
	return &providerHealthChecker{provider: provider}
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.provider.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("provider health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logpkg.FromContextOr(r.Context(), logger).Error("panic recovered",
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

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", chi.RouteContext(r.Context()).RoutePattern()),
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
