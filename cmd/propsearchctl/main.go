// Command propsearchctl is the operator CLI: catalog index management, seeding and embedding backfill.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/config"
	"github.com/kailas-cloud/propsearch/internal/db"
	dbRedis "github.com/kailas-cloud/propsearch/internal/db/redis"
	"github.com/kailas-cloud/propsearch/internal/domain"
	logpkg "github.com/kailas-cloud/propsearch/internal/logger"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	propertyrepo "github.com/kailas-cloud/propsearch/internal/repository/property"
	openaiTransport "github.com/kailas-cloud/propsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/propsearch/internal/usecase/embedding"
)

var envName string

var rootCmd = &cobra.Command{
	Use:   "propsearchctl",
	Short: "Operator tooling for the property search catalog",
	Long: `propsearchctl manages the property catalog behind the search API:
it creates the search index, loads fixture listings and backfills
listing embeddings in paced, idempotent batches.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "config environment (default: $ENV or local)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app holds the dependencies shared by subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *dbRedis.Store
	catalog  *propertyrepo.Repo
	embedder *embeddinguc.Service
}

func newApp(ctx context.Context) (*app, error) {
	env := envName
	if env == "" {
		env = config.GetEnv()
	}
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterBackfillMetrics()

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		catalog: propertyrepo.New(store, propertyrepo.Config{
			IndexName:  cfg.Index.Name,
			KeyPrefix:  cfg.Index.KeyPrefix,
			Dimensions: cfg.Embedding.Dimensions,
			Vector:     vectorIndexConfig(cfg.Index),
		}),
		embedder: newEmbedder(cfg.Embedding, logger),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// newEmbedder builds the document embedder. Backfill bypasses the query cache.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) *embeddinguc.Service {
	opts := embeddinguc.Options{
		Dimensions: cfg.Dimensions,
		Timeout:    time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
	if !cfg.LiveEmbedding() {
		logger.Warn("Embedding API key not configured, using deterministic fallback embeddings",
			zap.String("embedding_mode", string(domain.EmbeddingNonSemantic)),
		)
		opts.Mode = domain.EmbeddingNonSemantic
		opts.Model = embeddinguc.HashModel
		return embeddinguc.NewService(embeddinguc.NewHashEmbedder(cfg.Dimensions), opts, logger)
	}

	opts.Mode = domain.EmbeddingSemantic
	opts.Model = cfg.Model
	return embeddinguc.NewService(openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Logger:     logger,
	}), opts, logger)
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
