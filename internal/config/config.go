package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedding modes.
const (
	EmbeddingModeAuto     = "auto"
	EmbeddingModeLive     = "live"
	EmbeddingModeFallback = "fallback"
)

// Extraction providers.
const (
	ExtractionProviderOpenAI    = "openai"
	ExtractionProviderLangchain = "langchain"
)

// Vector index algorithms.
const (
	IndexAlgorithmHNSW = "hnsw"
	IndexAlgorithmFlat = "flat"
)

// Config holds the propsearch configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Search     SearchConfig     `yaml:"search"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port               int      `yaml:"port"`
	ReadTimeoutSec     int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec    int      `yaml:"write_timeout_sec"`
	ShutdownSec        int      `yaml:"shutdown_timeout_sec"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds the catalog FT index settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	Algorithm       string `yaml:"algorithm"` // hnsw, flat
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	FlatBlockSize   int    `yaml:"flat_block_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Mode        string `yaml:"mode"` // auto, live, fallback
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 disables the query cache
}

// ExtractionConfig holds the filter-extraction completer settings.
type ExtractionConfig struct {
	Provider    string   `yaml:"provider"` // openai, langchain
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutMs   int      `yaml:"timeout_ms"`
	Amenities   []string `yaml:"amenities"` // empty = built-in vocabulary
}

// SearchConfig holds orchestrator tuning.
type SearchConfig struct {
	CandidateLimit int     `yaml:"candidate_limit"`
	MinScore       float64 `yaml:"min_score"`
}

// BackfillConfig holds embedding backfill pacing.
type BackfillConfig struct {
	BatchSize        int `yaml:"batch_size"`
	PauseMs          int `yaml:"pause_ms"`
	Workers          int `yaml:"workers"`
	MaxRetries       int `yaml:"max_retries"`
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`
}

// LiveEmbedding reports whether the configured mode resolves to the live provider.
func (e EmbeddingConfig) LiveEmbedding() bool {
	switch e.Mode {
	case EmbeddingModeLive:
		return true
	case EmbeddingModeFallback:
		return false
	default:
		return e.APIKey != ""
	}
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expands env variables, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "propsearch:properties:idx"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "propsearch:property:"
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = IndexAlgorithmHNSW
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Embedding.Mode == "" {
		c.Embedding.Mode = EmbeddingModeAuto
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 5000
	}
	if c.Extraction.Provider == "" {
		c.Extraction.Provider = ExtractionProviderOpenAI
	}
	if c.Extraction.Model == "" {
		c.Extraction.Model = "gpt-4o-mini"
	}
	if c.Extraction.Temperature <= 0 {
		c.Extraction.Temperature = 0.1
	}
	if c.Extraction.MaxTokens <= 0 {
		c.Extraction.MaxTokens = 400
	}
	if c.Extraction.TimeoutMs <= 0 {
		c.Extraction.TimeoutMs = 10000
	}
	if c.Search.CandidateLimit <= 0 {
		c.Search.CandidateLimit = 200
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.6
	}
	if c.Backfill.BatchSize <= 0 {
		c.Backfill.BatchSize = 50
	}
	if c.Backfill.PauseMs <= 0 {
		c.Backfill.PauseMs = 1000
	}
	if c.Backfill.Workers <= 0 {
		c.Backfill.Workers = 4
	}
	if c.Backfill.MaxRetries <= 0 {
		c.Backfill.MaxRetries = 3
	}
	if c.Backfill.RetryBaseDelayMs <= 0 {
		c.Backfill.RetryBaseDelayMs = 500
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver must be \"redis\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	switch c.Index.Algorithm {
	case IndexAlgorithmHNSW, IndexAlgorithmFlat:
	default:
		return fmt.Errorf("index.algorithm must be hnsw or flat, got %q", c.Index.Algorithm)
	}
	if c.Index.FlatBlockSize < 0 {
		return fmt.Errorf("index.flat_block_size must not be negative, got %d", c.Index.FlatBlockSize)
	}
	switch c.Embedding.Mode {
	case EmbeddingModeAuto, EmbeddingModeFallback:
	case EmbeddingModeLive:
		if c.Embedding.APIKey == "" {
			return errors.New("embedding.api_key is required when embedding.mode is \"live\"")
		}
	default:
		return fmt.Errorf("embedding.mode must be auto, live or fallback, got %q", c.Embedding.Mode)
	}
	switch c.Extraction.Provider {
	case ExtractionProviderOpenAI, ExtractionProviderLangchain:
	default:
		return fmt.Errorf("extraction.provider must be openai or langchain, got %q", c.Extraction.Provider)
	}
	if c.Extraction.Temperature > 2 {
		return fmt.Errorf("extraction.temperature must be at most 2, got %g", c.Extraction.Temperature)
	}
	if c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in (0,1], got %g", c.Search.MinScore)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
