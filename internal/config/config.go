package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the recipesearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
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
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatasetConfig holds the recipe dataset location. The dataset file is the
// system of record; both indices are derived from it.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds query and ranking settings.
type SearchConfig struct {
	DefaultLimit   int           `yaml:"default_limit"`
	MaxLimit       int           `yaml:"max_limit"`
	Weights        WeightsConfig `yaml:"weights"`
	FuzzyThreshold float64       `yaml:"fuzzy_threshold"`
	FuzzyDiscount  float64       `yaml:"fuzzy_discount"`
	BM25K1         float64       `yaml:"bm25_k1"`
	BM25B          float64       `yaml:"bm25_b"`
	Stopwords      []string      `yaml:"stopwords"` // appended to the built-in set
}

// WeightsConfig holds per-channel fusion weights. Exact lexical matches are
// the strongest relevance signal, fuzzy matches the weakest.
type WeightsConfig struct {
	Lexical float64 `yaml:"lexical"`
	Vector  float64 `yaml:"vector"`
	Fuzzy   float64 `yaml:"fuzzy"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	DefaultProvider  string                    `yaml:"default_provider"`
	FallbackProvider string                    `yaml:"fallback_provider"`
	TimeoutSec       int                       `yaml:"timeout_sec"`
	BatchSize        int                       `yaml:"batch_size"`
	MaxBatchSize     int                       `yaml:"max_batch_size"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds one embedding provider's settings. All providers
// speak the OpenAI-compatible embeddings API at their base URL.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"` // server default; callers may supply their own per request
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Embeddings bool   `yaml:"embeddings"` // capability flag
}

// CacheConfig holds the optional Redis embedding cache settings.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

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
	if c.Dataset.Path == "" {
		c.Dataset.Path = "data/recipes.json"
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 60
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 600
	}
	if c.Search.Weights == (WeightsConfig{}) {
		c.Search.Weights = WeightsConfig{Lexical: 1.0, Vector: 0.7, Fuzzy: 0.3}
	}
	if c.Search.FuzzyThreshold <= 0 {
		c.Search.FuzzyThreshold = 0.8
	}
	if c.Search.FuzzyDiscount <= 0 {
		c.Search.FuzzyDiscount = 0.6
	}
	if c.Search.BM25K1 <= 0 {
		c.Search.BM25K1 = 1.2
	}
	if c.Search.BM25B <= 0 {
		c.Search.BM25B = 0.75
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 500
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("search.fuzzy_threshold must be in (0, 1], got %v", c.Search.FuzzyThreshold)
	}
	if c.Embedding.DefaultProvider != "" {
		if _, ok := c.Embedding.Providers[c.Embedding.DefaultProvider]; !ok {
			return fmt.Errorf("embedding.default_provider %q is not configured", c.Embedding.DefaultProvider)
		}
	}
	if c.Embedding.FallbackProvider != "" {
		p, ok := c.Embedding.Providers[c.Embedding.FallbackProvider]
		if !ok {
			return fmt.Errorf("embedding.fallback_provider %q is not configured", c.Embedding.FallbackProvider)
		}
		if !p.Embeddings {
			return fmt.Errorf("embedding.fallback_provider %q does not support embeddings", c.Embedding.FallbackProvider)
		}
	}
	for name, p := range c.Embedding.Providers {
		if p.Embeddings && p.Model == "" {
			return fmt.Errorf("embedding.providers.%s.model is required for embedding providers", name)
		}
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
