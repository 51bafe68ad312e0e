// Package config loads the layered configuration for the indexing and
// search core: built-in defaults, an optional project config file, and
// environment variable overrides, merged in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EmbedderKind selects which embedding backend the Manager prefers.
type EmbedderKind string

const (
	EmbedderAuto   EmbedderKind = "auto"
	EmbedderTFIDF  EmbedderKind = "tfidf"
	EmbedderNeural EmbedderKind = "neural"
)

// RegistryConfig describes the upstream package registry endpoints.
type RegistryConfig struct {
	APIBase     string `yaml:"api_base" json:"api_base"`
	ArchiveBase string `yaml:"archive_base" json:"archive_base"`
}

// FetchConfig tunes the rate-limited retrying HTTP client (spec §4.3).
type FetchConfig struct {
	MinIntervalMS int `yaml:"min_interval_ms" json:"min_interval_ms"`
	MaxRetries    int `yaml:"max_retries" json:"max_retries"`
}

// EmbeddingConfig tunes the embedder (spec §4.2).
type EmbeddingConfig struct {
	Backend    EmbedderKind `yaml:"backend" json:"backend"`
	Dimensions int          `yaml:"dimensions" json:"dimensions"`
	ModelDir   string       `yaml:"model_dir" json:"model_dir"`
}

// SearchConfig tunes the hybrid search merge (spec §4.8).
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit" json:"default_limit"`
	FTSWeight    float64 `yaml:"fts_weight" json:"fts_weight"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	UseVectors   bool    `yaml:"use_vectors" json:"use_vectors"`
}

// LoggingConfig mirrors internal/logging.Config for file-level configurability.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// Config is the root configuration for the core.
type Config struct {
	DataRoot  string          `yaml:"data_root" json:"data_root"`
	Registry  RegistryConfig  `yaml:"registry" json:"registry"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		DataRoot: DefaultDataRoot(),
		Registry: RegistryConfig{
			APIBase:     "https://code.dlang.org",
			ArchiveBase: "https://code.dlang.org",
		},
		Fetch: FetchConfig{
			MinIntervalMS: 100,
			MaxRetries:    3,
		},
		Embedding: EmbeddingConfig{
			Backend:    EmbedderAuto,
			Dimensions: 384,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			FTSWeight:    0.3,
			VectorWeight: 0.7,
			UseVectors:   true,
		},
		Logging: LoggingConfig{
			Level:         "info",
			WriteToStderr: true,
		},
	}
}

// DefaultDataRoot returns ~/.docsearch as the default data directory.
func DefaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docsearch")
	}
	return filepath.Join(home, ".docsearch")
}

// Load builds a Config by merging defaults, an optional project config file
// found under dir (".docsearch.yaml" or ".docsearch.yml"), and environment
// variable overrides, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := findProjectConfig(dir); path != "" {
		fileCfg, err := loadYAML(path)
		if err != nil {
			return nil, fmt.Errorf("load project config %s: %w", path, err)
		}
		cfg.mergeWith(fileCfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findProjectConfig(dir string) string {
	for _, name := range []string{".docsearch.yaml", ".docsearch.yml"} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeWith overlays non-zero fields from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other == nil {
		return
	}
	if other.DataRoot != "" {
		c.DataRoot = other.DataRoot
	}
	if other.Registry.APIBase != "" {
		c.Registry.APIBase = other.Registry.APIBase
	}
	if other.Registry.ArchiveBase != "" {
		c.Registry.ArchiveBase = other.Registry.ArchiveBase
	}
	if other.Fetch.MinIntervalMS != 0 {
		c.Fetch.MinIntervalMS = other.Fetch.MinIntervalMS
	}
	if other.Fetch.MaxRetries != 0 {
		c.Fetch.MaxRetries = other.Fetch.MaxRetries
	}
	if other.Embedding.Backend != "" {
		c.Embedding.Backend = other.Embedding.Backend
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.ModelDir != "" {
		c.Embedding.ModelDir = other.Embedding.ModelDir
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.FTSWeight != 0 {
		c.Search.FTSWeight = other.Search.FTSWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies DOCSEARCH_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSEARCH_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("DOCSEARCH_API_BASE"); v != "" {
		c.Registry.APIBase = v
	}
	if v := os.Getenv("DOCSEARCH_ARCHIVE_BASE"); v != "" {
		c.Registry.ArchiveBase = v
	}
	if v := os.Getenv("DOCSEARCH_EMBEDDER"); v != "" {
		c.Embedding.Backend = EmbedderKind(strings.ToLower(v))
	}
	if v := os.Getenv("DOCSEARCH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.MaxRetries = n
		}
	}
	if v := os.Getenv("DOCSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks enum fields and weight invariants.
func (c *Config) Validate() error {
	switch c.Embedding.Backend {
	case EmbedderAuto, EmbedderTFIDF, EmbedderNeural:
	default:
		return fmt.Errorf("invalid embedding backend: %s", c.Embedding.Backend)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Search.FTSWeight < 0 || c.Search.VectorWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.Fetch.MinIntervalMS < 0 {
		return fmt.Errorf("min_interval_ms must be non-negative")
	}
	return nil
}

// WriteYAML writes the config to path in YAML form.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
