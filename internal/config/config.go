package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied for zero-valued fields after unmarshalling.
const (
	DefaultChunkSize        = 1000 // characters
	DefaultChunkOverlap     = 200  // characters
	DefaultTopK             = 5
	DefaultOversampleFactor = 3
	DefaultContextBudget    = 4000 // characters
	DefaultMaxAttempts      = 3
	DefaultBaseBackoff      = 500 * time.Millisecond
	DefaultEmbedWorkers     = 4
	DefaultEmbedBatchSize   = 16
	DefaultSimilarityMetric = "cosine"
	DefaultIndexBackend     = "sqlite"
	DefaultServerAddr       = ":8000"
	DefaultCollectionName   = "documents"
)

type Config struct {
	RAG      RAGConfig    `yaml:"rag"`
	EmbedLLM LLMConfig    `yaml:"embedding"`
	InferLLM LLMConfig    `yaml:"inference"`
	Index    IndexConfig  `yaml:"index"`
	Ingest   IngestConfig `yaml:"ingest"`
	Server   ServerConfig `yaml:"server"`
}

// RAGConfig holds the retrieval tuning knobs. Sizes and budgets are in
// characters.
type RAGConfig struct {
	ChunkSize            int     `yaml:"chunk_size"`
	ChunkOverlap         int     `yaml:"chunk_overlap"`
	TopK                 int     `yaml:"top_k"`
	OversampleFactor     int     `yaml:"oversample_factor"`
	MaxChunksPerDocument int     `yaml:"max_chunks_per_document"` // 0 = unlimited
	ContextBudget        int     `yaml:"context_budget"`
	SimilarityMetric     string  `yaml:"similarity_metric"`
	BoostField           string  `yaml:"boost_field"` // optional numeric metadata key
	BoostWeight          float64 `yaml:"boost_weight"`
}

// LLMConfig identifies a model endpoint, for both embedding and inference.
type LLMConfig struct {
	Provider     string `yaml:"provider"` // "ollama" or "openai"
	BaseURL      string `yaml:"base_url"`
	Key          string `yaml:"key"`
	Model        string `yaml:"model"`
	ModelVersion string `yaml:"model_version"`
	Dimensions   int    `yaml:"dimensions"`
}

// IndexConfig selects and locates the vector index backend.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // "sqlite", "chromem" or "postgres"
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	Debug      bool   `yaml:"debug"`
}

// IngestConfig bounds the ingestion pipeline's retries and parallelism.
type IngestConfig struct {
	MaxAttempts   int    `yaml:"max_attempts"`
	BaseBackoffMS int    `yaml:"base_backoff_ms"`
	Workers       int    `yaml:"workers"`
	BatchSize     int    `yaml:"batch_size"`
	LogPath       string `yaml:"log_path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = DefaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = DefaultChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = DefaultTopK
	}
	if c.RAG.OversampleFactor == 0 {
		c.RAG.OversampleFactor = DefaultOversampleFactor
	}
	if c.RAG.ContextBudget == 0 {
		c.RAG.ContextBudget = DefaultContextBudget
	}
	if c.RAG.SimilarityMetric == "" {
		c.RAG.SimilarityMetric = DefaultSimilarityMetric
	}
	if c.Index.Backend == "" {
		c.Index.Backend = DefaultIndexBackend
	}
	if c.Index.Collection == "" {
		c.Index.Collection = DefaultCollectionName
	}
	if c.Index.Path == "" {
		switch c.Index.Backend {
		case "chromem":
			c.Index.Path = "./data/chromem"
		case "sqlite":
			c.Index.Path = "./data/index.db"
		}
	}
	if c.Ingest.MaxAttempts == 0 {
		c.Ingest.MaxAttempts = DefaultMaxAttempts
	}
	if c.Ingest.BaseBackoffMS == 0 {
		c.Ingest.BaseBackoffMS = int(DefaultBaseBackoff / time.Millisecond)
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = DefaultEmbedWorkers
	}
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = DefaultEmbedBatchSize
	}
	if c.Ingest.LogPath == "" {
		c.Ingest.LogPath = "./data/ingest.log"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

// BaseBackoff returns the configured backoff as a duration.
func (c *IngestConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffMS) * time.Millisecond
}
