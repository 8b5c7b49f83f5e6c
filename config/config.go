// Package config loads the service configuration from .env, an optional
// YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/medtour/chatbot-service/models"
)

const (
	EmbedderOpenAI = "openai"
	EmbedderOllama = "ollama"
	EmbedderGemini = "gemini"

	LLMOpenAI = "openai"
	LLMGemini = "gemini"

	StoreQdrant = "qdrant"
	StoreChroma = "chroma"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

type ServerConfig struct {
	Port            string `yaml:"port"`
	Mode            string `yaml:"mode"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_secs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DocumentsConfig locates the reference documents.
type DocumentsConfig struct {
	Dir                 string `yaml:"dir"`
	PDFExtractor        string `yaml:"pdf_extractor"`
	UnidocLicenseKeyEnv string `yaml:"unidoc_license_key_env"`
	Watch               bool   `yaml:"watch"`
	WatchDebounceMillis int    `yaml:"watch_debounce_ms"`
}

type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type IngestionConfig struct {
	EmbedBatchSize  int `yaml:"embed_batch_size"`
	UploadBatchSize int `yaml:"upload_batch_size"`
	CallTimeoutSecs int `yaml:"call_timeout_secs"`
}

// EmbedderConfig selects the embedding provider. APIKeyEnv names the
// variable holding the key so secrets stay out of the file.
type EmbedderConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
}

type LLMConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type QdrantConfig struct {
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type ChromaConfig struct {
	URL string `yaml:"url"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

type VectorStoreConfig struct {
	Type       string       `yaml:"type"`
	Collection string       `yaml:"collection"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	Chroma     ChromaConfig `yaml:"chroma"`
	Bolt       BoltConfig   `yaml:"bolt"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Documents   DocumentsConfig   `yaml:"documents"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

// Load reads .env if present, then the YAML file at CONFIG_PATH or path.
// Keys absent from the file keep their defaults, so an explicit zero such as
// chunk_overlap: 0 survives. Environment overrides win over both. A missing
// file yields the defaults.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, models.ConfigError("load config", "parse %s: %v", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyKeyEnvDefaults(cfg)
	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Port: "8009", Mode: "release", ShutdownTimeout: 10},
		Log:    LogConfig{Level: "info", Format: "text"},
		Documents: DocumentsConfig{
			Dir:                 "documents",
			PDFExtractor:        "ledongthuc",
			UnidocLicenseKeyEnv: "UNIDOC_LICENSE_API_KEY",
			WatchDebounceMillis: 2000,
		},
		Chunker:   ChunkerConfig{ChunkSize: 800, ChunkOverlap: 100},
		Ingestion: IngestionConfig{EmbedBatchSize: 50, UploadBatchSize: 100, CallTimeoutSecs: 10},
		Embedder:  EmbedderConfig{Type: EmbedderOpenAI},
		LLM:       LLMConfig{Type: LLMOpenAI, Temperature: 0.1, MaxTokens: 1000},
		VectorStore: VectorStoreConfig{
			Type:       StoreQdrant,
			Collection: "medical_documents",
			Qdrant:     QdrantConfig{URL: "http://localhost:6333", APIKeyEnv: "QDRANT_API_KEY"},
			Chroma:     ChromaConfig{URL: "http://localhost:8000"},
			Bolt:       BoltConfig{Path: "vectors.db"},
		},
		Retrieval: RetrievalConfig{TopK: 5},
	}
}

// applyKeyEnvDefaults names the key variable once the provider types are
// final, so LLM_TYPE=gemini reads GEMINI_API_KEY.
func applyKeyEnvDefaults(cfg *AppConfig) {
	switch cfg.Embedder.Type {
	case EmbedderOpenAI:
		setString(&cfg.Embedder.APIKeyEnv, "OPENAI_API_KEY")
	case EmbedderGemini:
		setString(&cfg.Embedder.APIKeyEnv, "GEMINI_API_KEY")
	}
	switch cfg.LLM.Type {
	case LLMOpenAI:
		setString(&cfg.LLM.APIKeyEnv, "OPENAI_API_KEY")
	case LLMGemini:
		setString(&cfg.LLM.APIKeyEnv, "GEMINI_API_KEY")
	}
}

func applyEnv(cfg *AppConfig) {
	overrideString(&cfg.Server.Port, "PORT")
	overrideString(&cfg.Server.Mode, "GIN_MODE")
	overrideString(&cfg.Log.Level, "LOG_LEVEL")
	overrideString(&cfg.Documents.Dir, "DOCUMENTS_DIR")
	overrideString(&cfg.Documents.PDFExtractor, "PDF_EXTRACTOR")
	overrideString(&cfg.Embedder.Type, "EMBEDDER_TYPE")
	overrideString(&cfg.LLM.Type, "LLM_TYPE")
	overrideString(&cfg.VectorStore.Type, "VECTOR_STORE")
	overrideString(&cfg.VectorStore.Collection, "COLLECTION_NAME")
	overrideString(&cfg.VectorStore.Qdrant.URL, "QDRANT_URL")
	overrideString(&cfg.VectorStore.Chroma.URL, "CHROMA_URL")
	overrideString(&cfg.VectorStore.Bolt.Path, "BOLT_PATH")
	if v, err := strconv.ParseBool(os.Getenv("WATCH_DOCUMENTS")); err == nil {
		cfg.Documents.Watch = v
	}
}

// Validate checks the settings needed to build the pipeline.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return models.ConfigError("validate", "chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return models.ConfigError("validate", "chunk_overlap must be in [0, %d), got %d", c.Chunker.ChunkSize, c.Chunker.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return models.ConfigError("validate", "top_k must be positive, got %d", c.Retrieval.TopK)
	}

	switch c.Embedder.Type {
	case EmbedderOpenAI, EmbedderGemini:
		if c.EmbedderAPIKey() == "" {
			return models.ConfigError("validate", "%s embedder needs %s", c.Embedder.Type, c.Embedder.APIKeyEnv)
		}
	case EmbedderOllama:
	default:
		return models.ConfigError("validate", "unknown embedder type %q", c.Embedder.Type)
	}

	switch c.LLM.Type {
	case LLMOpenAI, LLMGemini:
		if c.LLMAPIKey() == "" {
			return models.ConfigError("validate", "%s llm needs %s", c.LLM.Type, c.LLM.APIKeyEnv)
		}
	default:
		return models.ConfigError("validate", "unknown llm type %q", c.LLM.Type)
	}

	switch c.VectorStore.Type {
	case StoreQdrant:
		if c.VectorStore.Qdrant.URL == "" {
			return models.ConfigError("validate", "qdrant url is not set")
		}
	case StoreChroma:
		if c.VectorStore.Chroma.URL == "" {
			return models.ConfigError("validate", "chroma url is not set")
		}
	case StoreBolt:
		if c.VectorStore.Bolt.Path == "" {
			return models.ConfigError("validate", "bolt path is not set")
		}
	case StoreMemory:
	default:
		return models.ConfigError("validate", "unknown vector store type %q", c.VectorStore.Type)
	}
	return nil
}

func (c *AppConfig) EmbedderAPIKey() string   { return os.Getenv(c.Embedder.APIKeyEnv) }
func (c *AppConfig) LLMAPIKey() string        { return os.Getenv(c.LLM.APIKeyEnv) }
func (c *AppConfig) QdrantAPIKey() string     { return os.Getenv(c.VectorStore.Qdrant.APIKeyEnv) }
func (c *AppConfig) UnidocLicenseKey() string { return os.Getenv(c.Documents.UnidocLicenseKeyEnv) }

func (c *AppConfig) CallTimeout() time.Duration {
	return time.Duration(c.Ingestion.CallTimeoutSecs) * time.Second
}

func (c *AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

func (c *AppConfig) WatchDebounce() time.Duration {
	return time.Duration(c.Documents.WatchDebounceMillis) * time.Millisecond
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
