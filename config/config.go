package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for findit.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Caption   CaptionConfig   `yaml:"caption"`
	Speech    SpeechConfig    `yaml:"speech"`
	HTTP      HTTPConfig      `yaml:"http"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds index build configuration.
type IndexConfig struct {
	Includes       []string `yaml:"includes"`
	Excludes       []string `yaml:"excludes"`
	BatchSize      int      `yaml:"batch_size"`
	SkipUnreadable bool     `yaml:"skip_unreadable"`
	MaxImageSide   int      `yaml:"max_image_side"` // images are downscaled before inference
}

// RetrieveConfig holds per-query configuration.
type RetrieveConfig struct {
	TopK        int  `yaml:"top_k"`
	Narrate     bool `yaml:"narrate"`
	CacheSize   int  `yaml:"cache_size"` // text embedding cache entries (0 = disabled)
	CacheTTLSec int  `yaml:"cache_ttl_sec"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "bolt", "memory", "qdrant"
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"` // bolt file, relative to the root dir
	QdrantAddr string `yaml:"qdrant_addr"`
}

// EmbeddingConfig holds joint text/image embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "jina", "mock"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	Dimension int    `yaml:"dimension"`
}

// CaptionConfig holds image captioning configuration.
type CaptionConfig struct {
	Provider string `yaml:"provider"` // "ollama", "mock"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Prompt   string `yaml:"prompt"`
}

// SpeechConfig holds speech-to-text and text-to-speech configuration.
type SpeechConfig struct {
	Provider    string `yaml:"provider"` // "openai", "mock"
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	STTModel    string `yaml:"stt_model"`
	Language    string `yaml:"language"`
	TTSModel    string `yaml:"tts_model"`
	VoicePreset string `yaml:"voice_preset"`
}

// HTTPConfig tunes the client shared by every model server adapter.
type HTTPConfig struct {
	TimeoutSec   int     `yaml:"timeout_sec"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateBurst    int     `yaml:"rate_burst"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	CORSOrigin    string `yaml:"cors_origin"`
	EnableTracing bool   `yaml:"enable_tracing"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:     []string{"**/*.jpg", "**/*.jpeg", "**/*.png", "**/*.gif", "**/*.bmp", "**/*.webp"},
			Excludes:     []string{"**/.git/**", "**/.findit/**", "**/node_modules/**"},
			BatchSize:    32,
			MaxImageSide: 512,
		},
		Retrieve: RetrieveConfig{
			TopK:        3,
			CacheSize:   256,
			CacheTTLSec: 600,
		},
		Store: StoreConfig{
			Backend:    "bolt",
			Collection: "images",
			Path:       filepath.Join(".findit", "index.db"),
			QdrantAddr: "localhost:6334",
		},
		Embedding: EmbeddingConfig{
			Provider:  "jina",
			Model:     "jina-clip-v2",
			BaseURL:   "https://api.jina.ai/v1",
			APIKeyEnv: "JINA_API_KEY",
			Dimension: 1024,
		},
		Caption: CaptionConfig{
			Provider: "ollama",
			Model:    "llava",
			BaseURL:  "http://localhost:11434",
			Prompt:   "Describe this image in one short sentence.",
		},
		Speech: SpeechConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:8080/v1",
			APIKeyEnv:   "SPEECH_API_KEY",
			STTModel:    "whisper-1",
			TTSModel:    "bark",
			VoicePreset: "v2/en_speaker_6",
		},
		HTTP: HTTPConfig{
			TimeoutSec:   120,
			RateLimitRPS: 0,
			RateBurst:    4,
		},
		Server: ServerConfig{
			Addr:        ":8090",
			MaxUploadMB: 25,
			CORSOrigin:  "*",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for findit.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "findit.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".findit", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "bolt", "memory", "qdrant":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("store.collection must not be empty")
	}
	switch c.Embedding.Provider {
	case "jina", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Caption.Provider {
	case "ollama", "mock":
	default:
		return fmt.Errorf("unsupported caption provider: %s", c.Caption.Provider)
	}
	switch c.Speech.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("unsupported speech provider: %s", c.Speech.Provider)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	return nil
}

// Timeout returns the per-request timeout for model servers.
func (c HTTPConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// CacheTTL returns the lifetime of cached text embeddings.
func (c RetrieveConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// IndexDBPath returns the path to the bolt index database.
func IndexDBPath(dir string, cfg *Config) string {
	if filepath.IsAbs(cfg.Store.Path) {
		return cfg.Store.Path
	}
	return filepath.Join(dir, cfg.Store.Path)
}

// EnsureDataDir ensures the directory holding the index database exists.
func EnsureDataDir(dir string, cfg *Config) error {
	return os.MkdirAll(filepath.Dir(IndexDBPath(dir, cfg)), 0755)
}
