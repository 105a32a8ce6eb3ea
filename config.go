package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/gamma-omg/pdf-rag/chunkifier"
	"github.com/gamma-omg/pdf-rag/embedder"
	"github.com/gamma-omg/pdf-rag/generator"
	"github.com/gamma-omg/pdf-rag/rag"
	"gopkg.in/yaml.v3"
)

const (
	IndexMemory = "memory"
	IndexChroma = "chroma"

	ProviderNvidia = "nvidia"
	ProviderOpenAI = "open_ai"
	ProviderGemini = "gemini"
)

type ProviderConfig struct {
	Model  string `yaml:"model"`
	ApiKey string `yaml:"api_key"`
}

type EmbeddingsConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	ApiKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Truncate   string `yaml:"truncate"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type GenerationConfig struct {
	BaseURL      string  `yaml:"base_url"`
	ApiKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
	TimeoutSec   int     `yaml:"timeout_sec"`
}

type Config struct {
	LogFile          string           `yaml:"log"`
	ServerAddr       string           `yaml:"server_addr"`
	MCPAddr          string           `yaml:"mcp_addr"`
	Inbox            string           `yaml:"inbox"`
	MergeEventsMs    int              `yaml:"write_debounce_ms"`
	MaxUploadMB      int              `yaml:"max_upload_mb"`
	ChunkSize        int              `yaml:"chunk_size"`
	ChunkOverlap     int              `yaml:"chunk_overlap"`
	OverlapSentences int              `yaml:"overlap_sentences"`
	RequestSize      int              `yaml:"request_size"`
	ParallelRequests int              `yaml:"parallel_requests"`
	Results          int              `yaml:"results"`
	Index            string           `yaml:"index"`
	ChromaAddr       string           `yaml:"chroma_addr"`
	Embeddings       EmbeddingsConfig `yaml:"embeddings"`
	Generation       GenerationConfig `yaml:"generation"`
	OpenAI           *ProviderConfig  `yaml:"open_ai"`
	Gemini           *ProviderConfig  `yaml:"gemini"`
}

func defaultConfig() *Config {
	return &Config{
		ServerAddr:       "localhost:8080",
		MergeEventsMs:    500,
		MaxUploadMB:      50,
		ChunkSize:        800,
		ChunkOverlap:     150,
		OverlapSentences: chunkifier.DefaultOverlapSentences,
		RequestSize:      embedder.DefaultBatchSize,
		ParallelRequests: 1,
		Results:          rag.DefaultResults,
		Index:            IndexMemory,
		ChromaAddr:       "http://localhost:8000",
		Embeddings: EmbeddingsConfig{
			Provider:   ProviderNvidia,
			BaseURL:    embedder.DefaultBaseURL,
			Model:      embedder.DefaultModel,
			TimeoutSec: 60,
		},
		Generation: GenerationConfig{
			BaseURL:     generator.DefaultBaseURL,
			Model:       generator.DefaultModel,
			Temperature: generator.DefaultTemperature,
			MaxTokens:   generator.DefaultMaxTokens,
			TimeoutSec:  120,
		},
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Bare $ signs are left alone.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func readConfig(cfgPath string) (*Config, error) {
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}

	return parseConfig(raw)
}

func parseConfig(raw []byte) (*Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	if cfg.Embeddings.ApiKey == "" {
		cfg.Embeddings.ApiKey = os.Getenv("NVIDIA_API_KEY")
	}
	if cfg.Generation.ApiKey == "" {
		cfg.Generation.ApiKey = os.Getenv("TOGETHER_API_KEY")
	}

	return cfg, nil
}

// ValidateChunking checks only what the offline chunker needs.
func (c *Config) ValidateChunking() error {
	return errors.Join(c.chunkingErrors()...)
}

func (c *Config) chunkingErrors() []error {
	var errs []error

	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk_size must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, errors.New("chunk_overlap must be in [0, chunk_size)"))
	}
	if c.OverlapSentences < 0 {
		errs = append(errs, errors.New("overlap_sentences must not be negative"))
	}

	return errs
}

func (c *Config) Validate() error {
	errs := c.chunkingErrors()

	if c.RequestSize <= 0 {
		errs = append(errs, errors.New("request_size must be positive"))
	}
	if c.ParallelRequests <= 0 {
		errs = append(errs, errors.New("parallel_requests must be positive"))
	}
	if c.Results <= 0 {
		errs = append(errs, errors.New("results must be positive"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be positive"))
	}
	if c.MergeEventsMs < 0 {
		errs = append(errs, errors.New("write_debounce_ms must not be negative"))
	}

	switch c.Index {
	case IndexMemory:
	case IndexChroma:
		if c.ChromaAddr == "" {
			errs = append(errs, errors.New("chroma_addr is required for the chroma index"))
		} else if u, err := url.Parse(c.ChromaAddr); err == nil && u.Host == c.ServerAddr {
			errs = append(errs, fmt.Errorf("chroma_addr %s is the API's own server_addr", c.ChromaAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index %q", c.Index))
	}

	switch c.Embeddings.Provider {
	case ProviderNvidia:
		if c.Embeddings.ApiKey == "" {
			errs = append(errs, errors.New("embeddings.api_key is not set"))
		}
	case ProviderOpenAI:
		if c.OpenAI == nil || c.OpenAI.ApiKey == "" {
			errs = append(errs, errors.New("open_ai.api_key is not set"))
		}
	case ProviderGemini:
		if c.Gemini == nil || c.Gemini.ApiKey == "" {
			errs = append(errs, errors.New("gemini.api_key is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}

	if c.Generation.ApiKey == "" {
		errs = append(errs, errors.New("generation.api_key is not set"))
	}
	// the completion request drops a zero temperature, the provider default applies instead
	if c.Generation.Temperature <= 0 {
		errs = append(errs, errors.New("generation.temperature must be positive"))
	}
	if c.Generation.MaxTokens <= 0 {
		errs = append(errs, errors.New("generation.max_tokens must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) MergeEventsDelay() time.Duration {
	return time.Duration(c.MergeEventsMs) * time.Millisecond
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
