package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_readConfig(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "nvapi-123")
	t.Setenv("TOGETHER_API_KEY", "tgp-456")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log: rag.log
server_addr: 0.0.0.0:9000
chunk_size: 100
chunk_overlap: 10
overlap_sentences: 0
index: chroma
embeddings:
  api_key: ${TEST_EMBED_KEY}
  truncate: END
generation:
  temperature: 0.5
  system_prompt: "Costs are in $USD."
`), 0o644))

	cfg, err := readConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "rag.log", cfg.LogFile)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddr)
	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 10, cfg.ChunkOverlap)
	assert.Equal(t, 0, cfg.OverlapSentences)
	assert.Equal(t, IndexChroma, cfg.Index)
	assert.Equal(t, "nvapi-123", cfg.Embeddings.ApiKey)
	assert.Equal(t, "END", cfg.Embeddings.Truncate)
	assert.Equal(t, ProviderNvidia, cfg.Embeddings.Provider)
	assert.Equal(t, "tgp-456", cfg.Generation.ApiKey)
	assert.Equal(t, float32(0.5), cfg.Generation.Temperature)
	assert.Equal(t, "Costs are in $USD.", cfg.Generation.SystemPrompt)

	// untouched fields keep their defaults
	assert.Equal(t, 50, cfg.MaxUploadMB)
	assert.Equal(t, 5, cfg.Results)
	assert.Equal(t, 20, cfg.RequestSize)
	assert.Equal(t, 500, cfg.Generation.MaxTokens)
}

func Test_readConfig_Errors(t *testing.T) {
	_, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "unable to open config file")

	_, err = parseConfig([]byte("chunk_sise: 10\n"))
	assert.ErrorContains(t, err, "unable to parse config file")
}

func Test_parseConfig_Empty(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig().ChunkSize, cfg.ChunkSize)
	assert.NoError(t, cfg.ValidateChunking())
}

func Test_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Embeddings.ApiKey = "e"
		cfg.Generation.ApiKey = "g"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"overlap too large":   {func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "chunk_overlap"},
		"zero chunk size":     {func(c *Config) { c.ChunkSize = 0 }, "chunk_size must be positive"},
		"negative sentences":  {func(c *Config) { c.OverlapSentences = -1 }, "overlap_sentences"},
		"unknown index":       {func(c *Config) { c.Index = "faiss" }, `unknown index "faiss"`},
		"missing embed key":   {func(c *Config) { c.Embeddings.ApiKey = "" }, "embeddings.api_key"},
		"missing gen key":     {func(c *Config) { c.Generation.ApiKey = "" }, "generation.api_key"},
		"gemini without key":  {func(c *Config) { c.Embeddings.Provider = ProviderGemini }, "gemini.api_key"},
		"unknown provider":    {func(c *Config) { c.Embeddings.Provider = "cohere" }, "unknown embeddings provider"},
		"zero results":        {func(c *Config) { c.Results = 0 }, "results must be positive"},
		"zero upload limit":   {func(c *Config) { c.MaxUploadMB = 0 }, "max_upload_mb"},
		"chroma without addr": {func(c *Config) { c.Index = IndexChroma; c.ChromaAddr = "" }, "chroma_addr"},
		"chroma on api addr": {func(c *Config) {
			c.Index = IndexChroma
			c.ChromaAddr = "http://" + c.ServerAddr
		}, "is the API's own server_addr"},
		"zero temperature":     {func(c *Config) { c.Generation.Temperature = 0 }, "generation.temperature must be positive"},
		"negative temperature": {func(c *Config) { c.Generation.Temperature = -0.5 }, "generation.temperature"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func Test_defaultConfig_ChromaIndex(t *testing.T) {
	cfg := defaultConfig()
	cfg.Embeddings.ApiKey = "e"
	cfg.Generation.ApiKey = "g"
	cfg.Index = IndexChroma

	assert.NoError(t, cfg.Validate())
	assert.NotContains(t, cfg.ChromaAddr, cfg.ServerAddr)
}

func Test_expandEnv(t *testing.T) {
	t.Setenv("RAG_TEST_VALUE", "x")

	assert.Equal(t, "a: x\nb: $RAG_TEST_VALUE\nc: \n", string(expandEnv([]byte("a: ${RAG_TEST_VALUE}\nb: $RAG_TEST_VALUE\nc: ${RAG_TEST_UNSET}\n"))))
}
