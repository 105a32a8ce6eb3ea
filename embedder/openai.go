package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://integrate.api.nvidia.com/v1"
	DefaultModel   = "nvidia/nv-embedqa-e5-v5"
)

type OpenAIConfig struct {
	BaseURL  string
	ApiKey   string
	Model    string
	Truncate string
	Timeout  time.Duration
}

// OpenAIBackend talks to any OpenAI-compatible embeddings endpoint. The mode is
// forwarded as input_type, which asymmetric retrieval models require.
type OpenAIBackend struct {
	client   *openai.Client
	model    string
	truncate string
}

func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.ApiKey == "" {
		return nil, errors.New("embeddings api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	oc := openai.DefaultConfig(cfg.ApiKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIBackend{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		truncate: cfg.Truncate,
	}, nil
}

func (b *OpenAIBackend) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	extra := map[string]any{"input_type": string(mode)}
	if b.truncate != "" {
		extra["truncate"] = b.truncate
	}

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:          texts,
		Model:          openai.EmbeddingModel(b.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		ExtraBody:      extra,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d results for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Index < data[j].Index
	})

	res := make([][]float32, len(data))
	for i, d := range data {
		res[i] = d.Embedding
	}

	return res, nil
}
