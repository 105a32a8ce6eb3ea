package embedder

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

type embeddingFunction interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error)
	EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error)
}

// ChromaBackend adapts a chroma-go embedding function (OpenAI, Gemini).
// Passages go through EmbedDocuments, queries through EmbedQuery.
type ChromaBackend struct {
	ef embeddingFunction
}

func NewChromaBackend(ef embeddingFunction) *ChromaBackend {
	return &ChromaBackend{ef: ef}
}

func (b *ChromaBackend) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if mode == Query {
		res := make([][]float32, 0, len(texts))
		for _, t := range texts {
			e, err := b.ef.EmbedQuery(ctx, t)
			if err != nil {
				return nil, fmt.Errorf("embed query: %w", err)
			}
			res = append(res, e.ContentAsFloat32())
		}

		return res, nil
	}

	embs, err := b.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}

	res := make([][]float32, len(embs))
	for i, e := range embs {
		res[i] = e.ContentAsFloat32()
	}

	return res, nil
}
