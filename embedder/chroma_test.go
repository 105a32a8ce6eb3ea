package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmbeddingFunction struct {
	mock.Mock
}

func (m *MockEmbeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	args := m.Called(ctx, texts)
	res, _ := args.Get(0).([]embeddings.Embedding)
	return res, args.Error(1)
}

func (m *MockEmbeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	args := m.Called(ctx, text)
	res, _ := args.Get(0).(embeddings.Embedding)
	return res, args.Error(1)
}

func Test_ChromaBackend_Passages(t *testing.T) {
	ef := new(MockEmbeddingFunction)
	ef.On("EmbedDocuments", mock.Anything, []string{"a", "b"}).Return([]embeddings.Embedding{
		embeddings.NewEmbeddingFromFloat32([]float32{1, 2}),
		embeddings.NewEmbeddingFromFloat32([]float32{3, 4}),
	}, nil)

	res, err := NewChromaBackend(ef).EmbedBatch(context.Background(), []string{"a", "b"}, Passage)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, res)
	ef.AssertExpectations(t)
}

func Test_ChromaBackend_Query(t *testing.T) {
	ef := new(MockEmbeddingFunction)
	ef.On("EmbedQuery", mock.Anything, "what?").Return(embeddings.NewEmbeddingFromFloat32([]float32{5, 6}), nil)

	res, err := NewChromaBackend(ef).EmbedBatch(context.Background(), []string{"what?"}, Query)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 6}}, res)
	ef.AssertExpectations(t)
	ef.AssertNotCalled(t, "EmbedDocuments", mock.Anything, mock.Anything)
}

func Test_ChromaBackend_Error(t *testing.T) {
	ef := new(MockEmbeddingFunction)
	ef.On("EmbedDocuments", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	_, err := NewChromaBackend(ef).EmbedBatch(context.Background(), []string{"a"}, Passage)
	assert.ErrorContains(t, err, "quota exceeded")
}
