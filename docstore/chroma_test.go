package docstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/gamma-omg/pdf-rag/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return m.Called(ctx, ids, vectors).Error(0)
}

func (m *MockCollection) Query(ctx context.Context, query []float32, k int) ([]string, []float32, error) {
	args := m.Called(ctx, query, k)
	ids, _ := args.Get(0).([]string)
	dists, _ := args.Get(1).([]float32)
	return ids, dists, args.Error(2)
}

func (m *MockCollection) Delete(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func testIndexer(col collection, requestSize int, names *[]string) *ChromaIndexer {
	create := func(ctx context.Context, name string) (collection, error) {
		if names != nil {
			*names = append(*names, name)
		}
		return col, nil
	}

	return newChromaIndexer(create, requestSize, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func Test_Build_SplitsToBatches(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, []string{"0", "1"}, [][]float32{{0}, {1}}).Return(nil).Once()
	col.On("Add", mock.Anything, []string{"2", "3"}, [][]float32{{2}, {3}}).Return(nil).Once()
	col.On("Add", mock.Anything, []string{"4"}, [][]float32{{4}}).Return(nil).Once()

	var names []string
	idx, err := testIndexer(col, 2, &names).Build(context.Background(), [][]float32{{0}, {1}, {2}, {3}, {4}})
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Len())

	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], collectionPrefix))
	assert.Equal(t, strings.ToLower(names[0]), names[0])
	col.AssertExpectations(t)
}

func Test_Build_DeletesCollectionOnFailure(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))
	col.On("Delete", mock.Anything).Return(nil)

	_, err := testIndexer(col, 10, nil).Build(context.Background(), [][]float32{{1, 2}})
	assert.ErrorContains(t, err, "quota exceeded")
	col.AssertExpectations(t)
}

func Test_Build_Validates(t *testing.T) {
	col := new(MockCollection)
	ix := testIndexer(col, 10, nil)

	_, err := ix.Build(context.Background(), nil)
	assert.ErrorIs(t, err, vectorindex.ErrEmptyIndex)

	_, err = ix.Build(context.Background(), [][]float32{{1, 2}, {3}})
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	col.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Search(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	col.On("Query", mock.Anything, []float32{1, 1}, 2).Return([]string{"2", "0"}, []float32{0.5, 1.25}, nil)

	idx, err := testIndexer(col, 10, nil).Build(context.Background(), [][]float32{{0, 0}, {5, 5}, {1, 2}})
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []vectorindex.Hit{{Position: 2, Distance: 0.5}, {Position: 0, Distance: 1.25}}, hits)
	col.AssertExpectations(t)
}

func Test_Search_ClampsK(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	col.On("Query", mock.Anything, mock.Anything, 1).Return([]string{"0"}, []float32{0}, nil)

	idx, err := testIndexer(col, 10, nil).Build(context.Background(), [][]float32{{1}})
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func Test_Search_Errors(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	col.On("Query", mock.Anything, []float32{1, 1}, 1).Return([]string{"7"}, []float32{0}, nil).Once()
	col.On("Query", mock.Anything, []float32{2, 2}, 1).Return(nil, nil, errors.New("unavailable")).Once()

	idx, err := testIndexer(col, 10, nil).Build(context.Background(), [][]float32{{0, 0}, {1, 1}})
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float32{1, 1}, 0)
	assert.ErrorIs(t, err, vectorindex.ErrInvalidK)

	_, err = idx.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	_, err = idx.Search(context.Background(), []float32{1, 1}, 1)
	assert.ErrorContains(t, err, `unexpected id "7"`)

	_, err = idx.Search(context.Background(), []float32{2, 2}, 1)
	assert.ErrorContains(t, err, "unavailable")
}

func Test_Close_DeletesCollection(t *testing.T) {
	col := new(MockCollection)
	col.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	col.On("Delete", mock.Anything).Return(nil).Once()

	idx, err := testIndexer(col, 10, nil).Build(context.Background(), [][]float32{{1}})
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	col.AssertExpectations(t)
}

func Test_ChromaIndex_Integration(t *testing.T) {
	addr := os.Getenv("CHROMA_ADDR")
	if addr == "" {
		t.Skip("CHROMA_ADDR is not set")
	}

	ix, err := NewChromaIndexer(ChromaConfig{BaseURL: addr, RequestSize: 2}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	idx, err := ix.Build(context.Background(), [][]float32{{0, 0}, {10, 10}, {1, 1}})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, idx.Close())
	}()

	hits, err := idx.Search(context.Background(), []float32{0.9, 0.9}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Position)
	assert.Equal(t, 0, hits[1].Position)
}
