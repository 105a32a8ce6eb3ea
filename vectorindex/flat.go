package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyIndex        = errors.New("index is empty")
	ErrInvalidK          = errors.New("k must be positive")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Hit is a search result. Position is the index of the vector in the slice the
// index was built from.
type Hit struct {
	Position int
	Distance float32
}

// Flat is an exact nearest neighbour index over squared euclidean distance.
// It is immutable once built.
type Flat struct {
	dim     int
	vectors [][]float32
}

func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}

	stored := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d components, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		stored[i] = append([]float32(nil), v...)
	}

	return &Flat{dim: dim, vectors: stored}, nil
}

func (f *Flat) Len() int {
	return len(f.vectors)
}

func (f *Flat) Dim() int {
	return f.dim
}

// Search returns the min(k, Len()) closest vectors, nearest first. Equal
// distances are ordered by position.
func (f *Flat) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if f == nil || len(f.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d components, expected %d", ErrDimensionMismatch, len(query), f.dim)
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	return hits[:min(k, len(hits))], nil
}

// Close is a no-op, the index lives only in memory.
func (f *Flat) Close() error {
	return nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
