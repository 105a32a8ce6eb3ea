package docstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/gamma-omg/pdf-rag/vectorindex"
	"github.com/oklog/ulid"
)

const (
	DefaultRequestSize = 20
	collectionPrefix   = "pdf-rag-"
	closeTimeout       = 10 * time.Second
)

// collection is the part of a chroma collection the index needs. Ids are chunk
// positions rendered as decimal strings.
type collection interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Query(ctx context.Context, query []float32, k int) ([]string, []float32, error)
	Delete(ctx context.Context) error
}

type collectionFactory func(ctx context.Context, name string) (collection, error)

type ChromaConfig struct {
	BaseURL string
	// EmbeddingFunc is attached to every collection. Vectors are always supplied by
	// the caller, so it is only consulted by chroma tooling that reads the collection.
	EmbeddingFunc embeddings.EmbeddingFunction
	RequestSize   int
}

// ChromaIndexer builds one chroma collection per document.
type ChromaIndexer struct {
	log         *slog.Logger
	create      collectionFactory
	requestSize int
}

func NewChromaIndexer(cfg ChromaConfig, log *slog.Logger) (*ChromaIndexer, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	create := func(ctx context.Context, name string) (collection, error) {
		var opts []chroma.CreateCollectionOption
		if cfg.EmbeddingFunc != nil {
			opts = append(opts, chroma.WithEmbeddingFunctionCreate(cfg.EmbeddingFunc))
		}

		col, err := client.CreateCollection(ctx, name, opts...)
		if err != nil {
			return nil, err
		}

		return &chromaCollection{client: client, col: col}, nil
	}

	return newChromaIndexer(create, cfg.RequestSize, log), nil
}

func newChromaIndexer(create collectionFactory, requestSize int, log *slog.Logger) *ChromaIndexer {
	if requestSize <= 0 {
		requestSize = DefaultRequestSize
	}

	return &ChromaIndexer{
		log:         log,
		create:      create,
		requestSize: requestSize,
	}
}

func (ix *ChromaIndexer) Build(ctx context.Context, vectors [][]float32) (*ChromaIndex, error) {
	if len(vectors) == 0 {
		return nil, vectorindex.ErrEmptyIndex
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: vector %d has %d components, expected %d", vectorindex.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	name := collectionPrefix + strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
	col, err := ix.create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	offset := 0
	for batch := range slices.Chunk(vectors, ix.requestSize) {
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = strconv.Itoa(offset + i)
		}

		if err := col.Add(ctx, ids, batch); err != nil {
			if e := col.Delete(context.WithoutCancel(ctx)); e != nil {
				ix.log.Warn("failed to delete partial collection", "collection", name, "error", e)
			}
			return nil, fmt.Errorf("failed to add vectors to %s: %w", name, err)
		}

		offset += len(batch)
	}

	ix.log.Info("collection created", "collection", name, "vectors", len(vectors))

	return &ChromaIndex{
		name: name,
		col:  col,
		dim:  dim,
		size: len(vectors),
	}, nil
}

// ChromaIndex searches the collection holding one document's vectors.
type ChromaIndex struct {
	name string
	col  collection
	dim  int
	size int
}

func (ci *ChromaIndex) Len() int {
	return ci.size
}

func (ci *ChromaIndex) Search(ctx context.Context, query []float32, k int) ([]vectorindex.Hit, error) {
	if k <= 0 {
		return nil, vectorindex.ErrInvalidK
	}
	if len(query) != ci.dim {
		return nil, fmt.Errorf("%w: query has %d components, index has %d", vectorindex.ErrDimensionMismatch, len(query), ci.dim)
	}

	ids, distances, err := ci.col.Query(ctx, query, min(k, ci.size))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", ci.name, err)
	}
	if len(ids) != len(distances) {
		return nil, fmt.Errorf("query %s returned %d ids and %d distances", ci.name, len(ids), len(distances))
	}

	hits := make([]vectorindex.Hit, 0, len(ids))
	for i, id := range ids {
		pos, err := strconv.Atoi(id)
		if err != nil || pos < 0 || pos >= ci.size {
			return nil, fmt.Errorf("unexpected id %q in %s", id, ci.name)
		}
		hits = append(hits, vectorindex.Hit{Position: pos, Distance: distances[i]})
	}

	return hits, nil
}

// Close deletes the collection.
func (ci *ChromaIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := ci.col.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", ci.name, err)
	}

	return nil
}

type chromaCollection struct {
	client chroma.Client
	col    chroma.Collection
}

func (c *chromaCollection) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	docIDs := make([]chroma.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chroma.DocumentID(id)
	}

	embs := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		embs[i] = embeddings.NewEmbeddingFromFloat32(v)
	}

	return c.col.Add(ctx, chroma.WithIDs(docIDs...), chroma.WithEmbeddings(embs...))
}

func (c *chromaCollection) Query(ctx context.Context, query []float32, k int) ([]string, []float32, error) {
	r, err := c.col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chroma.WithNResults(k),
	)
	if err != nil {
		return nil, nil, err
	}

	idGroups := r.GetIDGroups()
	distGroups := r.GetDistancesGroups()
	if len(idGroups) == 0 || len(distGroups) == 0 {
		return nil, nil, errors.New("empty query result")
	}

	ids := make([]string, len(idGroups[0]))
	for i, id := range idGroups[0] {
		ids[i] = string(id)
	}

	distances := make([]float32, len(distGroups[0]))
	for i, d := range distGroups[0] {
		distances[i] = float32(d)
	}

	return ids, distances, nil
}

func (c *chromaCollection) Delete(ctx context.Context) error {
	return c.client.DeleteCollection(ctx, c.col.Name())
}
