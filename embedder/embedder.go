package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	Passage Mode = "passage"
	Query   Mode = "query"

	DefaultBatchSize = 20
)

// Backend embeds one batch of texts in a single upstream call.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
}

// Failure is returned for any error while embedding. No partial results accompany it.
type Failure struct {
	Mode  Mode
	Batch int
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("embedding failed (%s, batch %d): %s", f.Mode, f.Batch, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Config struct {
	BatchSize   int
	Parallelism int
}

type Client struct {
	log         *slog.Logger
	backend     Backend
	batchSize   int
	parallelism int
}

func NewClient(backend Backend, cfg Config, log *slog.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return &Client{
		log:         log,
		backend:     backend,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
	}
}

// Embed returns one vector per text, in input order. Batches are issued
// sequentially unless the client was configured with a higher parallelism.
func (c *Client) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &Failure{Mode: mode, Err: errors.New("nothing to embed")}
	}

	res := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	batch := 0
	for group := range slices.Chunk(texts, c.batchSize) {
		n, offset := batch, batch*c.batchSize
		batch++

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &Failure{Mode: mode, Batch: n, Err: err}
			}

			vectors, err := c.backend.EmbedBatch(gctx, group, mode)
			if err != nil {
				return &Failure{Mode: mode, Batch: n, Err: err}
			}
			if len(vectors) != len(group) {
				return &Failure{Mode: mode, Batch: n, Err: fmt.Errorf("got %d vectors for %d texts", len(vectors), len(group))}
			}

			copy(res[offset:], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.log.Error("embedding failed", "mode", mode, "texts", len(texts), "error", err)
		return nil, err
	}

	if err := checkDimensions(res); err != nil {
		return nil, &Failure{Mode: mode, Err: err}
	}

	c.log.Debug("texts embedded", "mode", mode, "texts", len(texts), "batches", batch, "dim", len(res[0]))
	return res, nil
}

func checkDimensions(vectors [][]float32) error {
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("empty embedding vector")
	}

	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}

	return nil
}
