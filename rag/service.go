package rag

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gamma-omg/pdf-rag/embedder"
	"github.com/gamma-omg/pdf-rag/generator"
	"github.com/gamma-omg/pdf-rag/readers"
)

const DefaultResults = 5

type Extractor interface {
	Extract(ctx context.Context, data []byte) (readers.Document, error)
}

type Chunkifier interface {
	Chunkify(text string) []string
}

type Embedder interface {
	Embed(ctx context.Context, texts []string, mode embedder.Mode) ([][]float32, error)
}

type IndexBuilder interface {
	Build(ctx context.Context, vectors [][]float32) (Index, error)
}

type IndexBuilderFunc func(ctx context.Context, vectors [][]float32) (Index, error)

func (f IndexBuilderFunc) Build(ctx context.Context, vectors [][]float32) (Index, error) {
	return f(ctx, vectors)
}

type Generator interface {
	Generate(ctx context.Context, messages []generator.Message) (string, error)
}

type Deps struct {
	Extractor  Extractor
	Chunkifier Chunkifier
	Embedder   Embedder
	Indexer    IndexBuilder
	Generator  Generator
}

type Config struct {
	Results      int
	SystemPrompt string
}

type UploadResult struct {
	Filename   string
	PageCount  int
	ChunkCount int
}

type AskResult struct {
	Answer     string
	ChunksUsed int
	Document   string
}

type Status struct {
	Loaded     bool
	ChunkCount int
	Document   string
}

type Service struct {
	log          *slog.Logger
	deps         Deps
	results      int
	systemPrompt string
	sessions     SessionStore
	uploadMu     sync.Mutex
	now          func() time.Time
}

func NewService(deps Deps, cfg Config, log *slog.Logger) *Service {
	if cfg.Results <= 0 {
		cfg.Results = DefaultResults
	}

	return &Service{
		log:          log,
		deps:         deps,
		results:      cfg.Results,
		systemPrompt: cfg.SystemPrompt,
		now:          time.Now,
	}
}

func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// Upload indexes a PDF and makes it the active document. The previous document
// stays active until every step has succeeded.
func (s *Service) Upload(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	if !IsPDF(filename) {
		return UploadResult{}, ErrInvalidFileType
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	start := s.now()
	log := s.log.With("file", filename)

	doc, err := s.deps.Extractor.Extract(ctx, data)
	if err != nil {
		log.Error("failed to extract text", "error", err)
		return UploadResult{}, wrap(ErrUnreadableDocument, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return UploadResult{}, ErrEmptyDocument
	}

	chunks := s.deps.Chunkifier.Chunkify(doc.Text)
	if len(chunks) == 0 {
		return UploadResult{}, ErrChunkingFailed
	}

	vectors, err := s.deps.Embedder.Embed(ctx, chunks, embedder.Passage)
	if err != nil {
		return UploadResult{}, wrap(ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(chunks) {
		return UploadResult{}, wrap(ErrEmbeddingFailure, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	index, err := s.deps.Indexer.Build(ctx, vectors)
	if err != nil {
		return UploadResult{}, wrap(ErrIndexFailed, err)
	}

	session, err := newSession(filename, doc.Pages, chunks, index, s.now())
	if err != nil {
		s.closeIndex(index)
		return UploadResult{}, err
	}

	if prev := s.sessions.Replace(session); prev != nil {
		s.release(prev)
	}

	log.Info("document loaded",
		"session", session.ID.String(),
		"pages", doc.Pages,
		"chunks", len(chunks),
		"elapsed", s.now().Sub(start))

	return UploadResult{
		Filename:   filename,
		PageCount:  doc.Pages,
		ChunkCount: len(chunks),
	}, nil
}

// Ask answers a question from the active document. It works on the session
// that was active when it was called, even if an upload replaces it meanwhile.
func (s *Service) Ask(ctx context.Context, question string) (AskResult, error) {
	session := s.sessions.Acquire()
	if session == nil {
		return AskResult{}, ErrNoDocumentLoaded
	}
	defer s.release(session)

	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, ErrEmptyQuestion
	}

	passages, err := s.retrieve(ctx, session, question)
	if err != nil {
		return AskResult{}, err
	}

	answer, err := s.deps.Generator.Generate(ctx, BuildPrompt(passages, question, s.systemPrompt))
	if err != nil {
		s.log.Error("failed to generate answer", "file", session.Filename, "error", err)
		return AskResult{}, wrap(ErrGenerationFailure, err)
	}

	s.log.Info("question answered", "file", session.Filename, "session", session.ID.String(), "chunks_used", len(passages))

	return AskResult{
		Answer:     strings.TrimSpace(answer),
		ChunksUsed: len(passages),
		Document:   session.Filename,
	}, nil
}

func (s *Service) retrieve(ctx context.Context, session *Session, question string) ([]string, error) {
	vectors, err := s.deps.Embedder.Embed(ctx, []string{question}, embedder.Query)
	if err != nil {
		return nil, wrap(ErrEmbeddingFailure, err)
	}
	if len(vectors) != 1 {
		return nil, wrap(ErrEmbeddingFailure, fmt.Errorf("got %d vectors for one question", len(vectors)))
	}

	k := min(s.results, len(session.Chunks))
	hits, err := session.Index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, wrap(ErrRetrievalFailure, err)
	}

	passages := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(session.Chunks) {
			return nil, wrap(ErrRetrievalFailure, fmt.Errorf("hit position %d out of range", h.Position))
		}
		passages = append(passages, session.Chunks[h.Position])
	}

	return passages, nil
}

func (s *Service) Clear() {
	if prev := s.sessions.Clear(); prev != nil {
		s.release(prev)
		s.log.Info("document cleared", "file", prev.Filename, "session", prev.ID.String())
	}
}

func (s *Service) Status() Status {
	session := s.sessions.Get()
	if session == nil {
		return Status{}
	}

	return Status{
		Loaded:     true,
		ChunkCount: len(session.Chunks),
		Document:   session.Filename,
	}
}

func (s *Service) release(session *Session) {
	if session.release() {
		s.closeIndex(session.Index)
	}
}

func (s *Service) closeIndex(index Index) {
	if err := index.Close(); err != nil {
		s.log.Warn("failed to release index", "error", err)
	}
}
