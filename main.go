package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/fatih/color"
	"github.com/gamma-omg/pdf-rag/chunkifier"
	"github.com/gamma-omg/pdf-rag/docstore"
	"github.com/gamma-omg/pdf-rag/embedder"
	"github.com/gamma-omg/pdf-rag/generator"
	"github.com/gamma-omg/pdf-rag/rag"
	"github.com/gamma-omg/pdf-rag/readers"
	"github.com/gamma-omg/pdf-rag/vectorindex"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func createEmbeddingFunction(cfg *Config) (embeddings.EmbeddingFunction, error) {
	if cfg.Embeddings.Provider == ProviderOpenAI && cfg.OpenAI != nil {
		ef, err := openai.NewOpenAIEmbeddingFunction(
			cfg.OpenAI.ApiKey,
			openai.WithModel(openai.EmbeddingModel(cfg.OpenAI.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
		}

		return ef, nil
	}

	if cfg.Embeddings.Provider == ProviderGemini && cfg.Gemini != nil {
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithAPIKey(cfg.Gemini.ApiKey),
			gemini.WithDefaultModel(embeddings.EmbeddingModel(cfg.Gemini.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}

		return ef, nil
	}

	return nil, errors.New("invalid embeddings provider configuration")
}

// createEmbeddingBackend returns the backend and, for chroma-go providers, the
// embedding function behind it.
func createEmbeddingBackend(cfg *Config) (embedder.Backend, embeddings.EmbeddingFunction, error) {
	if cfg.Embeddings.Provider == ProviderNvidia {
		b, err := embedder.NewOpenAIBackend(embedder.OpenAIConfig{
			BaseURL:  cfg.Embeddings.BaseURL,
			ApiKey:   cfg.Embeddings.ApiKey,
			Model:    cfg.Embeddings.Model,
			Truncate: cfg.Embeddings.Truncate,
			Timeout:  time.Duration(cfg.Embeddings.TimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}

		return b, nil, nil
	}

	ef, err := createEmbeddingFunction(cfg)
	if err != nil {
		return nil, nil, err
	}

	return embedder.NewChromaBackend(ef), ef, nil
}

func createIndexer(cfg *Config, ef embeddings.EmbeddingFunction, logger *slog.Logger) (rag.IndexBuilder, error) {
	if cfg.Index == IndexChroma {
		ix, err := docstore.NewChromaIndexer(docstore.ChromaConfig{
			BaseURL:       cfg.ChromaAddr,
			EmbeddingFunc: ef,
			RequestSize:   cfg.RequestSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Chroma index: %w", err)
		}

		return rag.IndexBuilderFunc(func(ctx context.Context, vectors [][]float32) (rag.Index, error) {
			idx, err := ix.Build(ctx, vectors)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}), nil
	}

	return rag.IndexBuilderFunc(func(ctx context.Context, vectors [][]float32) (rag.Index, error) {
		idx, err := vectorindex.Build(vectors)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}), nil
}

func newChunkifier(cfg *Config) *chunkifier.SentenceChunkifier {
	return &chunkifier.SentenceChunkifier{
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		OverlapSentences: cfg.OverlapSentences,
	}
}

func newService(cfg *Config, logger *slog.Logger) (*rag.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, ef, err := createEmbeddingBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding backend: %w", err)
	}

	indexer, err := createIndexer(cfg, ef, logger)
	if err != nil {
		return nil, err
	}

	gen, err := generator.NewOpenAIGenerator(generator.Config{
		BaseURL:     cfg.Generation.BaseURL,
		ApiKey:      cfg.Generation.ApiKey,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	return rag.NewService(rag.Deps{
		Extractor:  &readers.PdfFileReader{},
		Chunkifier: newChunkifier(cfg),
		Embedder: embedder.NewClient(backend, embedder.Config{
			BatchSize:   cfg.RequestSize,
			Parallelism: cfg.ParallelRequests,
		}, logger),
		Indexer:   indexer,
		Generator: gen,
	}, rag.Config{
		Results:      cfg.Results,
		SystemPrompt: cfg.Generation.SystemPrompt,
	}, logger), nil
}

func openLog(path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil)), nil, nil
	}

	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return slog.New(slog.NewJSONHandler(logFile, nil)), logFile, nil
}

type app struct {
	cfgPath string
	envPath string
	cfg     *Config
	log     *slog.Logger
	logFile io.Closer
}

func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", a.envPath, err)
	}

	cfg, err := readConfig(a.cfgPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = parseConfig(nil)
	}
	if err != nil {
		return err
	}

	logger, closer, err := openLog(cfg.LogFile)
	if err != nil {
		return err
	}

	a.cfg, a.log, a.logFile = cfg, logger, closer
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pdfrag",
		Short:         "Ask questions about a PDF document",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "cfg/config.yaml", "Configuration file")
	root.PersistentFlags().StringVar(&a.envPath, "env", ".env", "Environment file loaded before the configuration")

	root.AddCommand(newServeCmd(a), newAskCmd(a), newChunksCmd(a))
	return root
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, plus the MCP server and inbox watcher when configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(a.cfg, a.log)
			if err != nil {
				return err
			}

			return serve(cmd.Context(), a.cfg, svc, a.log)
		},
	}
}

func serve(ctx context.Context, cfg *Config, svc *rag.Service, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Inbox != "" {
		inbox := NewInbox(cfg.Inbox, cfg.MergeEventsDelay(), svc, logger)
		if err := inbox.Watch(ctx); err != nil {
			return err
		}
		logger.Info("watching inbox", "dir", cfg.Inbox)
	}

	api := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           NewAPI(svc, cfg.MaxUploadBytes(), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		return serveHTTP(ctx, api, logger)
	})

	if cfg.MCPAddr != "" {
		sse := server.NewSSEServer(NewRagServer(svc, logger), server.WithBaseURL(fmt.Sprintf("http://%s", cfg.MCPAddr)))
		g.Go(func() error {
			logger.Info("mcp server listening", "addr", cfg.MCPAddr)
			if err := sse.Start(cfg.MCPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sse.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <file.pdf> <question...>",
		Short: "Load a PDF and answer one question about it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(a.cfg, a.log)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			up, err := svc.Upload(cmd.Context(), data, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			defer svc.Clear()

			res, err := svc.Ask(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgCyan).Fprintf(out, "%s: %d pages, %d chunks, %d used\n", up.Filename, up.PageCount, up.ChunkCount, res.ChunksUsed)
			fmt.Fprintln(out, res.Answer)
			return nil
		},
	}
}

func newChunksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <file.pdf>",
		Short: "Print the chunks a PDF is split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateChunking(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			reader := &readers.PdfFileReader{}
			if !reader.CanRead(args[0]) {
				return rag.ErrInvalidFileType
			}

			text, err := reader.ReadText(args[0])
			if err != nil {
				return err
			}

			printChunks(cmd.OutOrStdout(), newChunkifier(a.cfg).Chunkify(text))
			return nil
		},
	}
}

func printChunks(out io.Writer, chunks []string) {
	header := color.New(color.FgYellow, color.Bold)
	for i, c := range chunks {
		header.Fprintf(out, "[Chunk %d] %d words\n", i+1, len(strings.Fields(c)))
		fmt.Fprintf(out, "%s\n\n", c)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
