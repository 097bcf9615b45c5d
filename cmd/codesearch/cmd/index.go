package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hybridsearch/codesearch/internal/async"
	"github.com/hybridsearch/codesearch/internal/chunker"
	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/document"
	"github.com/hybridsearch/codesearch/internal/embed"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/output"
	"github.com/hybridsearch/codesearch/internal/store"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

type indexOptions struct {
	offline  bool
	provider string
	model    string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the BM25 and vector indexes for a codebase",
		Long: `Walks the project directory, builds an EnhancedChunk for every
discovered source file, embeds it, and writes the result into both the
BM25 index and the vector facade under <path>/.codesearch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the static hash-based embedder (no embedding service required)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: service, static (empty = service)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (empty = provider default)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, rootArg string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(rootArg)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := filepath.Join(root, ".codesearch")

	indexer := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	provider := opts.provider
	if opts.offline {
		provider = string(embed.ProviderStatic)
	}

	indexer.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageScanning, 0)
		chunks, err := chunker.Chunk(root, chunker.Options{Exclude: cfg.Paths.Exclude, Include: cfg.Paths.Include})
		if err != nil {
			return fmt.Errorf("scan project: %w", err)
		}
		progress.SetStage(async.StageChunking, len(chunks))
		progress.UpdateFiles(len(chunks))
		out.Statusf("🔍", "discovered %d source files", len(chunks))

		builder := document.NewBuilder()
		enhanced := builder.BuildAll(chunks)
		progress.SetChunksTotal(len(enhanced))

		embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(provider), opts.model)
		if err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}
		defer embedder.Close()

		progress.SetStage(async.StageEmbedding, len(enhanced))
		texts := make([]string, len(enhanced))
		for i, c := range enhanced {
			texts[i] = c.EnhancedContent
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		progress.UpdateChunks(len(enhanced))
		progress.SetStage(async.StageIndexing, len(enhanced))

		vectorsDir := filepath.Join(dataDir, "vectors")
		facade := vectorfacade.New()
		if len(enhanced) > 0 {
			if err := facade.EnsureCollection(embedder.Dimensions(), "cos"); err != nil {
				return fmt.Errorf("ensure vector collection: %w", err)
			}
			records := make([]vectorfacade.Record, len(enhanced))
			for i, c := range enhanced {
				records[i] = vectorfacade.Record{ID: c.ID, Vector: vectors[i], Payload: c.PayloadMap()}
			}
			if err := facade.Upsert(ctx, records); err != nil {
				return fmt.Errorf("upsert vectors: %w", err)
			}
		}
		if err := facade.Save(vectorsDir); err != nil {
			return fmt.Errorf("persist vector index: %w", err)
		}

		bm25Path := filepath.Join(dataDir, "bm25")
		bm25Cfg := store.DefaultBM25Config()
		idx, err := lexical.NewWithBackend(bm25Cfg, bm25Path, cfg.Search.BM25Backend)
		if err != nil {
			return fmt.Errorf("open BM25 index: %w", err)
		}
		defer idx.Close() //nolint:errcheck
		if err := idx.Add(ctx, enhanced); err != nil {
			return fmt.Errorf("add to BM25 index: %w", err)
		}
		if err := idx.Save(); err != nil {
			return fmt.Errorf("persist BM25 index: %w", err)
		}

		progress.SetReady()
		return nil
	}

	indexer.Start(ctx)
	if err := indexer.Wait(); err != nil {
		return err
	}

	out.Success("index built")
	out.Statusf("📁", "location: %s", dataDir)
	return nil
}
