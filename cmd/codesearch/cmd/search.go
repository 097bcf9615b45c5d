package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/output"
	"github.com/hybridsearch/codesearch/internal/retrieval"
)

type searchOptions struct {
	topK    int
	fusion  string
	jsonOut bool
	embedderOptions
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a fused dense + BM25 search against a built index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.topK, "top-k", 10, "Number of results to return")
	cmd.Flags().StringVar(&opts.fusion, "fusion", "", "Fusion method: weighted, rrf, vector_only, bm25_only (empty = config default)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the static hash-based embedder (must match the embedder used at index time)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: service, static (empty = service)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (empty = provider default)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	if found, ferr := config.FindProjectRoot(root); ferr == nil {
		root = found
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, embedder, cleanup, err := openRetrievalEngine(ctx, root, cfg, opts.embedderOptions)
	if err != nil {
		return err
	}
	defer embedder.Close()
	defer cleanup()

	searchOpts := retrieval.Options{}
	if opts.fusion != "" {
		searchOpts.FusionMethod = retrieval.FusionMethod(opts.fusion)
	}

	results, err := engine.Search(ctx, query, opts.topK, searchOpts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if opts.jsonOut {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(results) == 0 {
		out.Status("🔍", "no results")
		return nil
	}
	for i, r := range results {
		path, _ := r.Metadata["file_path"].(string)
		out.Statusf("📄", "%d. %s (score %.4f, sources: %s)", i+1, path, r.CombinedScore, strings.Join(r.Sources, "+"))
	}
	return nil
}
