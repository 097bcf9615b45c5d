package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/eval"
	"github.com/hybridsearch/codesearch/internal/httpapi"
)

type serveOptions struct {
	port         int
	datasetsRoot string
	embedderOptions
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the HTTP API over a previously built index",
		Long: `serve loads the index built by 'codesearch index' and listens for
/search/retrieve, /index/upsert, /index/by-filter, and /evaluate requests.
This is a narrow surface meant for adapter and test interoperability,
not the retrieval engine's primary interface.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "Listen port (empty = config default)")
	cmd.Flags().StringVar(&opts.datasetsRoot, "datasets", "", "Root directory containing evaluation dataset subdirectories")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the static hash-based embedder (must match the embedder used at index time)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: service, static (empty = service)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (empty = provider default)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
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

	datasetsRoot := opts.datasetsRoot
	if datasetsRoot == "" {
		datasetsRoot = root
	}

	runLogPath := cfg.Eval.RunLogPath
	if runLogPath == "" {
		ext := ".jsonl"
		if cfg.Eval.RunLogBackend == "sqlite" {
			ext = ".db"
		}
		runLogPath = filepath.Join(root, ".codesearch", "eval_runs"+ext)
	}
	runLog, err := eval.NewRunLog(cfg.Eval.RunLogBackend, runLogPath)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer runLog.Close()

	deps := httpapi.Deps{
		Retrieve: httpapi.RetrieveDeps{Engine: engine},
		Index: httpapi.IndexDeps{
			Vectors:  engine.Vectors(),
			BM25:     engine.BM25(),
			Embedder: engine.Embedder(),
		},
		Evaluate: httpapi.EvaluateDeps{
			DatasetsRoot:   datasetsRoot,
			DefaultAdapter: cfg.Adapter,
			DefaultEval:    cfg.Eval,
			Engine:         engine,
			RunLog:         runLog,
		},
	}

	port := opts.port
	if port == 0 {
		port = cfg.Server.Port
	}
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http surface listening", slog.String("addr", addr))
		fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
