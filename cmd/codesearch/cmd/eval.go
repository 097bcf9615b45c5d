package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hybridsearch/codesearch/internal/adapter"
	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/dataset"
	"github.com/hybridsearch/codesearch/internal/eval"
	"github.com/hybridsearch/codesearch/internal/metrics"
	"github.com/hybridsearch/codesearch/internal/output"
)

type evalOptions struct {
	adapterType string
	endpoint    string
	jsonOut     bool
	watch       bool
	embedderOptions
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval <dataset-dir>",
		Short: "Run the evaluation pipeline against a labeled dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.adapterType, "adapter", "", "Adapter type: mock, http, bearer, hybrid, vector_only, bm25_only (empty = config default)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Override the adapter's HTTP endpoint")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-run the evaluation whenever the dataset directory changes")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the static hash-based embedder for local fusion adapters")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider for local fusion adapters: service, static")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model for local fusion adapters")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, datasetDir string, opts evalOptions) error {
	if !opts.watch {
		return runEvalOnce(ctx, cmd, datasetDir, opts)
	}

	out := output.New(cmd.OutOrStdout())
	changed, err := dataset.Watch(ctx, datasetDir)
	if err != nil {
		return fmt.Errorf("watch dataset directory: %w", err)
	}

	if err := runEvalOnce(ctx, cmd, datasetDir, opts); err != nil {
		out.Warningf("evaluation failed: %v", err)
	}
	out.Status("👀", "watching for dataset changes, ctrl-c to stop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changed:
			if !ok {
				return nil
			}
			out.Status("🔄", "dataset changed, re-running evaluation")
			if err := runEvalOnce(ctx, cmd, datasetDir, opts); err != nil {
				out.Warningf("evaluation failed: %v", err)
			}
		}
	}
}

func runEvalOnce(ctx context.Context, cmd *cobra.Command, datasetDir string, opts evalOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	if found, ferr := config.FindProjectRoot(root); ferr == nil {
		root = found
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapterCfg := cfg.Adapter
	if opts.adapterType != "" {
		adapterCfg.Type = opts.adapterType
	}
	if opts.endpoint != "" {
		adapterCfg.Endpoint = opts.endpoint
	}

	var a adapter.Adapter
	switch adapterCfg.Type {
	case "hybrid", "vector_only", "bm25_only":
		engine, embedder, cleanup, err := openRetrievalEngine(ctx, root, cfg, opts.embedderOptions)
		if err != nil {
			return err
		}
		defer embedder.Close()
		defer cleanup()
		a, err = adapter.New(adapterCfg, engine)
		if err != nil {
			return fmt.Errorf("build adapter: %w", err)
		}
	default:
		a, err = adapter.New(adapterCfg, nil)
		if err != nil {
			return fmt.Errorf("build adapter: %w", err)
		}
	}

	ds, report, err := dataset.Load(datasetDir)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	if !report.IsValid {
		out.Warning("dataset validation reported issues")
		for _, e := range report.FormatErrors {
			out.Statusf("⚠️", "%s", e)
		}
		for _, e := range report.ConsistencyErrors {
			out.Statusf("⚠️", "%s", e)
		}
	}

	metricNames := make([]metrics.Name, 0, len(cfg.Eval.Metrics))
	for _, m := range cfg.Eval.Metrics {
		metricNames = append(metricNames, metrics.Name(m))
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

	result, err := eval.Run(ctx, a, ds, cfg.Eval.KValues, metricNames, eval.Options{
		ConvertFilepathToClasspath: cfg.Eval.ConvertFilepathToClasspath,
		IgnoreMethodNames:          cfg.Eval.IgnoreMethodNames,
		Parallelism:                cfg.Eval.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("run evaluation: %w", err)
	}

	if err := runLog.Append(ctx, eval.RunRecord{
		SystemName:  "codesearch",
		DatasetName: ds.Metadata.Name,
		Metrics:     result.Metrics,
		TimestampMS: time.Now().UnixMilli(),
		Config:      map[string]any{"adapter_type": adapterCfg.Type},
	}); err != nil {
		out.Warningf("failed to append run log: %v", err)
	}

	if opts.jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out.Statusf("📊", "questions: %d (failed: %d)", result.QuestionCount, result.FailedQuestions)
	out.Statusf("⏱️", "wall time: %s", result.WallTime)
	for _, name := range metricNames {
		perK := result.Metrics[string(name)]
		for _, k := range cfg.Eval.KValues {
			out.Statusf("", "  %s@%d = %.4f", name, k, perK[k])
		}
	}
	return nil
}
