package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/embed"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/retrieval"
	"github.com/hybridsearch/codesearch/internal/store"
	"github.com/hybridsearch/codesearch/internal/telemetry"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

// embedderOptions selects which embedder openRetrievalEngine constructs,
// shared by every command that opens a previously built index.
type embedderOptions struct {
	offline  bool
	provider string
	model    string
}

// openRetrievalEngine loads the persisted vector facade and BM25 index
// under root/.codesearch and wires them, plus a fresh embedder, into a
// retrieval.Engine configured from cfg.Retrieval. The caller owns the
// returned embedder's lifecycle and must Close it, and must call the
// returned cleanup func (which flushes and closes the query telemetry
// store) before exiting.
func openRetrievalEngine(ctx context.Context, root string, cfg *config.Config, opts embedderOptions) (*retrieval.Engine, embed.Embedder, func() error, error) {
	dataDir := filepath.Join(root, ".codesearch")

	provider := opts.provider
	if provider == "" {
		provider = cfg.Embeddings.Provider
	}
	if opts.offline {
		provider = string(embed.ProviderStatic)
	}
	model := opts.model
	if model == "" {
		model = cfg.Embeddings.Model
	}

	pacing := embed.ServicePacingConfig{
		BaseURL:            cfg.Embeddings.ServiceURL,
		TimeoutProgression: cfg.Embeddings.TimeoutProgression,
	}
	if cfg.Embeddings.InterBatchDelay != "" {
		if d, perr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); perr == nil {
			pacing.InterBatchDelay = d
		}
	}
	if cfg.Embeddings.RetryTimeoutMultiplier >= 1.0 {
		pacing.RetryTimeoutMultiplier = cfg.Embeddings.RetryTimeoutMultiplier
	}
	embed.SetServiceConfig(pacing)

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(provider), model)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	facade := vectorfacade.New()
	if err := facade.Load(filepath.Join(dataDir, "vectors"), embedder.Dimensions(), "cos"); err != nil {
		_ = embedder.Close()
		return nil, nil, nil, fmt.Errorf("load vector index: %w", err)
	}

	bm25Cfg := store.DefaultBM25Config()
	idx, err := lexical.NewWithBackend(bm25Cfg, filepath.Join(dataDir, "bm25"), cfg.Search.BM25Backend)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, nil, fmt.Errorf("load BM25 index: %w", err)
	}

	engine := retrieval.New(facade, idx, embedder, retrieval.EngineConfig{
		FusionMethod:    retrieval.FusionMethod(cfg.Retrieval.FusionMethod),
		VectorWeight:    cfg.Retrieval.VectorWeight,
		BM25Weight:      cfg.Retrieval.BM25Weight,
		RRFConstant:     cfg.Retrieval.RRFConstant,
		MaxResults:      cfg.Retrieval.MaxResults,
		DeadlineSeconds: cfg.Retrieval.DeadlineSeconds,
	})

	metrics, metricsCleanup := openQueryMetrics(dataDir)
	engine.SetMetrics(metrics)

	cleanup := func() error {
		closeErr := metricsCleanup()
		if idxErr := idx.Close(); idxErr != nil && closeErr == nil {
			closeErr = idxErr
		}
		return closeErr
	}
	return engine, embedder, cleanup, nil
}

// openQueryMetrics opens (creating if needed) the telemetry database under
// dataDir and returns a collector plus a cleanup func that flushes and
// closes it. Telemetry is best-effort: if the database can't be opened,
// openQueryMetrics logs a warning and returns a collector with no backing
// store, so Search still records in-memory metrics for the life of the
// process but nothing is persisted.
func openQueryMetrics(dataDir string) (*telemetry.QueryMetrics, func() error) {
	dsn := filepath.Join(dataDir, "telemetry.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		slog.Warn("open telemetry database failed, metrics will not persist", slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil), func() error { return nil }
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		slog.Warn("init telemetry schema failed, metrics will not persist", slog.String("error", err.Error()))
		_ = db.Close()
		return telemetry.NewQueryMetrics(nil), func() error { return nil }
	}
	store, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		slog.Warn("open telemetry store failed, metrics will not persist", slog.String("error", err.Error()))
		_ = db.Close()
		return telemetry.NewQueryMetrics(nil), func() error { return nil }
	}

	metrics := telemetry.NewQueryMetrics(store)
	cleanup := func() error {
		closeErr := metrics.Close()
		if dbErr := db.Close(); dbErr != nil && closeErr == nil {
			closeErr = dbErr
		}
		return closeErr
	}
	return metrics, cleanup
}
