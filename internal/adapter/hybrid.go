package adapter

import (
	"context"

	"github.com/hybridsearch/codesearch/internal/retrieval"
)

// HybridAdapter wraps the local retrieval engine directly, with no HTTP
// hop in between.
type HybridAdapter struct {
	engine *retrieval.Engine
	method retrieval.FusionMethod
}

// NewHybrid constructs a HybridAdapter that runs the engine's configured
// fusion method.
func NewHybrid(engine *retrieval.Engine) *HybridAdapter {
	return &HybridAdapter{engine: engine}
}

// NewVectorOnly constructs an adapter that forces the vector-only
// ablation mode, bypassing fusion entirely.
func NewVectorOnly(engine *retrieval.Engine) *HybridAdapter {
	return &HybridAdapter{engine: engine, method: retrieval.FusionVectorOnly}
}

// NewBM25Only constructs an adapter that forces the BM25-only ablation
// mode.
func NewBM25Only(engine *retrieval.Engine) *HybridAdapter {
	return &HybridAdapter{engine: engine, method: retrieval.FusionBM25Only}
}

// Retrieve runs the wrapped engine and reshapes its FusedResults into the
// adapter-uniform Result shape.
func (a *HybridAdapter) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	fused, err := a.engine.Search(ctx, query, k, retrieval.Options{FusionMethod: a.method})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(fused))
	for _, f := range fused {
		filePath, _ := f.Metadata["file_path"].(string)
		out = append(out, Result{
			ID:       f.ID,
			Content:  f.Content,
			Score:    f.CombinedScore,
			FilePath: filePath,
			Metadata: f.Metadata,
		})
	}
	return out, nil
}

// HealthCheck reports the wrapped engine as healthy whenever it is
// non-nil; the engine itself degrades gracefully per-leg, so there is no
// meaningful "down" state to surface here beyond construction.
func (a *HybridAdapter) HealthCheck(_ context.Context) bool { return a.engine != nil }

// Close is a no-op: the engine's underlying stores are owned and closed by
// whatever constructed them.
func (a *HybridAdapter) Close() error { return nil }

var _ Adapter = (*HybridAdapter)(nil)
