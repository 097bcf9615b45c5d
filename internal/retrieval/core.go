// Package retrieval implements the hybrid retrieval core: a two-leg,
// deadline-bounded fan-out over the vector index facade and the BM25
// index, fused by weighted-sum or reciprocal-rank fusion.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hybridsearch/codesearch/internal/embed"
	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/telemetry"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

// FusionMethod selects how the two legs' results are combined.
type FusionMethod string

const (
	// FusionWeighted is weighted-sum fusion over min-max normalized scores.
	FusionWeighted FusionMethod = "weighted"
	// FusionRRF is reciprocal-rank fusion.
	FusionRRF FusionMethod = "rrf"
	// FusionVectorOnly runs only the vector leg — an evaluation ablation.
	FusionVectorOnly FusionMethod = "vector_only"
	// FusionBM25Only runs only the BM25 leg — an evaluation ablation.
	FusionBM25Only FusionMethod = "bm25_only"
)

// Options configures a single Search call, overriding the Engine's
// defaults where set (zero value means "use the Engine default").
type Options struct {
	FusionMethod    FusionMethod
	VectorWeight    float64
	BM25Weight      float64
	RRFConstant     int
	MaxResults      int
	DeadlineSeconds int
	Filter          vectorfacade.Filter
	BM25Filter      lexical.Filter
}

// FusedResult is a single fused hit, carrying both legs' scores and
// ranks for caller inspection.
type FusedResult struct {
	ID            string
	Content       string
	VectorScore   float64
	BM25Score     float64
	VectorRank    int // 1-indexed; 0 means absent from the vector leg
	BM25Rank      int // 1-indexed; 0 means absent from the BM25 leg
	CombinedScore float64
	Sources       []string
	Metadata      map[string]any
}

// Engine runs the two legs and fuses their results.
type Engine struct {
	vectors  *vectorfacade.Facade
	bm25     *lexical.Index
	embedder embed.Embedder

	defaultMethod  FusionMethod
	vectorWeight   float64
	bm25Weight     float64
	rrfConstant    int
	maxResults     int
	deadline       time.Duration

	metrics *telemetry.QueryMetrics
}

// New constructs an Engine over an existing vector facade and BM25 index.
// Either may be nil; a nil leg behaves as if it always returned empty,
// so an engine without a vector backend serves BM25-only results.
func New(vectors *vectorfacade.Facade, bm25 *lexical.Index, embedder embed.Embedder, cfg EngineConfig) *Engine {
	return &Engine{
		vectors:       vectors,
		bm25:          bm25,
		embedder:      embedder,
		defaultMethod: cfg.FusionMethod,
		vectorWeight:  cfg.VectorWeight,
		bm25Weight:    cfg.BM25Weight,
		rrfConstant:   cfg.RRFConstant,
		maxResults:    cfg.MaxResults,
		deadline:      time.Duration(cfg.DeadlineSeconds) * time.Second,
	}
}

// EngineConfig mirrors config.RetrievalCoreConfig without importing the
// config package, keeping retrieval free of a dependency on the ambient
// configuration layer.
type EngineConfig struct {
	FusionMethod    FusionMethod
	VectorWeight    float64
	BM25Weight      float64
	RRFConstant     int
	MaxResults      int
	DeadlineSeconds int
}

type legResult struct {
	id       string
	content  string
	score    float64
	metadata map[string]any
}

// Vectors returns the engine's underlying vector facade, or nil if the
// engine was built without one. Used by callers (the HTTP surface, the
// MCP tool surface) that need to mutate the same index the engine reads.
func (e *Engine) Vectors() *vectorfacade.Facade { return e.vectors }

// BM25 returns the engine's underlying lexical index, or nil if the
// engine was built without one.
func (e *Engine) BM25() *lexical.Index { return e.bm25 }

// Embedder returns the engine's embedder, or nil if none was configured.
func (e *Engine) Embedder() embed.Embedder { return e.embedder }

// SetMetrics attaches a query telemetry collector. Search records one
// QueryEvent per call once this is set; nil disables recording (the
// zero-value Engine has no collector and Search is a no-op on this front).
func (e *Engine) SetMetrics(m *telemetry.QueryMetrics) { e.metrics = m }

// Search executes the configured fusion strategy for query, returning up
// to k FusedResults.
func (e *Engine) Search(ctx context.Context, query string, k int, opts Options) ([]FusedResult, error) {
	start := time.Now()
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []FusedResult{}, nil
	}

	method := opts.FusionMethod
	if method == "" {
		method = e.defaultMethod
	}

	deadline := e.deadline
	if opts.DeadlineSeconds > 0 {
		deadline = time.Duration(opts.DeadlineSeconds) * time.Second
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}

	over := e.maxResults
	if opts.MaxResults > 0 {
		over = opts.MaxResults
	}
	if over <= 0 {
		over = 50
	}
	fetchK := k
	if over > fetchK {
		fetchK = over
	}

	runVector := method != FusionBM25Only
	runBM25 := method != FusionVectorOnly

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var vectorResults, bm25Results []legResult
	var vectorErr, bm25Err error

	g, gCtx := errgroup.WithContext(callCtx)
	if runVector {
		g.Go(func() error {
			vectorResults, vectorErr = e.searchVector(gCtx, query, fetchK, opts.Filter)
			return nil // a failed leg degrades the result, never fails the call
		})
	}
	if runBM25 {
		g.Go(func() error {
			bm25Results, bm25Err = e.searchBM25(gCtx, query, fetchK, opts.BM25Filter)
			return nil
		})
	}
	_ = g.Wait() // errors are never returned by the goroutines themselves

	if vectorErr != nil && runVector && bm25Err != nil && runBM25 {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, aerrors.DeadlineError("both retrieval legs timed out", vectorErr)
		}
		return nil, aerrors.DependencyUnavailableError("both retrieval legs failed", vectorErr)
	}

	weights := struct{ v, b float64 }{e.vectorWeight, e.bm25Weight}
	if opts.VectorWeight > 0 || opts.BM25Weight > 0 {
		weights.v, weights.b = opts.VectorWeight, opts.BM25Weight
	}
	rrfK := e.rrfConstant
	if opts.RRFConstant > 0 {
		rrfK = opts.RRFConstant
	}
	if rrfK <= 0 {
		rrfK = 60
	}

	var fused []FusedResult
	switch method {
	case FusionRRF:
		fused = fuseRRF(vectorResults, bm25Results, rrfK)
	case FusionVectorOnly:
		fused = fuseVectorOnly(vectorResults)
	case FusionBM25Only:
		fused = fuseBM25Only(bm25Results)
	default:
		fused = fuseWeighted(vectorResults, bm25Results, weights.v, weights.b)
	}

	if len(fused) > k {
		fused = fused[:k]
	}

	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			QueryType:   classifyQueryType(vectorResults, bm25Results),
			ResultCount: len(fused),
			Latency:     time.Since(start),
			Timestamp:   start,
		})
	}

	return fused, nil
}

// classifyQueryType reports which legs actually contributed results, for
// telemetry bucketing (not which legs ran — a leg that ran but came back
// empty is indistinguishable from one that didn't run).
func classifyQueryType(vec, bm25 []legResult) telemetry.QueryType {
	switch {
	case len(vec) > 0 && len(bm25) > 0:
		return telemetry.QueryTypeMixed
	case len(vec) > 0:
		return telemetry.QueryTypeSemantic
	default:
		return telemetry.QueryTypeLexical
	}
}

func (e *Engine) searchVector(ctx context.Context, query string, k int, filter vectorfacade.Filter) ([]legResult, error) {
	if e.vectors == nil || e.embedder == nil {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordQueryEmbedding(vec)
	}
	raw, err := e.vectors.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]legResult, 0, len(raw))
	for _, r := range raw {
		content, _ := r.Payload["content"].(string)
		out = append(out, legResult{id: r.ID, content: content, score: float64(r.Score), metadata: r.Payload})
	}
	return out, nil
}

func (e *Engine) searchBM25(ctx context.Context, query string, k int, filter lexical.Filter) ([]legResult, error) {
	if e.bm25 == nil {
		return nil, nil
	}
	raw, err := e.bm25.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]legResult, 0, len(raw))
	for _, r := range raw {
		out = append(out, legResult{id: r.ID, content: r.Content, score: r.Score, metadata: r.Metadata})
	}
	return out, nil
}

// fuseWeighted combines the legs by weighted sum. BM25 scores are
// min-max normalized across this call's BM25 result set; vector scores
// have negatives clipped to 0. A score missing from a leg counts as 0.
func fuseWeighted(vec, bm25 []legResult, wv, wb float64) []FusedResult {
	merged := mergeLegs(vec, bm25)

	bm25Min, bm25Max := math.Inf(1), math.Inf(-1)
	for _, r := range bm25 {
		if r.score < bm25Min {
			bm25Min = r.score
		}
		if r.score > bm25Max {
			bm25Max = r.score
		}
	}

	normBM25 := func(s float64, present bool) float64 {
		if !present {
			return 0
		}
		if bm25Max == bm25Min {
			return 0
		}
		return (s - bm25Min) / (bm25Max - bm25Min)
	}
	clipVector := func(s float64, present bool) float64 {
		if !present {
			return 0
		}
		if s < 0 {
			return 0
		}
		return s
	}

	out := make([]FusedResult, 0, len(merged))
	for _, m := range merged {
		vs := clipVector(m.vectorScore, m.hasVector)
		bs := normBM25(m.bm25Score, m.hasBM25)
		out = append(out, FusedResult{
			ID:            m.id,
			Content:       m.content,
			VectorScore:   m.vectorScore,
			BM25Score:     m.bm25Score,
			VectorRank:    m.vectorRank,
			BM25Rank:      m.bm25Rank,
			CombinedScore: wv*vs + wb*bs,
			Sources:       m.sources(),
			Metadata:      m.metadata,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		if out[i].VectorScore != out[j].VectorScore {
			return out[i].VectorScore > out[j].VectorScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fuseRRF implements reciprocal-rank fusion: each list contributes
// 1/(rrfK+rank) for ids it ranks, 0 for ids it doesn't contain.
func fuseRRF(vec, bm25 []legResult, rrfK int) []FusedResult {
	merged := mergeLegs(vec, bm25)

	out := make([]FusedResult, 0, len(merged))
	for _, m := range merged {
		score := 0.0
		if m.hasVector {
			score += 1.0 / float64(rrfK+m.vectorRank)
		}
		if m.hasBM25 {
			score += 1.0 / float64(rrfK+m.bm25Rank)
		}
		out = append(out, FusedResult{
			ID:            m.id,
			Content:       m.content,
			VectorScore:   m.vectorScore,
			BM25Score:     m.bm25Score,
			VectorRank:    m.vectorRank,
			BM25Rank:      m.bm25Rank,
			CombinedScore: score,
			Sources:       m.sources(),
			Metadata:      m.metadata,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fuseVectorOnly(vec []legResult) []FusedResult {
	out := make([]FusedResult, 0, len(vec))
	for i, r := range vec {
		out = append(out, FusedResult{
			ID: r.id, Content: r.content, VectorScore: r.score, VectorRank: i + 1,
			CombinedScore: r.score, Sources: []string{"vector"}, Metadata: r.metadata,
		})
	}
	return out
}

func fuseBM25Only(bm25 []legResult) []FusedResult {
	out := make([]FusedResult, 0, len(bm25))
	for i, r := range bm25 {
		out = append(out, FusedResult{
			ID: r.id, Content: r.content, BM25Score: r.score, BM25Rank: i + 1,
			CombinedScore: r.score, Sources: []string{"bm25"}, Metadata: r.metadata,
		})
	}
	return out
}

// mergedEntry is the union, by id, of a vector-leg and a BM25-leg result.
type mergedEntry struct {
	id          string
	content     string
	metadata    map[string]any
	vectorScore float64
	bm25Score   float64
	vectorRank  int
	bm25Rank    int
	hasVector   bool
	hasBM25     bool
}

func (m mergedEntry) sources() []string {
	var s []string
	if m.hasVector {
		s = append(s, "vector")
	}
	if m.hasBM25 {
		s = append(s, "bm25")
	}
	return s
}

func mergeLegs(vec, bm25 []legResult) []mergedEntry {
	byID := make(map[string]*mergedEntry, len(vec)+len(bm25))
	order := make([]string, 0, len(vec)+len(bm25))

	get := func(id string) *mergedEntry {
		if e, ok := byID[id]; ok {
			return e
		}
		e := &mergedEntry{id: id}
		byID[id] = e
		order = append(order, id)
		return e
	}

	for i, r := range vec {
		e := get(r.id)
		e.content = r.content
		if e.metadata == nil {
			e.metadata = r.metadata
		}
		e.vectorScore = r.score
		e.vectorRank = i + 1
		e.hasVector = true
	}
	for i, r := range bm25 {
		e := get(r.id)
		if e.content == "" {
			e.content = r.content
		}
		if e.metadata == nil {
			e.metadata = r.metadata
		}
		e.bm25Score = r.score
		e.bm25Rank = i + 1
		e.hasBM25 = true
	}

	out := make([]mergedEntry, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
