package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/retrieval"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

// fusionRequest is the `fusion:{method, weights|rrf_k}` request shape.
type fusionRequest struct {
	Method       string    `json:"method"`
	Weights      []float64 `json:"weights"`
	RRFConstant  int       `json:"rrf_k"`
}

// filterCondition is one entry of the AND-of-conditions filter DSL:
// either an equality value or an any-of set.
type filterCondition struct {
	Value any   `json:"eq"`
	AnyOf []any `json:"any_of"`
}

type retrieveRequest struct {
	Query   string                     `json:"query"`
	K       int                        `json:"k"`
	Fusion  *fusionRequest             `json:"fusion"`
	Filters map[string]filterCondition `json:"filters"`
}

type retrieveResultView struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	VectorScore   float64        `json:"vector_score"`
	BM25Score     float64        `json:"bm25_score"`
	CombinedScore float64        `json:"combined_score"`
	Sources       []string       `json:"sources"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type retrieveResponse struct {
	Results    []retrieveResultView `json:"results"`
	TimingsMS  int64                `json:"timings_ms"`
}

// RetrieveDeps bundles dependencies for POST /search/retrieve.
type RetrieveDeps struct {
	Engine *retrieval.Engine
}

// Retrieve returns the handler for POST /search/retrieve.
func Retrieve(deps RetrieveDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req retrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, aerrors.ValidationError("decode request body", err))
			return
		}
		if req.K <= 0 {
			req.K = 10
		}

		opts := retrieval.Options{
			Filter:     toVectorFilter(req.Filters),
			BM25Filter: toBM25Filter(req.Filters),
		}
		if req.Fusion != nil {
			opts.FusionMethod = retrieval.FusionMethod(req.Fusion.Method)
			opts.RRFConstant = req.Fusion.RRFConstant
			if len(req.Fusion.Weights) == 2 {
				opts.VectorWeight = req.Fusion.Weights[0]
				opts.BM25Weight = req.Fusion.Weights[1]
			}
		}

		started := time.Now()
		results, err := deps.Engine.Search(r.Context(), req.Query, req.K, opts)
		elapsed := time.Since(started).Milliseconds()
		if err != nil {
			respondError(w, err)
			return
		}

		view := make([]retrieveResultView, len(results))
		for i, res := range results {
			view[i] = retrieveResultView{
				ID:            res.ID,
				Content:       res.Content,
				VectorScore:   res.VectorScore,
				BM25Score:     res.BM25Score,
				CombinedScore: res.CombinedScore,
				Sources:       res.Sources,
				Metadata:      res.Metadata,
			}
		}

		respondOK(w, retrieveResponse{Results: view, TimingsMS: elapsed})
	}
}

func toVectorFilter(filters map[string]filterCondition) vectorfacade.Filter {
	if len(filters) == 0 {
		return nil
	}
	out := make(vectorfacade.Filter, len(filters))
	for field, cond := range filters {
		if len(cond.AnyOf) > 0 {
			out[field] = vectorfacade.AnyOf(cond.AnyOf...)
		} else {
			out[field] = vectorfacade.Eq(cond.Value)
		}
	}
	return out
}

func toBM25Filter(filters map[string]filterCondition) lexical.Filter {
	if len(filters) == 0 {
		return nil
	}
	out := make(lexical.Filter, len(filters))
	for field, cond := range filters {
		if len(cond.AnyOf) > 0 {
			out[field] = lexical.AnyOf(cond.AnyOf...)
		} else {
			out[field] = lexical.Eq(cond.Value)
		}
	}
	return out
}
