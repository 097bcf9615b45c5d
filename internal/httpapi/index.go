package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hybridsearch/codesearch/internal/document"
	"github.com/hybridsearch/codesearch/internal/embed"
	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

// IndexDeps bundles dependencies for the index mutation endpoints.
type IndexDeps struct {
	Vectors  *vectorfacade.Facade
	BM25     *lexical.Index
	Embedder embed.Embedder
}

type upsertRequest struct {
	Records []document.Chunk `json:"records"`
}

type upsertResponse struct {
	Inserted int `json:"inserted"`
}

// Upsert returns the handler for POST /index/upsert. It runs each raw
// Chunk through the Document Builder, embeds the enriched text, and writes
// the result into both the vector facade and the BM25 index, so every
// retrievable unit lives in both stores.
func Upsert(deps IndexDeps) http.HandlerFunc {
	builder := document.NewBuilder()
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, aerrors.ValidationError("decode request body", err))
			return
		}
		if len(req.Records) == 0 {
			respondOK(w, upsertResponse{Inserted: 0})
			return
		}

		enhanced := builder.BuildAll(req.Records)

		if deps.Vectors != nil && deps.Embedder != nil {
			texts := make([]string, len(enhanced))
			for i, c := range enhanced {
				texts[i] = c.EnhancedContent
			}
			vectors, err := deps.Embedder.EmbedBatch(r.Context(), texts)
			if err != nil {
				respondError(w, aerrors.DependencyUnavailableError("embed upsert batch", err))
				return
			}
			records := make([]vectorfacade.Record, len(enhanced))
			for i, c := range enhanced {
				records[i] = vectorfacade.Record{ID: c.ID, Vector: vectors[i], Payload: c.PayloadMap()}
			}
			if err := deps.Vectors.Upsert(r.Context(), records); err != nil {
				respondError(w, err)
				return
			}
		}

		if deps.BM25 != nil {
			if err := deps.BM25.Add(r.Context(), enhanced); err != nil {
				respondError(w, err)
				return
			}
		}

		respondOK(w, upsertResponse{Inserted: len(enhanced)})
	}
}

type filterRequest struct {
	Filter map[string]filterCondition `json:"filter"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteByFilter returns the handler for DELETE /index/by-filter. The BM25
// index is the canonical record of which ids exist; its delete count is
// what's reported, and the vector facade's mirror copy is cleared too.
func DeleteByFilter(deps IndexDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, aerrors.ValidationError("decode request body", err))
			return
		}

		deleted := 0
		if deps.BM25 != nil {
			n, err := deps.BM25.DeleteByFilter(r.Context(), toBM25Filter(req.Filter))
			if err != nil {
				respondError(w, err)
				return
			}
			deleted = n
		}
		if deps.Vectors != nil {
			if _, err := deps.Vectors.DeleteByFilter(r.Context(), toVectorFilter(req.Filter)); err != nil {
				respondError(w, err)
				return
			}
		}

		respondOK(w, deleteResponse{Deleted: deleted})
	}
}
