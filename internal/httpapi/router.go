package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps bundles every dependency the HTTP surface's handlers need.
type Deps struct {
	Retrieve RetrieveDeps
	Index    IndexDeps
	Evaluate EvaluateDeps
}

// NewRouter assembles the HTTP surface on a chi router.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/search/retrieve", Retrieve(deps.Retrieve))
	r.Post("/index/upsert", Upsert(deps.Index))
	r.Delete("/index/by-filter", DeleteByFilter(deps.Index))
	r.Post("/evaluate", Evaluate(deps.Evaluate))

	return r
}
