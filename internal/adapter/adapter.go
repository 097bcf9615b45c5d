// Package adapter implements the RAG-adapter layer: a uniform
// Adapter contract over heterogeneous retrieval backends — an in-process
// mock, a generic HTTP endpoint, the Hybrid Retrieval Core directly, a
// bearer-auth HTTP backend with lazy token acquisition and one-shot
// re-authentication, and vector-only/BM25-only ablations for evaluation.
package adapter

import (
	"context"
)

// Result is a single retrieval hit, uniform across every adapter
// variant.
type Result struct {
	ID       string
	Content  string
	Score    float64
	FilePath string
	Metadata map[string]any
}

// Adapter is the contract every backend variant implements.
type Adapter interface {
	Retrieve(ctx context.Context, query string, k int) ([]Result, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}
