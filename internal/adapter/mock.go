package adapter

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockAdapter synthesizes deterministic results seeded by a hash of the
// query, for tests and local development without a live backend.
type MockAdapter struct{}

// NewMock constructs a MockAdapter.
func NewMock() *MockAdapter { return &MockAdapter{} }

// Retrieve returns k deterministic synthetic results: same query, same k
// always produces the same ids and scores.
func (m *MockAdapter) Retrieve(_ context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(query))
	seed := h.Sum64()

	out := make([]Result, 0, k)
	for i := 0; i < k; i++ {
		id := fmt.Sprintf("mock-%d-%d", seed%1000, i)
		score := 1.0 - float64(i)*(1.0/float64(k+1))
		out = append(out, Result{
			ID:       id,
			Content:  fmt.Sprintf("mock result %d for query %q", i, query),
			Score:    score,
			FilePath: fmt.Sprintf("mock/%s.go", id),
			Metadata: map[string]any{"mock": true, "rank": i},
		})
	}
	return out, nil
}

// HealthCheck always reports healthy; there is no external dependency.
func (m *MockAdapter) HealthCheck(_ context.Context) bool { return true }

// Close is a no-op.
func (m *MockAdapter) Close() error { return nil }

var _ Adapter = (*MockAdapter)(nil)
