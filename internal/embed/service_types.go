package embed

import "time"

// Embedding service constants
const (
	// DefaultServiceURL is the default embedding service endpoint
	DefaultServiceURL = "http://localhost:8230"

	// DefaultServiceModel is the model label reported for index metadata;
	// the service itself decides which model actually runs.
	DefaultServiceModel = "service-default"

	// ServiceConnectTimeout for availability probes
	ServiceConnectTimeout = 5 * time.Second

	// ServicePoolSize for connection pool
	ServicePoolSize = 4
)

// ServiceConfig configures the embedding-service client
type ServiceConfig struct {
	// BaseURL is the embedding service endpoint (default: http://localhost:8230)
	BaseURL string

	// Model is a label recorded in index metadata (the service picks the
	// actual model; this is informational)
	Model string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// BatchSize for bulk embedding requests (default: 32)
	BatchSize int

	// Timeout is stored with the config (default: 60s) but no request reads
	// it: per-request deadlines come from DefaultColdTimeout and
	// DefaultWarmTimeout, scaled by TimeoutProgression and
	// RetryTimeoutMultiplier.
	Timeout time.Duration

	// ConnectTimeout for availability probes (default: 5s)
	ConnectTimeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// PoolSize for HTTP connection pool (default: 4)
	PoolSize int

	// SkipHealthCheck skips the startup probe (for testing)
	SkipHealthCheck bool

	// ProgressFunc is called after each batch with (completed, total) counts
	ProgressFunc func(completed, total int)

	// InterBatchDelay is a pause between bulk batches, easing load on a
	// shared embedding service during long indexing runs (default: 0)
	InterBatchDelay time.Duration

	// TimeoutProgression increases timeout for later batches (1.0 = no increase)
	// Formula: effectiveTimeout = baseTimeout * (1 + (batchIndex*BatchSize/1000) * (TimeoutProgression - 1))
	TimeoutProgression float64

	// RetryTimeoutMultiplier scales timeout on each retry (1.0 = no scaling)
	// Formula: retryTimeout = baseTimeout * (RetryTimeoutMultiplier ^ attemptNumber)
	RetryTimeoutMultiplier float64
}

// DefaultServiceConfig returns sensible defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BaseURL:                DefaultServiceURL,
		Model:                  DefaultServiceModel,
		Dimensions:             0, // Auto-detect
		BatchSize:              DefaultBatchSize,
		Timeout:                DefaultTimeout,
		ConnectTimeout:         ServiceConnectTimeout,
		MaxRetries:             DefaultMaxRetries,
		PoolSize:               ServicePoolSize,
		InterBatchDelay:        DefaultInterBatchDelay,
		TimeoutProgression:     DefaultTimeoutProgression,
		RetryTimeoutMultiplier: DefaultRetryTimeoutMultiplier,
	}
}

// embedRequest is the POST /embedding/embed request body
type embedRequest struct {
	Text string `json:"text"`
}

// embedResponse is the POST /embedding/embed response body
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// bulkEmbedRequest is the POST /embedding/embed/bulk request body
type bulkEmbedRequest struct {
	Texts []string `json:"texts"`
}

// bulkEmbedResponse is the POST /embedding/embed/bulk response body
type bulkEmbedResponse struct {
	Embeddings []bulkEmbedItem `json:"embeddings"`
}

// bulkEmbedItem is one vector of the bulk response
type bulkEmbedItem struct {
	Embedding []float64 `json:"embedding"`
}
