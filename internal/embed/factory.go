package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderService uses the embedding service's HTTP API (default)
	ProviderService ProviderType = "service"

	// ProviderStatic uses hash-based embeddings (offline fallback, no
	// network; must match the embedder the index was built with)
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder based on provider type. The
// CODESEARCH_EMBEDDER environment variable overrides the provider:
//   - "service": the remote embedding service
//   - "static":  hash-based 768-dim embeddings, no network
//
// Query embedding caching is enabled by default (saves 50-200ms per
// repeated query). Set CODESEARCH_EMBED_CACHE=false to disable.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("CODESEARCH_EMBEDDER"); envProvider != "" {
		provider = ProviderType(strings.ToLower(envProvider))
	}

	var embedder Embedder
	var err error
	switch provider {
	case ProviderStatic:
		embedder = newStaticForModel(model)
	case ProviderService, "":
		embedder, err = newServiceEmbedder(ctx, model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)", provider, strings.Join(ValidProviders(), ", "))
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CODESEARCH_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newStaticForModel picks a static embedder by model label. "static"
// selects the compact 384-dim variant; anything else gets the 768-dim
// default, which matches the dimension most remote models produce.
func newStaticForModel(model string) Embedder {
	if strings.EqualFold(model, "static") || strings.EqualFold(model, "static-384") {
		return NewStaticEmbedder()
	}
	return NewStaticEmbedder768()
}

// newServiceEmbedder builds the remote embedding-service client, layering
// config-file settings and environment variables over the defaults.
// Env vars win.
func newServiceEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultServiceConfig()
	if model != "" {
		cfg.Model = model
	}

	// Config-file settings applied via SetServiceConfig
	if globalServiceConfig.BaseURL != "" {
		cfg.BaseURL = globalServiceConfig.BaseURL
	}
	if globalServiceConfig.InterBatchDelay > 0 {
		delay := globalServiceConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalServiceConfig.TimeoutProgression >= 1.0 {
		progression := globalServiceConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalServiceConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalServiceConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if url := os.Getenv("CODESEARCH_EMBED_URL"); url != "" {
		cfg.BaseURL = url
	}
	if modelOverride := os.Getenv("CODESEARCH_EMBED_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("CODESEARCH_EMBED_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewServiceEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding service unavailable: %w\n\nTo fix:\n  1. Start the embedding service and point CODESEARCH_EMBED_URL at it\n  2. Or run offline: codesearch index --offline", err)
	}
	return embedder, nil
}

// ServicePacingConfig holds request-pacing settings loaded from the
// config file, applied to the service client on construction. Env vars
// take precedence.
type ServicePacingConfig struct {
	BaseURL                string
	InterBatchDelay        time.Duration // Pause between bulk batches
	TimeoutProgression     float64       // Timeout multiplier for later batches (1.0-3.0)
	RetryTimeoutMultiplier float64       // Timeout multiplier per retry (1.0-2.0)
}

// globalServiceConfig holds config-file settings set via SetServiceConfig.
var globalServiceConfig ServicePacingConfig

// SetServiceConfig sets embedding-service settings from the loaded config.
// Call before NewEmbedder(); environment variables still win.
func SetServiceConfig(cfg ServicePacingConfig) {
	globalServiceConfig = cfg
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderService
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderService),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	// Unwrap cached embedder to get underlying type
	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *ServiceEmbedder:
		info.Provider = ProviderService
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
