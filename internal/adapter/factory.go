package adapter

import (
	"fmt"
	"time"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/retrieval"
)

// New constructs the Adapter variant named by cfg.Type. engine is required for "hybrid", "vector_only",
// and "bm25_only"; it may be nil otherwise.
func New(cfg config.AdapterConfig, engine *retrieval.Engine) (Adapter, error) {
	timeout, _ := time.ParseDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch cfg.Type {
	case "", "mock":
		return NewMock(), nil

	case "http":
		return NewGenericHTTP(GenericHTTPConfig{
			Endpoint:      cfg.Endpoint,
			Timeout:       timeout,
			QueryField:    cfg.QueryField,
			KField:        cfg.KField,
			ResultsField:  cfg.ResultsField,
			ContentField:  cfg.ContentField,
			ScoreField:    cfg.ScoreField,
			FilepathField: cfg.FilepathField,
			MaxRetries:    cfg.MaxRetries,
		}), nil

	case "bearer":
		return NewBearerAuth(BearerAuthConfig{
			AuthURL:                     cfg.AuthURL,
			RetrievalURL:                cfg.RetrievalURL,
			Username:                    cfg.Username,
			Password:                    cfg.Password,
			RepoIDs:                     cfg.RepoIDs,
			Threshold:                   cfg.Threshold,
			ApplyControllerPathFallback: cfg.ApplyControllerPathFallback,
			Timeout:                     timeout,
			MaxRetries:                  cfg.MaxRetries,
		}), nil

	case "hybrid":
		if engine == nil {
			return nil, fmt.Errorf("adapter type %q requires a retrieval engine", cfg.Type)
		}
		return NewHybrid(engine), nil

	case "vector_only":
		if engine == nil {
			return nil, fmt.Errorf("adapter type %q requires a retrieval engine", cfg.Type)
		}
		return NewVectorOnly(engine), nil

	case "bm25_only":
		if engine == nil {
			return nil, fmt.Errorf("adapter type %q requires a retrieval engine", cfg.Type)
		}
		return NewBM25Only(engine), nil

	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}
