package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// GenericHTTPConfig configures a GenericHTTPAdapter: one POST to Endpoint
// with a configurable request shape and response extraction paths.
type GenericHTTPConfig struct {
	Endpoint string
	Timeout  time.Duration

	QueryField string // default "query"
	KField     string // default "k"

	ResultsField  string // default "results"
	ContentField  string // default "content"
	ScoreField    string // default "score"
	FilepathField string // default "file_path"

	MaxRetries int // total attempts with exponential backoff, default 3
}

// GenericHTTPAdapter POSTs a configurable JSON request shape to an
// arbitrary retrieval endpoint and extracts results via configurable field
// paths. A circuit breaker fails calls fast once the endpoint has been
// down for several consecutive requests.
type GenericHTTPAdapter struct {
	cfg     GenericHTTPConfig
	client  *http.Client
	breaker *aerrors.CircuitBreaker
}

// NewGenericHTTP constructs a GenericHTTPAdapter, applying field-name
// defaults where cfg leaves them blank.
func NewGenericHTTP(cfg GenericHTTPConfig) *GenericHTTPAdapter {
	if cfg.QueryField == "" {
		cfg.QueryField = "query"
	}
	if cfg.KField == "" {
		cfg.KField = "k"
	}
	if cfg.ResultsField == "" {
		cfg.ResultsField = "results"
	}
	if cfg.ContentField == "" {
		cfg.ContentField = "content"
	}
	if cfg.ScoreField == "" {
		cfg.ScoreField = "score"
	}
	if cfg.FilepathField == "" {
		cfg.FilepathField = "file_path"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &GenericHTTPAdapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: aerrors.NewCircuitBreaker("adapter:" + cfg.Endpoint),
	}
}

// Retrieve posts {query_field: query, k_field: k} and maps the response
// through the configured extraction paths. Transport errors and 5xx
// responses are retried with doubling backoff; 4xx responses never are.
func (a *GenericHTTPAdapter) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	reqBody := map[string]any{
		a.cfg.QueryField: query,
		a.cfg.KField:     k,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, aerrors.InternalError("marshal generic adapter request", err)
	}

	if !a.breaker.Allow() {
		return nil, aerrors.DependencyUnavailableError("generic HTTP adapter circuit open", aerrors.ErrCircuitOpen)
	}

	raw, err := a.retrieveWithBackoff(ctx, body)
	if err != nil {
		a.breaker.RecordFailure()
		return nil, aerrors.DependencyUnavailableError("generic HTTP adapter request failed", err)
	}
	a.breaker.RecordSuccess()

	return a.extractResults(raw), nil
}

// retrieveWithBackoff retries transport errors and 5xx responses with
// doubling delay (default 3 attempts), stopping immediately on a 4xx
// response (doRequest wraps those in errNonRetryable). MaxRetries is the
// total number of attempts.
func (a *GenericHTTPAdapter) retrieveWithBackoff(ctx context.Context, body []byte) (map[string]any, error) {
	delay := 200 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		resp, err := a.doRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if _, nonRetryable := err.(errNonRetryable); nonRetryable {
			return nil, err
		}
		if attempt+1 >= a.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

// doRequest performs a single HTTP round trip. A 4xx response is wrapped
// in errNonRetryable so retrieveWithBackoff stops immediately.
func (a *GenericHTTPAdapter) doRequest(ctx context.Context, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("generic adapter endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// 4xx is terminal: wrap it so retrieveWithBackoff does not retry.
		data, _ := io.ReadAll(resp.Body)
		return nil, errNonRetryable{fmt.Errorf("generic adapter endpoint returned %d: %s", resp.StatusCode, string(data))}
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generic adapter response: %w", err)
	}
	return out, nil
}

// errNonRetryable marks a 4xx failure. retrieveWithBackoff returns it at
// once without further attempts; it unwraps to the underlying error, whose
// message carries the status code and response body for diagnosis.
type errNonRetryable struct{ err error }

func (e errNonRetryable) Error() string { return e.err.Error() }
func (e errNonRetryable) Unwrap() error { return e.err }

func (a *GenericHTTPAdapter) extractResults(raw map[string]any) []Result {
	if raw == nil {
		return []Result{}
	}
	list, _ := raw[a.cfg.ResultsField].([]any)
	out := make([]Result, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		content, _ := m[a.cfg.ContentField].(string)
		score, _ := m[a.cfg.ScoreField].(float64)
		filePath, _ := m[a.cfg.FilepathField].(string)
		out = append(out, Result{ID: id, Content: content, Score: score, FilePath: filePath, Metadata: m})
	}
	return out
}

// HealthCheck issues a lightweight GET to the configured endpoint's host
// and reports whether it responded at all. An open circuit reports
// unhealthy without touching the network.
func (a *GenericHTTPAdapter) HealthCheck(ctx context.Context) bool {
	if a.breaker.State() == aerrors.StateOpen {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500
}

// Close releases idle connections held by the adapter's HTTP client.
func (a *GenericHTTPAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ Adapter = (*GenericHTTPAdapter)(nil)
