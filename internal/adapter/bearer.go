package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// BearerAuthConfig configures the bearer-auth HTTP adapter: a
// form-encoded auth endpoint and a JSON retrieval endpoint, with a fixed
// repo-id filter and similarity threshold.
type BearerAuthConfig struct {
	AuthURL      string
	RetrievalURL string
	Username     string
	Password     string

	// RepoIDs and Threshold default to the legacy backend values,
	// [28] and 0.8.
	RepoIDs   []int
	Threshold float64

	// ApplyControllerPathFallback enables the backend-specific file_name
	// -> src/main/java/... path reconstruction. Off by default: it is
	// backend-specific and fragile outside that one deployment.
	ApplyControllerPathFallback bool

	Timeout    time.Duration
	MaxRetries int
}

type tokenResponse struct {
	StatusCode  int    `json:"statusCode"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Content     struct {
		UserName string `json:"user_name"`
	} `json:"content"`
}

type retrievalHit struct {
	Text     string  `json:"content"`
	Score    float64 `json:"score"`
	RepoID   int     `json:"repo_id"`
	RepoName string  `json:"repo_name"`
	Meta     struct {
		FileName string `json:"file_name"`
		DocID    string `json:"doc_id"`
	} `json:"meta"`
}

type retrievalResponse struct {
	Success bool           `json:"success"`
	Results []retrievalHit `json:"results"`
}

// BearerAuthAdapter implements lazy token
// acquisition, Authorization header on retrieval, 401 -> discard ->
// re-authenticate once -> retry once -> surface error, and the
// backend-specific controller-path fallback for bare filenames.
type BearerAuthAdapter struct {
	cfg    BearerAuthConfig
	client *http.Client

	mu        sync.Mutex
	token     string
	tokenType string
}

// NewBearerAuth constructs a BearerAuthAdapter with no token yet acquired.
func NewBearerAuth(cfg BearerAuthConfig) *BearerAuthAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RepoIDs == nil {
		cfg.RepoIDs = []int{28}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.8
	}
	return &BearerAuthAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Retrieve issues the retrieval call, lazily authenticating on first use
// and re-authenticating at most once per call if the backend returns
// 401.
func (a *BearerAuthAdapter) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	a.mu.Lock()
	haveToken := a.token != ""
	a.mu.Unlock()

	if !haveToken {
		if err := a.authenticate(ctx); err != nil {
			return nil, aerrors.AuthError("bearer adapter could not authenticate", err)
		}
	}

	resp, status, err := a.doRetrieval(ctx, query, k)
	if err != nil {
		return nil, aerrors.DependencyUnavailableError("bearer adapter retrieval request failed", err)
	}

	if status == http.StatusUnauthorized {
		a.mu.Lock()
		a.token = ""
		a.tokenType = ""
		a.mu.Unlock()

		if err := a.authenticate(ctx); err != nil {
			return nil, aerrors.AuthError("bearer adapter re-authentication failed", err)
		}

		resp, status, err = a.doRetrieval(ctx, query, k)
		if err != nil {
			return nil, aerrors.DependencyUnavailableError("bearer adapter retry after re-auth failed", err)
		}
		if status == http.StatusUnauthorized {
			return nil, aerrors.AuthError("bearer adapter still unauthorized after re-authentication", nil)
		}
	}

	if status >= 500 {
		return nil, aerrors.DependencyUnavailableError(fmt.Sprintf("bearer adapter retrieval returned %d", status), nil)
	}
	if status >= 400 {
		return nil, aerrors.AuthError(fmt.Sprintf("bearer adapter retrieval returned %d", status), nil)
	}

	return a.mapResults(resp), nil
}

// authenticate POSTs form-encoded username/password to AuthURL and stores
// the returned bearer token. Transport errors are retried with backoff;
// a rejection from the auth endpoint is final.
func (a *BearerAuthAdapter) authenticate(ctx context.Context) error {
	return aerrors.Retry(ctx, aerrors.RetryConfig{
		MaxRetries:   a.cfg.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		return a.authenticateOnce(ctx)
	})
}

// authenticateOnce performs a single auth round trip.
func (a *BearerAuthAdapter) authenticateOnce(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", a.cfg.Username)
	form.Set("password", a.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return aerrors.AuthError(fmt.Sprintf("auth endpoint returned %d", resp.StatusCode), nil)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	// The backend reports success in the body, not just the HTTP status.
	if tok.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return aerrors.AuthError(fmt.Sprintf("auth rejected: statusCode=%d, token present=%t", tok.StatusCode, tok.AccessToken != ""), nil)
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	a.mu.Lock()
	a.token = tok.AccessToken
	a.tokenType = tok.TokenType
	a.mu.Unlock()
	return nil
}

// doRetrieval issues the retrieval POST with the current bearer token and
// returns the decoded body (if 2xx) plus the raw status code so the
// caller can drive the 401 re-auth state machine. Transport errors and
// 5xx responses are retried with doubling backoff; 4xx statuses are
// returned to the caller untouched.
func (a *BearerAuthAdapter) doRetrieval(ctx context.Context, query string, k int) (retrievalResponse, int, error) {
	reqBody := map[string]any{
		"ids": a.cfg.RepoIDs,
		"payload": map[string]any{
			"k":         k,
			"query":     query,
			"threshold": a.cfg.Threshold,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return retrievalResponse{}, 0, err
	}

	delay := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		out, status, err := a.doRetrievalOnce(ctx, body)
		if err == nil && status < 500 {
			return out, status, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("retrieval endpoint returned %d", status)
		}
		if attempt >= a.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return retrievalResponse{}, 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return retrievalResponse{}, 0, lastErr
}

// doRetrievalOnce performs a single retrieval round trip.
func (a *BearerAuthAdapter) doRetrievalOnce(ctx context.Context, body []byte) (retrievalResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.RetrievalURL, bytes.NewReader(body))
	if err != nil {
		return retrievalResponse{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	a.mu.Lock()
	authHeader := a.tokenType + " " + a.token
	a.mu.Unlock()
	req.Header.Set("Authorization", authHeader)

	resp, err := a.client.Do(req)
	if err != nil {
		return retrievalResponse{}, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return retrievalResponse{}, resp.StatusCode, nil
	}

	var out retrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return retrievalResponse{}, resp.StatusCode, fmt.Errorf("decode retrieval response: %w", err)
	}
	return out, resp.StatusCode, nil
}

// controllerPathFallbackPrefix is the backend-specific directory this
// one deployment's Java sources live under.
const controllerPathFallbackPrefix = "src/main/java/com/skax/library/controller/"

func (a *BearerAuthAdapter) mapResults(resp retrievalResponse) []Result {
	out := make([]Result, 0, len(resp.Results))
	for _, hit := range resp.Results {
		filePath := hit.Meta.FileName
		if a.cfg.ApplyControllerPathFallback &&
			!strings.Contains(filePath, "/") &&
			strings.HasSuffix(filePath, ".java") {
			filePath = controllerPathFallbackPrefix + filePath
		}
		out = append(out, Result{
			ID:       hit.Meta.DocID,
			Content:  hit.Text,
			Score:    hit.Score,
			FilePath: filePath,
			Metadata: map[string]any{
				"repo_id":   hit.RepoID,
				"repo_name": hit.RepoName,
			},
		})
	}
	return out
}

// HealthCheck reports whether the adapter currently holds a usable token,
// authenticating if it does not.
func (a *BearerAuthAdapter) HealthCheck(ctx context.Context) bool {
	a.mu.Lock()
	haveToken := a.token != ""
	a.mu.Unlock()
	if haveToken {
		return true
	}
	return a.authenticate(ctx) == nil
}

// Close releases idle connections held by the adapter's HTTP client.
func (a *BearerAuthAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ Adapter = (*BearerAuthAdapter)(nil)
