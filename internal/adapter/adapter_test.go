package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapterIsDeterministic(t *testing.T) {
	m := NewMock()
	a, err := m.Retrieve(context.Background(), "parse tokens", 3)
	require.NoError(t, err)
	b, err := m.Retrieve(context.Background(), "parse tokens", 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, m.HealthCheck(context.Background()))
}

func TestMockAdapterDiffersByQuery(t *testing.T) {
	m := NewMock()
	a, _ := m.Retrieve(context.Background(), "parse tokens", 3)
	b, _ := m.Retrieve(context.Background(), "render html", 3)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestGenericHTTPAdapterHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "parse tokens", req["query"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "a", "content": "alpha", "score": 0.9, "file_path": "a.py"},
			},
		})
	}))
	defer srv.Close()

	a := NewGenericHTTP(GenericHTTPConfig{Endpoint: srv.URL})
	results, err := a.Retrieve(context.Background(), "parse tokens", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 0.9, results[0].Score)
}

func TestGenericHTTPAdapterRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"id": "ok"}}})
	}))
	defer srv.Close()

	a := NewGenericHTTP(GenericHTTPConfig{Endpoint: srv.URL, MaxRetries: 3})
	results, err := a.Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenericHTTPAdapterDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewGenericHTTP(GenericHTTPConfig{Endpoint: srv.URL, MaxRetries: 3})
	_, err := a.Retrieve(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// A stale token triggers exactly one re-authentication and one retry.
func TestBearerAuthReauthenticatesOnceOn401(t *testing.T) {
	var authCalls int32
	var retrievalCalls int32

	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "access_token": "T1", "token_type": "Bearer"})
	}))
	defer authSrv.Close()

	retrievalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&retrievalCalls, 1)
		if r.Header.Get("Authorization") == "Bearer T0" || n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"results": []map[string]any{
				{"content": "c", "score": 0.5, "meta": map[string]any{"doc_id": "x"}},
			},
		})
	}))
	defer retrievalSrv.Close()

	a := NewBearerAuth(BearerAuthConfig{AuthURL: authSrv.URL, RetrievalURL: retrievalSrv.URL, RepoIDs: []int{28}, Threshold: 0.8})
	a.token = "T0" // simulate a stale pre-existing token
	a.tokenType = "Bearer"

	results, err := a.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&authCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&retrievalCalls))
}

func TestBearerAuthSurfacesErrorWhenRetryAlsoFails(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "access_token": "T1", "token_type": "Bearer"})
	}))
	defer authSrv.Close()

	retrievalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer retrievalSrv.Close()

	a := NewBearerAuth(BearerAuthConfig{AuthURL: authSrv.URL, RetrievalURL: retrievalSrv.URL})
	_, err := a.Retrieve(context.Background(), "query", 5)
	require.Error(t, err)
}

func TestBearerAuthControllerPathFallback(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "access_token": "T1", "token_type": "Bearer"})
	}))
	defer authSrv.Close()

	retrievalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := retrievalResponse{Success: true, Results: []retrievalHit{{Text: "c", Score: 0.5}}}
		resp.Results[0].Meta.DocID = "x"
		resp.Results[0].Meta.FileName = "BookController.java"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer retrievalSrv.Close()

	a := NewBearerAuth(BearerAuthConfig{
		AuthURL: authSrv.URL, RetrievalURL: retrievalSrv.URL,
		ApplyControllerPathFallback: true,
	})
	results, err := a.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/main/java/com/skax/library/controller/BookController.java", results[0].FilePath)
}

func TestBearerAuthFormEncodesCredentials(t *testing.T) {
	var gotUser, gotPass string
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotUser = r.PostFormValue("username")
		gotPass = r.PostFormValue("password")
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "access_token": "T1", "token_type": "Bearer"})
	}))
	defer authSrv.Close()

	retrievalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "results": []map[string]any{}})
	}))
	defer retrievalSrv.Close()

	a := NewBearerAuth(BearerAuthConfig{AuthURL: authSrv.URL, RetrievalURL: retrievalSrv.URL, Username: "alice", Password: "s3cret"})
	_, err := a.Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "s3cret", gotPass)
}

func TestBearerAuthSendsIDsAndPayloadShape(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "access_token": "T1", "token_type": "Bearer"})
	}))
	defer authSrv.Close()

	var gotBody map[string]any
	retrievalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "results": []map[string]any{}})
	}))
	defer retrievalSrv.Close()

	a := NewBearerAuth(BearerAuthConfig{AuthURL: authSrv.URL, RetrievalURL: retrievalSrv.URL, RepoIDs: []int{28}, Threshold: 0.8})
	_, err := a.Retrieve(context.Background(), "find books", 7)
	require.NoError(t, err)

	assert.Equal(t, []any{float64(28)}, gotBody["ids"])
	payload, ok := gotBody["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "find books", payload["query"])
	assert.Equal(t, float64(7), payload["k"])
	assert.Equal(t, 0.8, payload["threshold"])
}
