package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridsearch/codesearch/internal/document"
	"github.com/hybridsearch/codesearch/internal/embed"
	"github.com/hybridsearch/codesearch/internal/lexical"
	"github.com/hybridsearch/codesearch/internal/retrieval"
	"github.com/hybridsearch/codesearch/internal/store"
	"github.com/hybridsearch/codesearch/internal/vectorfacade"
)

func buildTestEngine(t *testing.T) *retrieval.Engine {
	t.Helper()
	embedder := embed.NewStaticEmbedder()

	vecs := vectorfacade.New()
	require.NoError(t, vecs.EnsureCollection(embed.StaticDimensions, "cos"))

	bm25, err := lexical.New(store.DefaultBM25Config(), "")
	require.NoError(t, err)

	ctx := context.Background()
	vec, err := embedder.Embed(ctx, "class TokenParser parses a stream")
	require.NoError(t, err)
	require.NoError(t, vecs.Upsert(ctx, []vectorfacade.Record{
		{ID: "seed-1", Vector: vec, Payload: map[string]any{"content": "class TokenParser parses a stream", "file_path": "a/TokenParser.java"}},
	}))
	seeded := document.EnhancedChunk{Chunk: document.Chunk{ID: "seed-1", Content: "class TokenParser parses a stream"}}
	seeded.EnhancedText = seeded.Content
	require.NoError(t, bm25.Add(ctx, []document.EnhancedChunk{seeded}))

	return retrieval.New(vecs, bm25, embedder, retrieval.EngineConfig{
		FusionMethod:    retrieval.FusionRRF,
		RRFConstant:     60,
		MaxResults:      50,
		DeadlineSeconds: 30,
	})
}

func TestHandleRetrieveReturnsFusedResults(t *testing.T) {
	srv := New(buildTestEngine(t), t.TempDir())

	_, out, err := srv.handleRetrieve(context.Background(), nil, RetrieveInput{Query: "token parser stream", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	require.Equal(t, "seed-1", out.Results[0].ID)
}

func TestHandleRetrieveRejectsEmptyQuery(t *testing.T) {
	srv := New(buildTestEngine(t), t.TempDir())

	_, _, err := srv.handleRetrieve(context.Background(), nil, RetrieveInput{Query: ""})
	require.Error(t, err)
}

func TestHandleEvaluateRejectsMissingDataset(t *testing.T) {
	srv := New(buildTestEngine(t), t.TempDir())

	_, _, err := srv.handleEvaluate(context.Background(), nil, EvaluateInput{DatasetName: ""})
	require.Error(t, err)
}

func TestNewRegistersTools(t *testing.T) {
	srv := New(buildTestEngine(t), t.TempDir())
	require.NotNil(t, srv.MCPServer())
}
