package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridsearch/codesearch/internal/document"
	"github.com/hybridsearch/codesearch/internal/store"
)

func chunk(id, content, codeType, lang string) document.EnhancedChunk {
	c := document.EnhancedChunk{
		Chunk: document.Chunk{
			ID:      id,
			Content: content,
			Metadata: document.Metadata{
				FilePath: "src/" + id + ".py",
				Language: lang,
				CodeType: codeType,
				Name:     id,
			},
		},
	}
	c.EnhancedText = content
	return c
}

func TestAddAndSearch(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)

	err = idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("a", "def parse_tokens(input): return tokens", "function", "python"),
		chunk("b", "class TokenParser: def parse(self): pass", "class", "python"),
		chunk("c", "def render_html(doc): return html", "function", "python"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(context.Background(), "parse tokens", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.ID] = true
		assert.Equal(t, "bm25", r.Source)
	}
	assert.True(t, ids["a"] || ids["b"])
}

func TestSearchWithMetadataFilter(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)

	require.NoError(t, idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("fn1", "parse tokens from input stream", "function", "python"),
		chunk("cls1", "parse tokens class wrapper", "class", "java"),
	}))

	results, err := idx.Search(context.Background(), "parse tokens", 10, Filter{
		"code_type": Eq("function"),
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "fn1", r.ID)
	}

	results, err = idx.Search(context.Background(), "parse tokens", 10, Filter{
		"language": AnyOf("java", "javascript"),
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "cls1", r.ID)
	}
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)
	results, err := idx.Search(context.Background(), "", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateReplacesNode(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("a", "old content about widgets", "function", "python"),
	}))
	require.NoError(t, idx.Update(context.Background(), chunk("a", "new content about gadgets", "function", "python")))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), "gadgets", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new content about gadgets", results[0].Content)
}

func TestDeleteRemovesNode(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("a", "alpha content", "function", "python"),
		chunk("b", "beta content", "function", "python"),
	}))
	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), "alpha", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteByFilterIsExhaustive(t *testing.T) {
	idx, err := New(store.DefaultBM25Config(), "")
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("a", "alpha content", "function", "python"),
		chunk("b", "beta content", "class", "python"),
		chunk("c", "gamma content", "function", "java"),
	}))

	n, err := idx.DeleteByFilter(context.Background(), Filter{"code_type": Eq("function")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), "content", 10, Filter{"code_type": Eq("function")})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25idx")

	idx, err := New(store.DefaultBM25Config(), path)
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []document.EnhancedChunk{
		chunk("a", "persisted content about trees", "function", "python"),
		chunk("b", "persisted content about graphs", "class", "java"),
	}))

	reloaded, err := New(store.DefaultBM25Config(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Count())

	results, err := reloaded.Search(context.Background(), "trees", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "function", results[0].Metadata["code_type"])
}

func TestLoadMissingPathStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	idx, err := New(store.DefaultBM25Config(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Count())
}

func TestMatchesUnknownFieldFailsToMatch(t *testing.T) {
	assert.False(t, matches(map[string]any{"code_type": "function"}, Filter{"language": Eq("python")}))
	assert.True(t, matches(map[string]any{"code_type": "function"}, Filter{}))
}

// Every selectable engine must serve the same contract: indexed chunks
// are findable by their content, delete-by-filter is exhaustive, and a reopened
// index sees the persisted node set.
func TestBackendsServeSameContract(t *testing.T) {
	for _, backend := range []string{"okapi", "sqlite", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "bm25")
			idx, err := NewWithBackend(store.DefaultBM25Config(), dir, backend)
			require.NoError(t, err)

			err = idx.Add(context.Background(), []document.EnhancedChunk{
				chunk("a", "def parse_tokens(input): return tokens", "function", "python"),
				chunk("b", "class TokenParser: def parse(self): pass", "class", "python"),
			})
			require.NoError(t, err)

			results, err := idx.Search(context.Background(), "parse tokens", 10, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, results)

			n, err := idx.DeleteByFilter(context.Background(), Filter{"file_path": Eq("src/a.py")})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			results, err = idx.Search(context.Background(), "parse", 10, Filter{"file_path": Eq("src/a.py")})
			require.NoError(t, err)
			assert.Empty(t, results)

			require.NoError(t, idx.Close())

			reopened, err := NewWithBackend(store.DefaultBM25Config(), dir, backend)
			require.NoError(t, err)
			defer reopened.Close()
			assert.Equal(t, 1, reopened.Count())
		})
	}
}

func TestNewWithBackendRejectsUnknownEngine(t *testing.T) {
	_, err := NewWithBackend(store.DefaultBM25Config(), "", "lucene")
	require.Error(t, err)
}
