package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChunk() Chunk {
	return Chunk{
		ID:      "chunk-1",
		Content: `public class UserController { public User getUserById(String id) { return repo.findById(id); } }`,
		Metadata: Metadata{
			FilePath:    "src/main/java/com/skax/library/controller/UserController.java",
			Language:    "java",
			CodeType:    "method",
			Name:        "getUserById",
			LineStart:   10,
			LineEnd:     14,
			ParentClass: "UserController",
			Modifiers:   []string{"public"},
			Annotations: []string{"@GetMapping"},
			Parameters:  []Parameter{{Name: "id", Type: "String"}},
			ReturnType:  "User",
			Implements:  []string{"Serializable"},
			Extends:     "BaseController",
			Keywords:    []string{"lookup"},
		},
	}
}

func TestBuild_EnhancedContentIncludesHeaderAndCode(t *testing.T) {
	b := NewBuilder()
	out := b.Build(sampleChunk())

	assert.Contains(t, out.EnhancedContent, "# Method: getUserById")
	assert.Contains(t, out.EnhancedContent, "File: src/main/java/com/skax/library/controller/UserController.java")
	assert.Contains(t, out.EnhancedContent, "Parent Class: UserController")
	assert.Contains(t, out.EnhancedContent, "Returns: User")
	assert.Contains(t, out.EnhancedContent, "## Code:")
	assert.Contains(t, out.EnhancedContent, sampleChunk().Content)
}

func TestBuild_SearchKeywordsIsDeduplicatedUnion(t *testing.T) {
	b := NewBuilder()
	out := b.Build(sampleChunk())

	for _, want := range []string{"getUserById", "lookup", "UserController", "String", "User", "Serializable", "BaseController", "GetMapping", "public"} {
		assert.Contains(t, out.SearchKeywords, want)
	}

	// Deduplicated: no keyword appears twice.
	seen := make(map[string]int)
	for _, k := range out.SearchKeywords {
		seen[k]++
	}
	for k, count := range seen {
		assert.Equal(t, 1, count, "keyword %q should appear exactly once", k)
	}
}

func TestBuild_SemanticTags(t *testing.T) {
	b := NewBuilder()
	out := b.Build(sampleChunk())

	assert.Contains(t, out.SemanticTags, "type:method")
	assert.Contains(t, out.SemanticTags, "lang:java")
	assert.Contains(t, out.SemanticTags, "access:public")
	assert.Contains(t, out.SemanticTags, "scope:instance")
	assert.Contains(t, out.SemanticTags, "pattern:inheritance")
	assert.Contains(t, out.SemanticTags, "pattern:implementation")
	assert.Contains(t, out.SemanticTags, "purpose:getter")
}

func TestBuild_Relationships(t *testing.T) {
	b := NewBuilder()
	out := b.Build(sampleChunk())

	require.Equal(t, "UserController", out.Relationships.Parent)
	require.Equal(t, "BaseController", out.Relationships.Extends)
	assert.Contains(t, out.Relationships.Implements, "Serializable")
	assert.Contains(t, out.Relationships.Dependencies, "String")
	assert.Contains(t, out.Relationships.Dependencies, "User")
}

func TestBuild_EnhancedTextBoostsNameAndKeywords(t *testing.T) {
	b := NewBuilder()
	out := b.Build(sampleChunk())

	nameCount := strings.Count(out.EnhancedText, "getUserById")
	assert.GreaterOrEqual(t, nameCount, 3, "name should be repeated at least 3 times for BM25 gain boost")
	assert.Contains(t, out.EnhancedText, "UserController")
}

func TestBuild_NeverEmptyEnhancedText(t *testing.T) {
	b := NewBuilder()
	c := Chunk{ID: "x", Content: "", Metadata: Metadata{Name: "x"}}
	out := b.Build(c)

	assert.NotEmpty(t, out.EnhancedText)
}

func TestBuildAll_PreservesOrder(t *testing.T) {
	b := NewBuilder()
	chunks := []Chunk{
		{ID: "a", Content: "x", Metadata: Metadata{Name: "a"}},
		{ID: "b", Content: "y", Metadata: Metadata{Name: "b"}},
	}

	out := b.BuildAll(chunks)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}
