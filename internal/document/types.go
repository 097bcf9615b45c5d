// Package document builds enriched, retrievable records from pre-chunked
// source code fragments. It owns the Chunk/EnhancedChunk data model and the
// keyword/tag extraction shared by the BM25 index and the vector facade.
package document

// Parameter is a single function/method parameter.
type Parameter struct {
	Name string
	Type string
}

// Metadata describes a code fragment's structural context. Fields beyond
// FilePath/Language/CodeType/Name/LineStart/LineEnd are optional and empty
// when not applicable to the fragment's language or kind.
type Metadata struct {
	FilePath    string
	Language    string // python, java, javascript, typescript
	CodeType    string // class, method, function, interface, enum, module
	Name        string
	LineStart   int
	LineEnd     int
	Namespace   string
	ParentClass string
	Modifiers   []string
	Annotations []string
	Parameters  []Parameter
	ReturnType  string
	Extends     string
	Implements  []string
	Keywords    []string
}

// Chunk is the immutable input unit: a single code fragment plus its
// structural metadata.
type Chunk struct {
	ID       string
	Content  string
	Metadata Metadata
}

// EnhancedChunk is the Document Builder's output: a Chunk enriched with the
// derived fields the retrieval core and BM25 index consume.
type EnhancedChunk struct {
	Chunk

	// EnhancedContent is a prose context header followed by the raw code,
	// used as the vector embedding input.
	EnhancedContent string

	// SearchKeywords is the deduplicated union of name tokens, types,
	// annotations, modifiers, and namespace parts.
	SearchKeywords []string

	// SemanticTags are derived labels such as "type:class", "lang:java",
	// "access:public", "scope:static", "purpose:getter".
	SemanticTags []string

	// Relationships captures structural links to other fragments.
	Relationships Relationships

	// EnhancedText is the BM25-indexed string: content, preprocessed
	// content, and boosted keyword repeats that raise term frequency for
	// names, annotations, and structural keywords.
	EnhancedText string
}

// Relationships captures a fragment's structural links.
type Relationships struct {
	Parent       string
	Extends      string
	Implements   []string
	Dependencies []string
	Namespace    string
}

// PayloadMap flattens an EnhancedChunk's metadata into the single
// representation the BM25 index's node metadata and the vector facade's
// record payload both read from — one canonical ChunkMeta shape instead of
// parallel dictionaries maintained per store.
func (c EnhancedChunk) PayloadMap() map[string]any {
	m := c.Metadata
	payload := map[string]any{
		"id":         c.ID,
		"content":    c.Content,
		"file_path":  m.FilePath,
		"language":   m.Language,
		"code_type":  m.CodeType,
		"name":       m.Name,
		"line_start": m.LineStart,
		"line_end":   m.LineEnd,
	}
	if m.Namespace != "" {
		payload["namespace"] = m.Namespace
	}
	if m.ParentClass != "" {
		payload["parent_class"] = m.ParentClass
	}
	if len(m.Modifiers) > 0 {
		payload["modifiers"] = m.Modifiers
	}
	if len(m.Annotations) > 0 {
		payload["annotations"] = m.Annotations
	}
	if m.ReturnType != "" {
		payload["return_type"] = m.ReturnType
	}
	if m.Extends != "" {
		payload["extends"] = m.Extends
	}
	if len(m.Implements) > 0 {
		payload["implements"] = m.Implements
	}
	if len(c.SearchKeywords) > 0 {
		payload["search_keywords"] = c.SearchKeywords
	}
	if len(c.SemanticTags) > 0 {
		payload["semantic_tags"] = c.SemanticTags
	}
	return payload
}
