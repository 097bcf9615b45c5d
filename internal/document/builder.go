package document

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hybridsearch/codesearch/internal/store"
)

var (
	classNameRe  = regexp.MustCompile(`class\s+(\w+)`)
	callReceiver = regexp.MustCompile(`(\w+)\s*\(`)
	annotationRe = regexp.MustCompile(`@(\w+)`)
	javaSuffixRe = regexp.MustCompile(`\w*(Controller|Service|Repository|Component|Entity|DTO|Interface)\b`)
)

// purposePrefixes maps a name prefix to the semantic tag it implies.
// Checked in order; the first match wins.
var purposePrefixes = []struct {
	prefix string
	tag    string
}{
	{"test", "purpose:test"},
	{"get", "purpose:getter"},
	{"set", "purpose:setter"},
	{"is", "purpose:predicate"},
	{"has", "purpose:predicate"},
}

// Builder turns Chunks into EnhancedChunks: it adds a prose context header,
// extracts search keywords and semantic tags, derives structural
// relationships, and constructs the BM25-boosted enhanced_text.
type Builder struct{}

// NewBuilder constructs a Document Builder. It holds no configuration or
// mutable state, so a single instance is safe for concurrent reuse.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build enriches a single Chunk. It never fails: a Chunk with minimal
// metadata still produces a valid, non-empty EnhancedText.
func (b *Builder) Build(c Chunk) EnhancedChunk {
	out := EnhancedChunk{Chunk: c}
	out.EnhancedContent = buildEnhancedContent(c)
	out.SearchKeywords = extractSearchKeywords(c)
	out.SemanticTags = generateSemanticTags(c.Metadata)
	out.Relationships = analyzeRelationships(c.Metadata)
	out.EnhancedText = buildEnhancedText(c, out.SearchKeywords)
	return out
}

// BuildAll enriches a batch of Chunks, preserving order.
func (b *Builder) BuildAll(chunks []Chunk) []EnhancedChunk {
	out := make([]EnhancedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = b.Build(c)
	}
	return out
}

func buildEnhancedContent(c Chunk) string {
	m := c.Metadata
	var parts []string

	parts = append(parts, fmt.Sprintf("# %s: %s", title(m.CodeType), m.Name))
	parts = append(parts, fmt.Sprintf("File: %s", m.FilePath))
	parts = append(parts, fmt.Sprintf("Language: %s", m.Language))
	parts = append(parts, fmt.Sprintf("Lines: %d-%d", m.LineStart, m.LineEnd))

	if m.ParentClass != "" {
		parts = append(parts, fmt.Sprintf("Parent Class: %s", m.ParentClass))
	}
	if m.Namespace != "" {
		parts = append(parts, fmt.Sprintf("Namespace: %s", m.Namespace))
	}
	if m.Extends != "" {
		parts = append(parts, fmt.Sprintf("Extends: %s", m.Extends))
	}
	if len(m.Implements) > 0 {
		parts = append(parts, fmt.Sprintf("Implements: %s", strings.Join(m.Implements, ", ")))
	}
	if len(m.Parameters) > 0 {
		params := make([]string, len(m.Parameters))
		for i, p := range m.Parameters {
			t := p.Type
			if t == "" {
				t = "unknown"
			}
			params[i] = fmt.Sprintf("%s: %s", p.Name, t)
		}
		parts = append(parts, fmt.Sprintf("Parameters: %s", strings.Join(params, ", ")))
	}
	if m.ReturnType != "" {
		parts = append(parts, fmt.Sprintf("Returns: %s", m.ReturnType))
	}
	if len(m.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("Keywords: %s", strings.Join(m.Keywords, ", ")))
	}

	parts = append(parts, "", "## Code:", c.Content)

	return strings.Join(parts, "\n")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// extractSearchKeywords is the deduplicated union of name tokens, types,
// annotations, modifiers, and namespace parts.
func extractSearchKeywords(c Chunk) []string {
	m := c.Metadata
	set := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}

	add(m.Name)
	for _, k := range m.Keywords {
		add(k)
	}
	add(m.ParentClass)
	if m.Namespace != "" {
		for _, part := range strings.Split(m.Namespace, ".") {
			add(part)
		}
	}
	add(m.Extends)
	for _, impl := range m.Implements {
		add(impl)
	}
	for _, p := range m.Parameters {
		add(p.Type)
	}
	add(m.ReturnType)
	for _, a := range m.Annotations {
		add(strings.TrimPrefix(a, "@"))
	}
	for _, mod := range m.Modifiers {
		add(mod)
	}

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

func hasModifier(modifiers []string, want string) bool {
	for _, m := range modifiers {
		if strings.EqualFold(m, want) {
			return true
		}
	}
	return false
}

func generateSemanticTags(m Metadata) []string {
	var tags []string

	tags = append(tags, "type:"+m.CodeType, "lang:"+m.Language)

	switch {
	case hasModifier(m.Modifiers, "public"):
		tags = append(tags, "access:public")
	case hasModifier(m.Modifiers, "private"):
		tags = append(tags, "access:private")
	case hasModifier(m.Modifiers, "protected"):
		tags = append(tags, "access:protected")
	}

	if hasModifier(m.Modifiers, "static") {
		tags = append(tags, "scope:static")
	} else {
		tags = append(tags, "scope:instance")
	}

	if m.Extends != "" {
		tags = append(tags, "pattern:inheritance")
	}
	if len(m.Implements) > 0 {
		tags = append(tags, "pattern:implementation")
	}

	lowerName := strings.ToLower(m.Name)
	for _, p := range purposePrefixes {
		if strings.HasPrefix(lowerName, p.prefix) {
			tags = append(tags, p.tag)
			break
		}
	}

	return tags
}

func analyzeRelationships(m Metadata) Relationships {
	r := Relationships{
		Parent:     m.ParentClass,
		Extends:    m.Extends,
		Implements: m.Implements,
		Namespace:  m.Namespace,
	}

	var deps []string
	for _, p := range m.Parameters {
		if p.Type != "" {
			deps = append(deps, p.Type)
		}
	}
	if m.ReturnType != "" {
		deps = append(deps, m.ReturnType)
	}
	r.Dependencies = deps

	return r
}

// buildEnhancedText constructs the BM25-indexed string: original
// content, case/underscore-preprocessed content, important keywords
// (repeated twice for term-frequency gain), then metadata-derived terms
// (name repeated three times, search keywords, parameter types, return
// type, extends, implements, semantic tags).
func buildEnhancedText(c Chunk, searchKeywords []string) string {
	m := c.Metadata
	var parts []string

	parts = append(parts, c.Content)
	parts = append(parts, strings.Join(store.TokenizeCode(c.Content), " "))

	important := extractImportantKeywords(c.Content)
	for i := 0; i < 2; i++ {
		parts = append(parts, strings.Join(important, " "))
	}

	for i := 0; i < 3; i++ {
		parts = append(parts, m.Name)
	}
	parts = append(parts, strings.Join(searchKeywords, " "))
	for _, p := range m.Parameters {
		parts = append(parts, p.Type)
	}
	parts = append(parts, m.ReturnType, m.Extends)
	parts = append(parts, m.Implements...)
	parts = append(parts, generateSemanticTags(m)...)

	text := strings.Join(filterEmpty(parts), " ")
	if strings.TrimSpace(text) == "" {
		// Invariant: enhanced_text is never empty for a valid Chunk.
		return m.Name
	}
	return text
}

func filterEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractImportantKeywords pulls class names, call receivers, annotations,
// and Controller/Service/Repository/Component/Entity/DTO/Interface-suffixed
// identifiers out of raw source text.
func extractImportantKeywords(content string) []string {
	set := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}

	for _, m := range classNameRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range callReceiver.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range annotationRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range javaSuffixRe.FindAllString(content, -1) {
		add(m)
	}

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}
