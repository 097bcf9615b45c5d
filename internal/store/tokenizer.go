package store

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/go-porterstemmer"
)

// tokenRegex matches alphanumeric sequences (including underscores for initial split).
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// fallbackTokenRegex is the failure-mode extractor: plain word boundaries,
// no case/underscore awareness.
var fallbackTokenRegex = regexp.MustCompile(`\b\w+\b`)

const maxFallbackTokens = 50

// codeStopWords is the fixed code-specific stoplist. General English
// stopwords live alongside it in defaultStopWords; words that carry
// retrieval signal in source code (class, function, def, interface,
// controller, ...) are deliberately absent from both lists.
var codeStopWords = []string{
	"public", "private", "protected", "static", "final", "void",
	"extends", "implements", "import", "package",
	"if", "else", "for", "while", "try", "catch", "throw", "throws",
	"new", "this", "super", "return",
	"const", "let", "var", "async", "await",
	"true", "false", "null", "undefined", "none",
}

// generalStopWords is a minimal general-English stoplist. It intentionally
// excludes words that double as code vocabulary.
var generalStopWords = []string{
	"a", "an", "the", "and", "or", "but", "of", "in", "on", "at", "to",
	"is", "are", "was", "were", "be", "been", "being",
	"it", "its", "as", "by", "with", "from", "that", "this", "these", "those",
}

// DefaultStopWords returns the combined general + code stoplist used by the
// tokenizer's default configuration.
func DefaultStopWords() []string {
	combined := make([]string, 0, len(generalStopWords)+len(codeStopWords))
	combined = append(combined, generalStopWords...)
	combined = append(combined, codeStopWords...)
	return combined
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithStemming enables Porter stemming of surviving tokens. Off by default.
func WithStemming(enabled bool) TokenizerOption {
	return func(t *Tokenizer) { t.stem = enabled }
}

// WithStopWords overrides the stoplist used during filtering.
func WithStopWords(words []string) TokenizerOption {
	return func(t *Tokenizer) { t.stopWords = BuildStopWordMap(words) }
}

// Tokenizer deterministically maps source text to a lowercase token
// sequence suitable for lexical indexing. It holds no mutable state after
// construction, so a single instance is safe for concurrent reuse.
type Tokenizer struct {
	stopWords map[string]struct{}
	stem      bool
}

// NewTokenizer builds a Tokenizer with the default stoplist and stemming off.
func NewTokenizer(opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{
		stopWords: BuildStopWordMap(DefaultStopWords()),
		stem:      false,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize runs the full code-aware pipeline: case splitting, underscore
// splitting, non-alphanumeric removal, whitespace collapse, lowercasing,
// stopword filtering, length filtering, and optional stemming. It never
// panics: any unexpected input falls back to a plain word-boundary
// extraction truncated to 50 tokens.
func (t *Tokenizer) Tokenize(text string) (tokens []string) {
	defer func() {
		if r := recover(); r != nil {
			tokens = t.fallback(text)
		}
	}()

	base := TokenizeCode(text)
	out := make([]string, 0, len(base))

	for _, lower := range base {
		if _, stop := t.stopWords[lower]; stop {
			continue
		}
		if t.stem {
			lower = porterstemmer.StemString(lower)
		}
		out = append(out, lower)
	}

	return out
}

func (t *Tokenizer) fallback(text string) []string {
	words := fallbackTokenRegex.FindAllString(text, -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) < 2 {
			continue
		}
		if _, stop := t.stopWords[lower]; stop {
			continue
		}
		out = append(out, lower)
		if len(out) >= maxFallbackTokens {
			break
		}
	}
	return out
}

// TokenizeCode splits text with code-aware rules: case splitting,
// snake_case splitting, and length filtering. It does not apply stopword
// filtering or stemming. Callers that need the full pipeline
// (stopwords, optional stemming) should use a *Tokenizer, or call
// FilterStopWords themselves with their own stoplist, as the BM25 backends
// in this package do.
func TokenizeCode(text string) []string {
	var tokens []string

	words := tokenRegex.FindAllString(text, -1)
	for _, word := range words {
		for _, t := range SplitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitCodeToken splits camelCase and snake_case identifiers.
func SplitCodeToken(token string) []string {
	var result []string

	// Handle snake_case first
	if strings.Contains(token, "_") {
		parts := strings.Split(token, "_")
		for _, part := range parts {
			if part != "" {
				// Recursively handle camelCase in each part
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}

	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	// Return empty slice, not nil, for consistent API behavior
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split if previous is lowercase OR next is lowercase (handles acronyms)
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if _, isStop := stopWords[lower]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
