// Package chunker discovers source files under a project root and turns
// each into a document.Chunk, the raw input unit the Document Builder
// enriches before it reaches the BM25 index and the vector facade.
package chunker

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hybridsearch/codesearch/internal/document"
)

// DefaultMaxFileSize skips files larger than this to keep a single chunk's
// embedding/BM25 cost bounded.
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// defaultSkipDirs are never descended into, independent of Options.Exclude.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".codesearch":     true,
}

var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".sql":   "sql",
	".sh":    "shell",
}

// Options configures a single walk.
type Options struct {
	// Include restricts the walk to these relative path prefixes. Empty
	// means the whole tree.
	Include []string
	// Exclude lists patterns; any path matching one is skipped. A pattern
	// without '*' matches as a substring of the relative path, "**/dir/**"
	// matches a path with dir as one of its segments, and any other pattern
	// (minus a leading "**/") is matched against the base name with
	// filepath.Match.
	Exclude []string
	// MaxFileSize overrides DefaultMaxFileSize when positive.
	MaxFileSize int64
}

// Chunk discovers indexable files under root and returns one Chunk per
// file that matches a known language and passes the size/exclude filters.
// Each line range spans the whole file; finer-grained, language-aware
// splitting is a natural follow-up once a parser is wired in.
func Chunk(root string, opts Options) ([]document.Chunk, error) {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var chunks []document.Chunk
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && (defaultSkipDirs[d.Name()] || matchesAny(rel, opts.Exclude)) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(rel, opts.Exclude) {
			return nil
		}
		if len(opts.Include) > 0 && !underAnyPrefix(rel, opts.Include) {
			return nil
		}

		lang := languageByExt[strings.ToLower(filepath.Ext(path))]
		if lang == "" {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if bytes.ContainsRune(content[:min(len(content), 8000)], 0) {
			return nil // binary-ish file, skip
		}

		chunks = append(chunks, document.Chunk{
			ID:      rel,
			Content: string(content),
			Metadata: document.Metadata{
				FilePath:  filepath.ToSlash(rel),
				Language:  lang,
				CodeType:  "file",
				Name:      filepath.Base(rel),
				LineStart: 1,
				LineEnd:   countLines(content),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func matchesAny(rel string, patterns []string) bool {
	segments := "/" + filepath.ToSlash(rel) + "/"
	for _, p := range patterns {
		switch {
		case p == "":
		case !strings.Contains(p, "*"):
			if strings.Contains(rel, p) {
				return true
			}
		case len(p) > 6 && strings.HasPrefix(p, "**/") && strings.HasSuffix(p, "/**"):
			if strings.Contains(segments, "/"+p[3:len(p)-3]+"/") {
				return true
			}
		default:
			if ok, _ := filepath.Match(strings.TrimPrefix(p, "**/"), filepath.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}

func underAnyPrefix(rel string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" || strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
