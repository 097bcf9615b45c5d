package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BM25Backend represents the BM25 index backend type.
type BM25Backend string

const (
	// BM25BackendOkapi is the default: an explicit in-process Okapi BM25
	// implementation that exposes k1/b directly rather than delegating
	// scoring to an embedded search engine.
	BM25BackendOkapi BM25Backend = "okapi"

	// BM25BackendSQLite uses SQLite FTS5 for BM25 search.
	// Enables concurrent multi-process access via WAL mode.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve uses Bleve v2 for BM25 search.
	// Has exclusive file locking via BoltDB - single process only.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25IndexWithBackend creates a BM25Index using the specified backend.
// The path should be the base path without extension - the extension will be
// added based on the backend type (.okapi for Okapi, .db for SQLite,
// .bleve for Bleve).
//
// backend options:
//   - "okapi" (default): explicit Okapi scoring, in-process
//   - "sqlite": SQLite FTS5 with WAL mode for concurrent access
//   - "bleve": Bleve v2 with BoltDB (single-process only)
//
// If path is empty, creates an in-memory index for testing.
func NewBM25IndexWithBackend(basePath string, config BM25Config, backend string) (BM25Index, error) {
	switch backend {
	case string(BM25BackendOkapi), "":
		idx, err := NewOkapiBM25Index(config)
		if err != nil {
			return nil, err
		}
		if basePath != "" {
			path := basePath + ".okapi"
			if dirExists(path) {
				if err := idx.Load(path); err != nil {
					return nil, fmt.Errorf("load okapi index: %w", err)
				}
			}
		}
		return idx, nil

	case string(BM25BackendSQLite):
		// SQLite FTS5 (concurrent access, pure Go)
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteBM25Index(path, config)

	case string(BM25BackendBleve):
		// Bleve backend (single process due to BoltDB lock)
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown BM25 backend: %s (valid options: okapi, sqlite, bleve)", backend)
	}
}

// DetectBM25Backend detects which backend an existing index uses based on
// file existence. Returns the detected backend or an empty string if no
// index exists, so a reopened data directory keeps the backend it was
// built with regardless of the current configuration.
func DetectBM25Backend(basePath string) BM25Backend {
	// Check for Okapi first (the default format)
	okapiPath := basePath + ".okapi"
	if dirExists(okapiPath) {
		return BM25BackendOkapi
	}

	// Check for SQLite
	sqlitePath := basePath + ".db"
	if fileExists(sqlitePath) {
		return BM25BackendSQLite
	}

	// Check for Bleve
	blevePath := basePath + ".bleve"
	if dirExists(blevePath) {
		return BM25BackendBleve
	}

	// No existing index
	return ""
}

// GetBM25IndexPath returns the full path to the BM25 index file/directory
// based on the backend type.
func GetBM25IndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "bm25")
	switch backend {
	case string(BM25BackendSQLite):
		return basePath + ".db"
	case string(BM25BackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".okapi"
	}
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
