// Package lexical implements the persistent BM25 index over
// EnhancedChunks: metadata-filtered search on top of a store.BM25Index
// engine (explicit Okapi by default; SQLite FTS5 and Bleve are selectable
// via search.bm25_backend), a literal nodes.json + documents_map.bin
// on-disk format, and single-writer persistence guarded by an advisory
// file lock — the same temp-file-then-rename pattern store.HNSWStore uses
// for its graph.
package lexical

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/gofrs/flock"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/document"
	"github.com/hybridsearch/codesearch/internal/store"
)

// Filter is the AND-of-conditions filter DSL shared with the vector facade:
// each entry is a scalar equality or an "any of" membership test. Unknown
// fields never error; they simply fail to match.
type Filter map[string]FilterValue

// FilterValue is either a single equality value or an "any of" set.
type FilterValue struct {
	Value any
	AnyOf []any
}

// Eq builds an equality FilterValue.
func Eq(v any) FilterValue { return FilterValue{Value: v} }

// AnyOf builds a membership FilterValue.
func AnyOf(vs ...any) FilterValue { return FilterValue{AnyOf: vs} }

// Result is a single BM25 search result.
type Result struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
	Source   string
}

// node is the in-memory + on-disk unit: the indexed text plus the raw
// content needed to reconstruct RetrievalResult.Content.
type node struct {
	ID       string
	Text     string
	Content  string
	Metadata map[string]any
}

// Index is the persistent, metadata-filterable BM25 index.
//
// Mutating operations (Add/Update/Delete/DeleteByFilter) hold the write
// lock for the whole rebuild-and-persist cycle; reads take the read lock
// and see a consistent snapshot of the last successful mutation.
type Index struct {
	mu sync.RWMutex

	cfg     store.BM25Config
	backend string
	nodes   map[string]node
	engine  store.BM25Index

	indexPath string
	flock     *flock.Flock
}

// New constructs an Index on the default (explicit Okapi) engine,
// optionally loading a persisted index from indexPath (empty path means
// in-memory only; Save/Load can be called explicitly). A missing
// indexPath on disk is not an error — the index simply starts empty,
// with a warning logged. An unreadable or corrupt persisted index is
// handled the same way.
func New(cfg store.BM25Config, indexPath string) (*Index, error) {
	return NewWithBackend(cfg, indexPath, "")
}

// NewWithBackend constructs an Index on the named store.BM25Index engine:
// "okapi" (or empty, the default), "sqlite", or "bleve". The engine only
// ranks; the node set in nodes.json + documents_map.bin stays the
// canonical record either way, and the engine is rebuilt from it after
// every mutating batch. Persistent engines keep their own files under
// indexPath alongside the node files.
func NewWithBackend(cfg store.BM25Config, indexPath, backend string) (*Index, error) {
	enginePath := ""
	if indexPath != "" && (backend == string(store.BM25BackendSQLite) || backend == string(store.BM25BackendBleve)) {
		if err := os.MkdirAll(indexPath, 0o755); err != nil {
			return nil, aerrors.PersistenceError("create BM25 index directory", err)
		}
		enginePath = filepath.Join(indexPath, "engine")
	}
	engine, err := store.NewBM25IndexWithBackend(enginePath, cfg, backend)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:       cfg,
		backend:   backend,
		nodes:     make(map[string]node),
		engine:    engine,
		indexPath: indexPath,
	}
	if indexPath != "" {
		idx.flock = flock.New(indexPath + ".lock")
		if err := idx.Load(); err != nil {
			var se *aerrors.SearchError
			if !errors.As(err, &se) || se.Code != aerrors.ErrCodePersistenceFailed {
				return nil, err
			}
			slog.Warn("persisted BM25 index unreadable; starting empty", slog.String("error", err.Error()))
			if rerr := idx.rebuildLocked(context.Background()); rerr != nil {
				return nil, aerrors.New(aerrors.ErrCodeIndexFailed, "reset BM25 engine", rerr)
			}
		}
	}
	return idx, nil
}

// Add indexes a batch of EnhancedChunks, replacing any existing node with
// the same ID (add is delete-then-insert per-ID). The retriever is rebuilt
// from scratch once for the whole batch, then the index is
// persisted if a path was configured.
func (idx *Index) Add(ctx context.Context, chunks []document.EnhancedChunk) error {
	idx.mu.Lock()
	for _, c := range chunks {
		idx.nodes[c.ID] = nodeFromChunk(c)
	}
	err := idx.rebuildLocked(ctx)
	idx.mu.Unlock()
	if err != nil {
		return aerrors.New(aerrors.ErrCodeIndexFailed, "rebuild BM25 index", err)
	}
	return idx.maybePersist()
}

// Update replaces a single EnhancedChunk's node (delete-then-insert).
func (idx *Index) Update(ctx context.Context, c document.EnhancedChunk) error {
	return idx.Add(ctx, []document.EnhancedChunk{c})
}

// Delete removes documents by ID and rebuilds the retriever.
func (idx *Index) Delete(ctx context.Context, ids []string) error {
	idx.mu.Lock()
	for _, id := range ids {
		delete(idx.nodes, id)
	}
	err := idx.rebuildLocked(ctx)
	idx.mu.Unlock()
	if err != nil {
		return aerrors.New(aerrors.ErrCodeIndexFailed, "rebuild BM25 index", err)
	}
	return idx.maybePersist()
}

// DeleteByFilter removes every node whose metadata matches filter and
// returns the count removed. Exhaustive: a subsequent search with the same
// filter returns empty.
func (idx *Index) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	idx.mu.Lock()
	var toDelete []string
	for id, n := range idx.nodes {
		if matches(n.Metadata, filter) {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(idx.nodes, id)
	}
	err := idx.rebuildLocked(ctx)
	idx.mu.Unlock()
	if err != nil {
		return 0, aerrors.New(aerrors.ErrCodeIndexFailed, "rebuild BM25 index", err)
	}
	if err := idx.maybePersist(); err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// Search tokenizes query, ranks with the configured BM25 engine, then
// applies the metadata filter. An empty query returns an empty result,
// never an error. A corrupted/closed retriever logs and returns empty
// rather than erroring.
func (idx *Index) Search(ctx context.Context, query string, k int, filter Filter) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if query == "" || k <= 0 {
		return []Result{}, nil
	}

	raw, err := idx.engine.Search(ctx, query, k)
	if err != nil {
		slog.Warn("BM25 search failed; returning empty result", slog.String("error", err.Error()))
		return []Result{}, nil
	}

	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		n, ok := idx.nodes[r.DocID]
		if !ok {
			continue
		}
		if !matches(n.Metadata, filter) {
			continue
		}
		out = append(out, Result{
			ID:       n.ID,
			Content:  n.Content,
			Score:    r.Score,
			Metadata: n.Metadata,
			Source:   "bm25",
		})
	}
	return out, nil
}

// Count returns the number of nodes currently indexed.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// rebuildLocked rebuilds the engine from idx.nodes: every previously
// indexed document is removed, then the full node set is re-indexed, so
// the engine always reflects the last mutating batch exactly. Callers
// must hold idx.mu for writing.
func (idx *Index) rebuildLocked(ctx context.Context) error {
	stale, err := idx.engine.AllIDs()
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := idx.engine.Delete(ctx, stale); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]*store.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, &store.Document{ID: id, Content: idx.nodes[id].Text})
	}
	if len(docs) > 0 {
		if err := idx.engine.Index(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying engine (a no-op for the in-memory Okapi
// engine; SQLite and Bleve close their file handles).
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.engine.Close()
}

func nodeFromChunk(c document.EnhancedChunk) node {
	text := c.EnhancedText
	if text == "" {
		// Invariant: enhanced_text is never empty for a valid Chunk; this
		// is a last-resort fallback if a caller bypassed the Document
		// Builder.
		text = c.Metadata.Name
	}
	return node{
		ID:       c.ID,
		Text:     text,
		Content:  c.Content,
		Metadata: c.PayloadMap(),
	}
}

// matches applies the AND-of-conditions filter DSL. A field absent from the
// node's metadata fails the match; unknown filter fields simply fail to
// match rather than erroring.
func matches(metadata map[string]any, filter Filter) bool {
	for field, cond := range filter {
		v, ok := metadata[field]
		if !ok {
			return false
		}
		if cond.AnyOf != nil {
			found := false
			for _, candidate := range cond.AnyOf {
				if candidate == v {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if v != cond.Value {
			return false
		}
	}
	return true
}

// --- Persistence -----------------------------------------------------------

// diskNode is the on-disk node shape: nodes.json is an array of these.
type diskNode struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func (idx *Index) maybePersist() error {
	if idx.indexPath == "" {
		return nil
	}
	return idx.Save()
}

// Save persists the full node set to indexPath atomically (write to a temp
// file, then rename) under a single-writer advisory lock, matching
// store.HNSWStore's Save pattern. nodes.json holds {id, text, metadata};
// documents_map.bin holds the id -> raw content map (gob-encoded), kept
// separate so large indexes can be inspected without re-parsing content.
func (idx *Index) Save() error {
	if idx.indexPath == "" {
		return aerrors.PersistenceError("no index_path configured", nil)
	}

	if idx.flock != nil {
		if err := idx.flock.Lock(); err != nil {
			return aerrors.PersistenceError("acquire BM25 index lock", err)
		}
		defer idx.flock.Unlock() //nolint:errcheck
	}

	idx.mu.RLock()
	nodesOut := make([]diskNode, 0, len(idx.nodes))
	docs := make(map[string]string, len(idx.nodes))
	ids := make([]string, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := idx.nodes[id]
		nodesOut = append(nodesOut, diskNode{ID: n.ID, Text: n.Text, Metadata: n.Metadata})
		docs[id] = n.Content
	}
	idx.mu.RUnlock()

	if err := os.MkdirAll(idx.indexPath, 0o755); err != nil {
		return aerrors.PersistenceError("create BM25 index directory", err)
	}

	nodesPath := filepath.Join(idx.indexPath, "nodes.json")
	if err := writeAtomicJSON(nodesPath, nodesOut); err != nil {
		return aerrors.PersistenceError("write nodes.json", err)
	}

	docsPath := filepath.Join(idx.indexPath, "documents_map.bin")
	if err := writeAtomicGob(docsPath, docs); err != nil {
		return aerrors.PersistenceError("write documents_map.bin", err)
	}

	return nil
}

// Load reads a persisted index from indexPath, rebuilding the in-memory
// node set and the engine. A missing directory is not an error: the
// index simply starts empty, with a warning logged.
func (idx *Index) Load() error {
	nodesPath := filepath.Join(idx.indexPath, "nodes.json")
	data, err := os.ReadFile(nodesPath)
	if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
		slog.Warn("no persisted BM25 index found; starting empty", slog.String("path", nodesPath))
		// No node set on disk: make sure a persistent engine left over
		// from an earlier run doesn't serve stale documents.
		idx.mu.Lock()
		rerr := idx.rebuildLocked(context.Background())
		idx.mu.Unlock()
		if rerr != nil {
			return aerrors.New(aerrors.ErrCodeIndexFailed, "reset BM25 engine", rerr)
		}
		return nil
	}
	if err != nil {
		return aerrors.PersistenceError("read nodes.json", err)
	}

	var nodesIn []diskNode
	if err := json.Unmarshal(data, &nodesIn); err != nil {
		return aerrors.PersistenceError("parse nodes.json", err)
	}

	docsPath := filepath.Join(idx.indexPath, "documents_map.bin")
	docs := make(map[string]string)
	if docData, err := os.ReadFile(docsPath); err == nil {
		if err := gobDecode(docData, &docs); err != nil {
			return aerrors.PersistenceError("parse documents_map.bin", err)
		}
	} else if !os.IsNotExist(err) {
		return aerrors.PersistenceError("read documents_map.bin", err)
	}

	idx.mu.Lock()
	idx.nodes = make(map[string]node, len(nodesIn))
	for _, n := range nodesIn {
		idx.nodes[n.ID] = node{
			ID:       n.ID,
			Text:     n.Text,
			Content:  docs[n.ID],
			Metadata: n.Metadata,
		}
	}
	err = idx.rebuildLocked(context.Background())
	idx.mu.Unlock()
	if err != nil {
		return aerrors.New(aerrors.ErrCodeIndexFailed, "rebuild BM25 index after load", err)
	}
	return nil
}

func writeAtomicJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomicGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func gobDecode(data []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}
