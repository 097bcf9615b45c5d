// Package vectorfacade provides a narrow façade over a vector store,
// exposing collection lifecycle, upsert, filtered search, delete-by-filter,
// count, and scroll — independent of the particular vector backend behind
// it.
package vectorfacade

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/store"
)

// init registers the concrete types that appear in a Record's payload
// map[string]any so gob can encode/decode them across the interface
// boundary (the payload maps hold strings, ints, and string slices).
func init() {
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]string{})
	gob.Register([]int{})
}

const (
	defaultOversample = 3
	minOversample     = 50
	searchCacheSize   = 256
)

// Filter is an AND-of-conditions filter expression. Each entry is either a
// scalar equality (Value set, AnyOf nil) or a membership test (AnyOf set).
// Unknown fields never error — they simply match nothing.
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

// Record is a single vector + payload pair to upsert.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Result is a single search/scroll result with its similarity score.
type Result struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Facade wraps a store.HNSWStore (the pack's verified, pure-Go vector
// store) with collection semantics, payload storage, filter translation,
// and oversample-then-post-filter search.
type Facade struct {
	mu      sync.RWMutex
	backend *store.HNSWStore
	config  store.VectorStoreConfig
	payload map[string]map[string]any

	cache *lru.Cache[string, []Result]
}

// New constructs a Facade with no collection created yet.
func New() *Facade {
	cache, _ := lru.New[string, []Result](searchCacheSize)
	return &Facade{
		payload: make(map[string]map[string]any),
		cache:   cache,
	}
}

// EnsureCollection creates the backing store with the given dimension and
// metric if it does not already exist. It is idempotent and never
// truncates an existing collection.
func (f *Facade) EnsureCollection(dim int, metric string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.backend != nil {
		return nil
	}

	if metric == "" {
		metric = "cos"
	}

	cfg := store.VectorStoreConfig{
		Dimensions: dim,
		Metric:     metric,
	}
	backend, err := store.NewHNSWStore(cfg)
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	f.backend = backend
	f.config = cfg
	return nil
}

// Upsert inserts or replaces vector records, storing their payload
// alongside so filters and scroll can reconstruct results.
func (f *Facade) Upsert(ctx context.Context, records []Record) error {
	f.mu.Lock()
	if f.backend == nil {
		f.mu.Unlock()
		return fmt.Errorf("collection not initialized: call EnsureCollection first")
	}
	backend := f.backend
	f.mu.Unlock()

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.ID
		vectors[i] = r.Vector
	}

	if err := backend.Add(ctx, ids, vectors); err != nil {
		return err
	}

	f.mu.Lock()
	for _, r := range records {
		f.payload[r.ID] = r.Payload
	}
	f.cache.Purge()
	f.mu.Unlock()

	return nil
}

// Search requests k*oversample (oversample default 3, minimum 50) nearest
// neighbors, applies the filter, then truncates to k. Oversampling keeps
// recall stable when filters are strict, since the backend selects nearest
// neighbors before any payload filter is applied.
func (f *Facade) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	f.mu.RLock()
	backend := f.backend
	f.mu.RUnlock()

	if backend == nil {
		return nil, fmt.Errorf("collection not initialized: call EnsureCollection first")
	}
	if k <= 0 {
		return []Result{}, nil
	}

	cacheKey := searchCacheKey(query, k, filter)
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached, nil
	}

	oversampled := k * defaultOversample
	if oversampled < minOversample {
		oversampled = minOversample
	}

	raw, err := backend.Search(ctx, query, oversampled)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		payload := f.payload[r.ID]
		if !matches(payload, filter) {
			continue
		}
		out = append(out, Result{ID: r.ID, Score: r.Score, Payload: payload})
	}
	f.mu.RUnlock()

	if len(out) > k {
		out = out[:k]
	}

	f.cache.Add(cacheKey, out)
	return out, nil
}

// searchCacheKey derives a cache key from the query vector, k, and filter.
// Collisions across distinct queries are acceptable only in the sense that
// a cache hit always re-derives from fields the key commits to; upserts and
// deletes purge the whole cache rather than trying to invalidate narrowly.
func searchCacheKey(query []float32, k int, filter Filter) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(k))
	b.WriteByte('|')
	for _, v := range query {
		b.WriteString(strconv.FormatFloat(float64(v), 'g', 6, 32))
		b.WriteByte(',')
	}
	b.WriteByte('|')

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		cond := filter[field]
		b.WriteString(field)
		b.WriteByte('=')
		if cond.AnyOf != nil {
			b.WriteString(strconv.Itoa(len(cond.AnyOf)))
		} else {
			b.WriteString(strconv.FormatInt(int64(len(fmt.Sprint(cond.Value))), 10))
			b.WriteString(fmt.Sprint(cond.Value))
		}
		b.WriteByte(';')
	}
	return b.String()
}

// DeleteByFilter removes every record whose payload matches filter and
// returns the count removed.
func (f *Facade) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.backend == nil {
		return 0, fmt.Errorf("collection not initialized: call EnsureCollection first")
	}

	var toDelete []string
	for id, payload := range f.payload {
		if matches(payload, filter) {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	if err := f.backend.Delete(ctx, toDelete); err != nil {
		return 0, err
	}
	for _, id := range toDelete {
		delete(f.payload, id)
	}
	f.cache.Purge()

	return len(toDelete), nil
}

// Count returns the number of records matching filter (or the whole
// collection's record count when filter is empty).
func (f *Facade) Count(filter Filter) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(filter) == 0 {
		return len(f.payload)
	}
	n := 0
	for _, payload := range f.payload {
		if matches(payload, filter) {
			n++
		}
	}
	return n
}

// Scroll returns a deterministically ordered page of records matching
// filter, for bulk export/consistency checks.
func (f *Facade) Scroll(filter Filter, offset, limit int) []Result {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.payload))
	for id, payload := range f.payload {
		if matches(payload, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []Result{}
	}
	end := offset + limit
	if limit <= 0 || end > len(ids) {
		end = len(ids)
	}

	out := make([]Result, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, Result{ID: id, Payload: f.payload[id]})
	}
	return out
}

// Save persists the HNSW graph and the id -> payload map to two files
// under dir, mirroring the lexical index's atomic nodes.json /
// documents_map.bin split so a collection survives process restarts.
func (f *Facade) Save(dir string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.backend == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aerrors.PersistenceError("create vector index directory", err)
	}
	if err := f.backend.Save(filepath.Join(dir, "vectors.hnsw")); err != nil {
		return aerrors.PersistenceError("save vector graph", err)
	}

	payloadPath := filepath.Join(dir, "payload.bin")
	tmp := payloadPath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return aerrors.PersistenceError("create payload file", err)
	}
	if err := gob.NewEncoder(file).Encode(f.payload); err != nil {
		file.Close()
		os.Remove(tmp)
		return aerrors.PersistenceError("encode payload map", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return aerrors.PersistenceError("close payload file", err)
	}
	if err := os.Rename(tmp, payloadPath); err != nil {
		return aerrors.PersistenceError("rename payload file", err)
	}
	return nil
}

// Load restores a collection previously written by Save. dim and metric
// must match the collection that was saved; a missing directory is not an
// error, the facade simply stays empty until EnsureCollection is called.
func (f *Facade) Load(dir string, dim int, metric string) error {
	vectorPath := filepath.Join(dir, "vectors.hnsw")
	if _, err := os.Stat(vectorPath); os.IsNotExist(err) {
		return nil
	}

	if err := f.EnsureCollection(dim, metric); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.backend.Load(vectorPath); err != nil {
		return aerrors.PersistenceError("load vector graph", err)
	}

	payloadPath := filepath.Join(dir, "payload.bin")
	data, err := os.ReadFile(payloadPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return aerrors.PersistenceError("read payload file", err)
	}
	payload := make(map[string]map[string]any)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return aerrors.PersistenceError("decode payload map", err)
	}
	f.payload = payload
	return nil
}

// matches applies the AND-of-conditions filter DSL. A field absent from the
// payload fails the match; an unknown filter field is simply another
// equality/membership test that fails, never an error.
func matches(payload map[string]any, filter Filter) bool {
	for field, cond := range filter {
		v, ok := payload[field]
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
