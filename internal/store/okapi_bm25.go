package store

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

// OkapiBM25Index is an explicit Okapi BM25 implementation with a literal
// on-disk format: nodes.json holds the inverted index (term -> postings)
// plus corpus statistics, documents_map.bin holds the doc-id -> raw content
// map (gob-encoded). Both are written atomically (temp file + rename) and
// guarded by a single-writer advisory file lock, matching how HNSWStore
// persists its graph.
type OkapiBM25Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	tokenizer *Tokenizer
	stopWords map[string]struct{}

	// postings[term][docID] = term frequency within that document's indexed text.
	postings map[string]map[string]int
	// docLen[docID] = number of tokens in the document's indexed text.
	docLen map[string]int
	// docs[docID] = raw content, kept so Save/Load round-trip AllIDs/debugging.
	docs map[string]string

	totalDocLen int
	closed      bool
}

var _ BM25Index = (*OkapiBM25Index)(nil)

// NewOkapiBM25Index constructs an in-memory Okapi BM25 index. Pass an empty
// path to NewBM25IndexWithBackend to use it purely in memory; call Save/Load
// explicitly to persist.
func NewOkapiBM25Index(config BM25Config) (*OkapiBM25Index, error) {
	k1 := config.K1
	if k1 <= 0 {
		k1 = 1.2
	}
	b := config.B
	if b < 0 {
		b = 0.75
	}
	stopWords := config.StopWords
	if stopWords == nil {
		stopWords = DefaultCodeStopWords
	}

	return &OkapiBM25Index{
		k1:        k1,
		b:         b,
		tokenizer: NewTokenizer(WithStemming(!config.DisableStemming)),
		stopWords: BuildStopWordMap(stopWords),
		postings:  make(map[string]map[string]int),
		docLen:    make(map[string]int),
		docs:      make(map[string]string),
	}, nil
}

func (idx *OkapiBM25Index) tokenize(text string) []string {
	tokens := idx.tokenizer.Tokenize(text)
	return FilterStopWords(tokens, idx.stopWords)
}

// Index adds or replaces documents in the index.
func (idx *OkapiBM25Index) Index(_ context.Context, docs []*Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		idx.removeDocLocked(doc.ID)

		tokens := idx.tokenize(doc.Content)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}

		for term, tf := range freqs {
			if idx.postings[term] == nil {
				idx.postings[term] = make(map[string]int)
			}
			idx.postings[term][doc.ID] = tf
		}

		idx.docLen[doc.ID] = len(tokens)
		idx.docs[doc.ID] = doc.Content
		idx.totalDocLen += len(tokens)
	}

	return nil
}

func (idx *OkapiBM25Index) removeDocLocked(docID string) {
	if oldLen, ok := idx.docLen[docID]; ok {
		idx.totalDocLen -= oldLen
	}
	for term, posting := range idx.postings {
		if _, ok := posting[docID]; ok {
			delete(posting, docID)
			if len(posting) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	delete(idx.docLen, docID)
	delete(idx.docs, docID)
}

// Search scores every document containing at least one query term using
// Okapi BM25 (k1, b as configured) and returns the top `limit` results,
// highest score first, ties broken by document ID for determinism.
func (idx *OkapiBM25Index) Search(_ context.Context, query string, limit int) ([]*BM25Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	queryTokens := idx.tokenize(query)
	if len(queryTokens) == 0 {
		return []*BM25Result{}, nil
	}

	n := len(idx.docLen)
	if n == 0 {
		return []*BM25Result{}, nil
	}
	avgDocLen := float64(idx.totalDocLen) / float64(n)
	if avgDocLen == 0 {
		avgDocLen = 1
	}

	// dedupe query tokens, but keep per-term presence for MatchedTerms
	seenQueryTerms := make(map[string]struct{})
	scores := make(map[string]float64)
	matched := make(map[string]map[string]struct{})

	for _, term := range queryTokens {
		if _, done := seenQueryTerms[term]; done {
			continue
		}
		seenQueryTerms[term] = struct{}{}

		posting, ok := idx.postings[term]
		if !ok {
			continue
		}

		df := len(posting)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for docID, tf := range posting {
			dl := float64(idx.docLen[docID])
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*dl/avgDocLen)
			score := idf * (float64(tf) * (idx.k1 + 1) / denom)
			scores[docID] += score

			if matched[docID] == nil {
				matched[docID] = make(map[string]struct{})
			}
			matched[docID][term] = struct{}{}
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for docID, score := range scores {
		terms := make([]string, 0, len(matched[docID]))
		for t := range matched[docID] {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, &BM25Result{
			DocID:        docID,
			Score:        score,
			MatchedTerms: terms,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Delete removes documents from the index.
func (idx *OkapiBM25Index) Delete(_ context.Context, docIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range docIDs {
		idx.removeDocLocked(id)
	}
	return nil
}

// AllIDs returns all indexed document IDs.
func (idx *OkapiBM25Index) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns index statistics.
func (idx *OkapiBM25Index) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLen)
	avg := 0.0
	if n > 0 {
		avg = float64(idx.totalDocLen) / float64(n)
	}

	return &IndexStats{
		DocumentCount: n,
		TermCount:     len(idx.postings),
		AvgDocLength:  avg,
	}
}

// okapiNodes is the on-disk shape of nodes.json: the inverted index plus
// corpus statistics needed to recompute BM25 scores without rescanning
// documents_map.bin.
type okapiNodes struct {
	K1          float64                  `json:"k1"`
	B           float64                  `json:"b"`
	Postings    map[string]map[string]int `json:"postings"`
	DocLen      map[string]int           `json:"doc_len"`
	TotalDocLen int                      `json:"total_doc_len"`
}

// Save persists the index as a literal nodes.json + documents_map.bin pair
// under the given directory path, atomically (temp file + rename) and
// guarded by a single-writer advisory lock so concurrent Save/Load calls
// from other processes do not interleave.
func (idx *OkapiBM25Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(path, ".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer lock.Unlock()

	nodesPath := filepath.Join(path, "nodes.json")
	if err := writeJSONAtomic(nodesPath, okapiNodes{
		K1:          idx.k1,
		B:           idx.b,
		Postings:    idx.postings,
		DocLen:      idx.docLen,
		TotalDocLen: idx.totalDocLen,
	}); err != nil {
		return fmt.Errorf("write nodes.json: %w", err)
	}

	docsPath := filepath.Join(path, "documents_map.bin")
	if err := writeGobAtomic(docsPath, idx.docs); err != nil {
		return fmt.Errorf("write documents_map.bin: %w", err)
	}

	return nil
}

// Load restores the index from a directory previously written by Save.
func (idx *OkapiBM25Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	lock := flock.New(filepath.Join(path, ".lock"))
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer lock.Unlock()

	var nodes okapiNodes
	nodesPath := filepath.Join(path, "nodes.json")
	f, err := os.Open(nodesPath)
	if err != nil {
		return fmt.Errorf("open nodes.json: %w", err)
	}
	if err := json.NewDecoder(f).Decode(&nodes); err != nil {
		f.Close()
		return fmt.Errorf("decode nodes.json: %w", err)
	}
	f.Close()

	docs := make(map[string]string)
	docsPath := filepath.Join(path, "documents_map.bin")
	df, err := os.Open(docsPath)
	if err != nil {
		return fmt.Errorf("open documents_map.bin: %w", err)
	}
	if err := gob.NewDecoder(df).Decode(&docs); err != nil {
		df.Close()
		return fmt.Errorf("decode documents_map.bin: %w", err)
	}
	df.Close()

	if nodes.K1 > 0 {
		idx.k1 = nodes.K1
	}
	if nodes.B >= 0 {
		idx.b = nodes.B
	}
	idx.postings = nodes.Postings
	if idx.postings == nil {
		idx.postings = make(map[string]map[string]int)
	}
	idx.docLen = nodes.DocLen
	if idx.docLen == nil {
		idx.docLen = make(map[string]int)
	}
	idx.totalDocLen = nodes.TotalDocLen
	idx.docs = docs

	return nil
}

// Close marks the index unusable. Further calls return an error.
func (idx *OkapiBM25Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeGobAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
