// Package metrics implements the information-retrieval metric library used
// by the evaluation pipeline: Precision, Recall, F1, Hit, MRR, nDCG,
// and MAP at k, all evaluated over deduplicated prediction lists and a
// non-empty ground-truth set.
package metrics

import (
	"math"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// Dedup returns predictions with duplicates removed, preserving the first
// occurrence of each identifier — the "dedup applied before ranking" rule
// every metric in this package relies on.
func Dedup(predictions []string) []string {
	seen := make(map[string]struct{}, len(predictions))
	out := make([]string, 0, len(predictions))
	for _, p := range predictions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// validate enforces the shared precondition: k >= 1 and a non-empty
// ground-truth set. Predictions may legitimately be empty (a failed
// question contributes zero predictions, not an error).
func validate(groundTruth map[string]struct{}, k int) error {
	if k <= 0 {
		return aerrors.ValidationError("k must be >= 1", nil)
	}
	if len(groundTruth) == 0 {
		return aerrors.ValidationError("ground_truth must be non-empty", nil)
	}
	return nil
}

// truncate dedups predictions and returns at most the first k.
func truncate(predictions []string, k int) []string {
	deduped := Dedup(predictions)
	if len(deduped) > k {
		deduped = deduped[:k]
	}
	return deduped
}

func relevantCount(p []string, groundTruth map[string]struct{}) int {
	n := 0
	for _, id := range p {
		if _, ok := groundTruth[id]; ok {
			n++
		}
	}
	return n
}

// PrecisionAt computes Precision@k = |P ∩ G| / |P|, 0 when P is empty.
func PrecisionAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)
	if len(p) == 0 {
		return 0, nil
	}
	return float64(relevantCount(p, groundTruth)) / float64(len(p)), nil
}

// RecallAt computes Recall@k = |P ∩ G| / |G|.
func RecallAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)
	return float64(relevantCount(p, groundTruth)) / float64(len(groundTruth)), nil
}

// F1At computes the harmonic mean of Precision@k and Recall@k, 0 if either
// is 0.
func F1At(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	prec, err := PrecisionAt(predictions, groundTruth, k)
	if err != nil {
		return 0, err
	}
	rec, err := RecallAt(predictions, groundTruth, k)
	if err != nil {
		return 0, err
	}
	if prec == 0 || rec == 0 {
		return 0, nil
	}
	return 2 * prec * rec / (prec + rec), nil
}

// HitAt computes Hit@k = 1 if any prediction in P is in G, else 0.
func HitAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)
	if relevantCount(p, groundTruth) > 0 {
		return 1, nil
	}
	return 0, nil
}

// MRRAt computes MRR@k = 1 / first 1-indexed position where P[i] ∈ G, else 0.
func MRRAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)
	for i, id := range p {
		if _, ok := groundTruth[id]; ok {
			return 1 / float64(i+1), nil
		}
	}
	return 0, nil
}

// NDCGAt computes nDCG@k = DCG@k / IDCG@k, where
// DCG@k = Σ rel(i) / log2(i+1) (1-indexed) and
// IDCG@k = Σ_{i=1}^{min(|G|,k)} 1/log2(i+1). Returns 0 if IDCG is 0 (k < 1,
// already rejected by validate).
func NDCGAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)

	dcg := 0.0
	for i, id := range p {
		if _, ok := groundTruth[id]; ok {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	idealHits := len(groundTruth)
	if idealHits > k {
		idealHits = k
	}
	idcg := 0.0
	for i := 1; i <= idealHits; i++ {
		idcg += 1 / math.Log2(float64(i+1))
	}
	if idcg == 0 {
		return 0, nil
	}
	return dcg / idcg, nil
}

// MAPAt computes MAP@k = mean of Precision@i over positions i where
// rel(i) = 1, divided by min(|G|, k); 0 if no relevant hits.
func MAPAt(predictions []string, groundTruth map[string]struct{}, k int) (float64, error) {
	if err := validate(groundTruth, k); err != nil {
		return 0, err
	}
	p := truncate(predictions, k)

	sumPrecision := 0.0
	hits := 0
	for i, id := range p {
		if _, ok := groundTruth[id]; ok {
			hits++
			sumPrecision += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0, nil
	}

	denom := len(groundTruth)
	if denom > k {
		denom = k
	}
	return sumPrecision / float64(denom), nil
}

// Name identifies a metric for dispatch by the Evaluation Pipeline.
type Name string

const (
	Precision Name = "precision"
	Recall    Name = "recall"
	F1        Name = "f1"
	Hit       Name = "hit"
	MRR       Name = "mrr"
	NDCG      Name = "ndcg"
	MAP       Name = "map"
)

// AllNames lists every supported metric, in the order results are usually
// reported.
var AllNames = []Name{Precision, Recall, F1, Hit, MRR, NDCG, MAP}

// Func is the common signature every metric in this package shares.
type Func func(predictions []string, groundTruth map[string]struct{}, k int) (float64, error)

// byName dispatches a metric Name to its Func, for the evaluation
// pipeline's per-metric, per-k loop.
var byName = map[Name]Func{
	Precision: PrecisionAt,
	Recall:    RecallAt,
	F1:        F1At,
	Hit:       HitAt,
	MRR:       MRRAt,
	NDCG:      NDCGAt,
	MAP:       MAPAt,
}

// Lookup returns the Func for a metric name, and whether it was found.
func Lookup(name Name) (Func, bool) {
	f, ok := byName[name]
	return f, ok
}

// ToSet converts an ordered ground-truth sequence into the set form every
// metric in this package expects.
func ToSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
