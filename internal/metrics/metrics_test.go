package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeTo(t *testing.T, want, got float64, tolerance float64) {
	t.Helper()
	assert.InDeltaf(t, want, got, tolerance, "want %v got %v", want, got)
}

// Hand-computed values: hits at ranks 2 and 4, so P@5=0.4, R@5=2/3,
// MRR@5=0.5, DCG=1/log2(3)+1/log2(5), IDCG=1+1/log2(3)+0.5.
func TestMetricsKnownValues(t *testing.T) {
	predictions := []string{"X", "A", "Y", "B", "Z"}
	gt := ToSet([]string{"A", "B", "C"})

	prec, err := PrecisionAt(predictions, gt, 5)
	require.NoError(t, err)
	closeTo(t, 0.4, prec, 1e-9)

	rec, err := RecallAt(predictions, gt, 5)
	require.NoError(t, err)
	closeTo(t, 2.0/3.0, rec, 1e-9)

	hit, err := HitAt(predictions, gt, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, hit)

	mrr, err := MRRAt(predictions, gt, 5)
	require.NoError(t, err)
	closeTo(t, 0.5, mrr, 1e-9)

	ndcg, err := NDCGAt(predictions, gt, 5)
	require.NoError(t, err)
	closeTo(t, 0.4982, ndcg, 1e-3)
}

func TestPrecisionAt(t *testing.T) {
	gt := ToSet([]string{"a", "b"})
	p, err := PrecisionAt([]string{"a", "x", "b", "y"}, gt, 4)
	require.NoError(t, err)
	closeTo(t, 0.5, p, 1e-9)
}

func TestF1AtZeroWhenEitherComponentZero(t *testing.T) {
	gt := ToSet([]string{"a"})
	f1, err := F1At([]string{"x", "y"}, gt, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f1)
}

func TestMAPAt(t *testing.T) {
	// rel positions 2 and 4 (1-indexed): precision@2=0.5, precision@4=0.5
	gt := ToSet([]string{"a", "b"})
	m, err := MAPAt([]string{"x", "a", "y", "b"}, gt, 4)
	require.NoError(t, err)
	closeTo(t, 0.5, m, 1e-9)
}

func TestMAPAtNoHits(t *testing.T) {
	gt := ToSet([]string{"a"})
	m, err := MAPAt([]string{"x", "y"}, gt, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)
}

func TestNDCGAtPerfectRanking(t *testing.T) {
	gt := ToSet([]string{"a", "b"})
	n, err := NDCGAt([]string{"a", "b", "c"}, gt, 3)
	require.NoError(t, err)
	closeTo(t, 1.0, n, 1e-9)
}

func TestEmptyGroundTruthRaises(t *testing.T) {
	_, err := PrecisionAt([]string{"a"}, map[string]struct{}{}, 5)
	require.Error(t, err)
}

func TestNonPositiveKRaises(t *testing.T) {
	gt := ToSet([]string{"a"})
	_, err := PrecisionAt([]string{"a"}, gt, 0)
	require.Error(t, err)
}

func TestKLargerThanPredictionsComputesOverAvailable(t *testing.T) {
	gt := ToSet([]string{"a", "b", "c"})
	p, err := PrecisionAt([]string{"a"}, gt, 100)
	require.NoError(t, err)
	closeTo(t, 1.0, p, 1e-9)
}

// Duplicate predictions collapse to one entry before scoring.
func TestAllDuplicatesOfRelevantID(t *testing.T) {
	gt := ToSet([]string{"a", "b"})
	predictions := []string{"a", "a", "a"}

	hit, err := HitAt(predictions, gt, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, hit)

	prec, err := PrecisionAt(predictions, gt, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, prec) // dedup -> |P|=1, 1 relevant

	rec, err := RecallAt(predictions, gt, 3)
	require.NoError(t, err)
	closeTo(t, 0.5, rec, 1e-9) // 1/|G|=1/2

	mrr, err := MRRAt(predictions, gt, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mrr)
}

// Every metric returns a finite value in [0, 1] for well-formed input.
func TestUniversalInvariantBounded(t *testing.T) {
	gt := ToSet([]string{"a", "b", "c"})
	predictions := []string{"z", "a", "y", "b", "x", "c"}

	for _, name := range AllNames {
		fn, ok := Lookup(name)
		require.True(t, ok)
		for k := 1; k <= 6; k++ {
			v, err := fn(predictions, gt, k)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(v))
			assert.False(t, math.IsInf(v, 0))
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestDedupPreservesFirstOccurrence(t *testing.T) {
	got := Dedup([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
