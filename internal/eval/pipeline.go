// Package eval implements the evaluation pipeline: given an
// Adapter, a Dataset, k-values, and chosen metrics, it computes per-metric
// per-k scores averaged across questions, isolating per-question
// failures and optionally persisting an append-only run record.
package eval

import (
	"context"
	"sync"
	"time"

	"github.com/hybridsearch/codesearch/internal/adapter"
	"github.com/hybridsearch/codesearch/internal/dataset"
	"github.com/hybridsearch/codesearch/internal/metrics"
)

// Options configures a single evaluation run.
type Options struct {
	ConvertFilepathToClasspath bool `json:"convert_filepath_to_classpath"`
	IgnoreMethodNames          bool `json:"ignore_method_names"`

	// Parallelism bounds how many questions are evaluated concurrently.
	// <= 1 means strictly sequential, which respects downstream
	// adapter rate limits and is the default.
	Parallelism int `json:"parallelism"`
}

// Report is the evaluation pipeline's output.
type Report struct {
	// Metrics[metricName][k] = averaged score across all questions.
	Metrics map[string]map[int]float64

	WallTime        time.Duration
	QuestionCount   int
	FailedQuestions int

	// QuestionDurationsMs holds one entry per question, in dataset
	// order.
	QuestionDurationsMs []int64
}

type questionOutcome struct {
	predictions []string
	groundTruth []string
	durationMs  int64
	failed      bool
}

// Run executes the pipeline over ds using a, at k-values kValues and
// metric names metricNames.
func Run(ctx context.Context, a adapter.Adapter, ds *dataset.Dataset, kValues []int, metricNames []metrics.Name, opts Options) (Report, error) {
	start := time.Now()

	maxK := 0
	for _, k := range kValues {
		if k > maxK {
			maxK = k
		}
	}

	parallelism := opts.Parallelism
	if parallelism <= 1 {
		parallelism = 1
	}

	outcomes := make([]questionOutcome, len(ds.Questions))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i, q := range ds.Questions {
		i, q := i, q
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = evaluateQuestion(ctx, a, q, maxK, opts)
		}()
	}
	wg.Wait()

	report := Report{
		Metrics:             make(map[string]map[int]float64),
		QuestionCount:       len(ds.Questions),
		QuestionDurationsMs: make([]int64, len(outcomes)),
	}

	for _, name := range metricNames {
		report.Metrics[string(name)] = make(map[int]float64)
	}

	for i, o := range outcomes {
		report.QuestionDurationsMs[i] = o.durationMs
		if o.failed {
			report.FailedQuestions++
		}
	}

	for _, name := range metricNames {
		fn, ok := metrics.Lookup(name)
		if !ok {
			continue
		}
		for _, k := range kValues {
			sum := 0.0
			n := 0
			for _, o := range outcomes {
				if len(o.groundTruth) == 0 {
					continue // a question with no ground truth contributes nothing (can't raise here)
				}
				gt := metrics.ToSet(o.groundTruth)
				score, err := fn(o.predictions, gt, k)
				if err != nil {
					continue
				}
				sum += score
				n++
			}
			if n > 0 {
				report.Metrics[string(name)][k] = sum / float64(n)
			}
		}
	}

	report.WallTime = time.Since(start)
	return report, nil
}

// evaluateQuestion retrieves predictions for a single question, isolating
// any failure into a zero-prediction outcome rather than aborting the
// run.
func evaluateQuestion(ctx context.Context, a adapter.Adapter, q dataset.EvaluationQuestion, maxK int, opts Options) questionOutcome {
	started := time.Now()

	results, err := a.Retrieve(ctx, q.Question, maxK)
	duration := time.Since(started).Milliseconds()

	groundTruth := make([]string, len(q.Answer))
	for i, ans := range q.Answer {
		groundTruth[i] = NormalizeGroundTruth(ans, opts.ConvertFilepathToClasspath, opts.IgnoreMethodNames)
	}

	if err != nil {
		return questionOutcome{groundTruth: groundTruth, durationMs: duration, failed: true}
	}

	predictions := make([]string, len(results))
	for i, r := range results {
		predictions[i] = predictionIdentifier(r, opts)
	}

	return questionOutcome{predictions: predictions, groundTruth: groundTruth, durationMs: duration}
}

// predictionIdentifier extracts the identifier used for matching against
// ground truth: the classpath-normalized file_path when
// configured and present, otherwise the raw content.
func predictionIdentifier(r adapter.Result, opts Options) string {
	if opts.ConvertFilepathToClasspath && r.FilePath != "" {
		return NormalizeClasspath(r.FilePath, opts.IgnoreMethodNames)
	}
	return r.Content
}
