// Package dataset implements the dataset loader and validator: it
// reads an evaluation dataset directory, accumulates non-fatal validation
// findings, and produces an ordered question list plus a statistics
// report for the Evaluation Pipeline.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// EvaluationQuestion is a single benchmark question and its ground
// truth.
type EvaluationQuestion struct {
	Question   string   `json:"question"`
	Answer     []string `json:"-"`
	Difficulty string   `json:"difficulty"`
}

// UnmarshalJSON accepts `answer` as either a single string or an ordered
// list of strings.
func (q *EvaluationQuestion) UnmarshalJSON(data []byte) error {
	type alias EvaluationQuestion
	var raw struct {
		alias
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = EvaluationQuestion(raw.alias)

	if len(raw.Answer) == 0 {
		return nil
	}
	var asList []string
	if err := json.Unmarshal(raw.Answer, &asList); err == nil {
		q.Answer = asList
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw.Answer, &asString); err == nil {
		q.Answer = []string{asString}
		return nil
	}
	return nil
}

// DatasetMetadata is the dataset's metadata.json contents.
type DatasetMetadata struct {
	Name             string         `json:"name"`
	Format           string         `json:"format"`
	QuestionCount    int            `json:"question_count"`
	EvaluationOptions map[string]any `json:"evaluation_options"`
}

// Dataset is a loaded evaluation dataset.
type Dataset struct {
	Metadata  DatasetMetadata
	Questions []EvaluationQuestion
}

// ValidationReport is the validator's output.
type ValidationReport struct {
	IsValid           bool
	FileChecks        []string
	FormatErrors      []string
	ConsistencyErrors []string
	Statistics        Statistics
}

// Statistics holds the dataset-wide descriptive statistics supplementing
// the distilled spec's validator report.
type Statistics struct {
	QuestionCount       int
	DifficultyHistogram map[string]int
	AvgAnswerCount      float64
}

const candidateQuestionsFilenames = "queries.jsonl,questions.json,data.json"

// Load reads dir/metadata.json plus whichever of queries.jsonl /
// questions.json / data.json is present, and validates the result. Load
// never returns an error for recoverable validation failures — those are
// reported in the returned ValidationReport; it returns an error only for
// conditions the caller cannot reasonably proceed past (metadata.json
// missing, directory unreadable).
func Load(dir string) (*Dataset, *ValidationReport, error) {
	report := &ValidationReport{Statistics: Statistics{DifficultyHistogram: map[string]int{}}}

	metaPath := filepath.Join(dir, "metadata.json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, aerrors.ValidationError("metadata.json is required", err)
	}
	report.FileChecks = append(report.FileChecks, "metadata.json: present")

	var meta DatasetMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		report.FormatErrors = append(report.FormatErrors, "metadata.json: "+err.Error())
	}
	if meta.Name == "" {
		report.FormatErrors = append(report.FormatErrors, "metadata.json: missing required field 'name'")
	}
	if meta.Format == "" {
		report.FormatErrors = append(report.FormatErrors, "metadata.json: missing required field 'format'")
	}

	questions, questionsFile, loadErr := loadQuestions(dir)
	if loadErr != nil {
		report.FormatErrors = append(report.FormatErrors, loadErr.Error())
	} else {
		report.FileChecks = append(report.FileChecks, questionsFile+": present")
	}

	validateQuestions(questions, report)

	if meta.QuestionCount != 0 && meta.QuestionCount != len(questions) {
		report.ConsistencyErrors = append(report.ConsistencyErrors,
			"metadata.question_count does not match actual question count (warning only)")
	}

	report.Statistics = computeStatistics(questions)
	report.IsValid = len(report.FormatErrors) == 0

	ds := &Dataset{Metadata: meta, Questions: questions}
	return ds, report, nil
}

// loadQuestions tries queries.jsonl, then questions.json, then data.json,
// in that order, returning the first one found.
func loadQuestions(dir string) ([]EvaluationQuestion, string, error) {
	jsonlPath := filepath.Join(dir, "queries.jsonl")
	if data, err := os.ReadFile(jsonlPath); err == nil {
		qs, err := parseJSONL(data)
		return qs, "queries.jsonl", err
	}

	for _, name := range []string{"questions.json", "data.json"} {
		path := filepath.Join(dir, name)
		if data, err := os.ReadFile(path); err == nil {
			qs, err := parseJSONArray(data)
			return qs, name, err
		}
	}

	return nil, "", aerrors.ValidationError(
		"no questions file found (expected one of: "+candidateQuestionsFilenames+")", nil)
}

func parseJSONL(data []byte) ([]EvaluationQuestion, error) {
	var out []EvaluationQuestion
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var q EvaluationQuestion
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			return out, err
		}
		out = append(out, q)
	}
	return out, nil
}

func parseJSONArray(data []byte) ([]EvaluationQuestion, error) {
	var out []EvaluationQuestion
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateQuestions(questions []EvaluationQuestion, report *ValidationReport) {
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if q.Question == "" {
			report.FormatErrors = append(report.FormatErrors,
				"question at index "+strconv.Itoa(i)+": missing 'question'")
		}
		if len(q.Answer) == 0 {
			report.FormatErrors = append(report.FormatErrors,
				"question at index "+strconv.Itoa(i)+": missing 'answer'")
		}
		if q.Difficulty == "" {
			report.FormatErrors = append(report.FormatErrors,
				"question at index "+strconv.Itoa(i)+": missing 'difficulty'")
		}

		key := strings.ToLower(strings.TrimSpace(q.Question))
		if key != "" {
			if seen[key] {
				report.ConsistencyErrors = append(report.ConsistencyErrors,
					"duplicate question (case-insensitive): "+q.Question)
			}
			seen[key] = true
		}
	}
}

func computeStatistics(questions []EvaluationQuestion) Statistics {
	stats := Statistics{
		QuestionCount:       len(questions),
		DifficultyHistogram: map[string]int{},
	}
	totalAnswers := 0
	for _, q := range questions {
		stats.DifficultyHistogram[q.Difficulty]++
		totalAnswers += len(q.Answer)
	}
	if len(questions) > 0 {
		stats.AvgAnswerCount = float64(totalAnswers) / float64(len(questions))
	}
	return stats
}
