package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/hybridsearch/codesearch/internal/adapter"
	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/dataset"
	aerrors "github.com/hybridsearch/codesearch/internal/errors"
	"github.com/hybridsearch/codesearch/internal/eval"
	"github.com/hybridsearch/codesearch/internal/metrics"
	"github.com/hybridsearch/codesearch/internal/retrieval"
)

// EvaluateDeps bundles dependencies for POST /evaluate.
type EvaluateDeps struct {
	DatasetsRoot  string
	DefaultAdapter config.AdapterConfig
	DefaultEval    config.EvalConfig
	Engine         *retrieval.Engine // wired in only when adapter_config selects a local fusion variant
	RunLog         eval.RunLog
}

type evaluateRequest struct {
	AdapterConfig *config.AdapterConfig `json:"adapter_config"`
	DatasetName   string                `json:"dataset_name"`
	KValues       []int                 `json:"k_values"`
	Metrics       []string              `json:"metrics"`
	Options       *eval.Options         `json:"options"`
}

type evaluateResponse struct {
	Metrics         map[string]map[int]float64 `json:"metrics"`
	WallTimeMS      int64                      `json:"wall_time_ms"`
	QuestionCount   int                        `json:"question_count"`
	FailedQuestions int                        `json:"failed_questions"`
}

// Evaluate returns the handler for POST /evaluate: loads the named
// dataset, builds the configured Adapter, and runs the evaluation
// pipeline.
func Evaluate(deps EvaluateDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, aerrors.ValidationError("decode request body", err))
			return
		}
		if req.DatasetName == "" {
			respondError(w, aerrors.ValidationError("dataset_name is required", nil))
			return
		}

		ds, report, err := dataset.Load(filepath.Join(deps.DatasetsRoot, req.DatasetName))
		if err != nil {
			respondError(w, aerrors.New(aerrors.ErrCodeFileNotFound, "load dataset "+req.DatasetName, err))
			return
		}
		if !report.IsValid {
			respondError(w, aerrors.ValidationError("dataset failed validation", nil))
			return
		}

		adapterCfg := deps.DefaultAdapter
		if req.AdapterConfig != nil {
			adapterCfg = *req.AdapterConfig
		}
		a, err := adapter.New(adapterCfg, deps.Engine)
		if err != nil {
			respondError(w, err)
			return
		}
		defer a.Close()

		kValues := req.KValues
		if len(kValues) == 0 {
			kValues = deps.DefaultEval.KValues
		}
		metricNames := toMetricNames(req.Metrics, deps.DefaultEval.Metrics)

		opts := eval.Options{
			ConvertFilepathToClasspath: deps.DefaultEval.ConvertFilepathToClasspath,
			IgnoreMethodNames:          deps.DefaultEval.IgnoreMethodNames,
			Parallelism:                deps.DefaultEval.Parallelism,
		}
		if req.Options != nil {
			opts = *req.Options
		}

		evalReport, err := eval.Run(r.Context(), a, ds, kValues, metricNames, opts)
		if err != nil {
			respondError(w, err)
			return
		}

		if deps.RunLog != nil {
			_ = deps.RunLog.Append(r.Context(), eval.RunRecord{
				DatasetName: req.DatasetName,
				SystemName:  adapterCfg.Type,
				Metrics:     evalReport.Metrics,
			})
		}

		respondOK(w, evaluateResponse{
			Metrics:         evalReport.Metrics,
			WallTimeMS:      evalReport.WallTime.Milliseconds(),
			QuestionCount:   evalReport.QuestionCount,
			FailedQuestions: evalReport.FailedQuestions,
		})
	}
}

func toMetricNames(requested []string, fallback []string) []metrics.Name {
	names := requested
	if len(names) == 0 {
		names = fallback
	}
	out := make([]metrics.Name, len(names))
	for i, n := range names {
		out[i] = metrics.Name(n)
	}
	return out
}
