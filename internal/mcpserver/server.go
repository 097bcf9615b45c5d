// Package mcpserver exposes the hybrid retrieval engine and evaluation
// pipeline as MCP tools, so AI clients can drive retrieval and
// evaluation without going through the HTTP surface.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hybridsearch/codesearch/internal/adapter"
	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/dataset"
	"github.com/hybridsearch/codesearch/internal/eval"
	"github.com/hybridsearch/codesearch/internal/metrics"
	"github.com/hybridsearch/codesearch/internal/retrieval"
	"github.com/hybridsearch/codesearch/pkg/version"
)

// Server wraps an *mcp.Server registered with the code_search and
// evaluate tools.
type Server struct {
	mcp          *mcp.Server
	engine       *retrieval.Engine
	datasetsRoot string
	logger       *slog.Logger
}

// RetrieveInput is the MCP input schema for the code_search tool.
type RetrieveInput struct {
	Query string `json:"query" jsonschema:"the natural-language or code-like query to search for"`
	K     int    `json:"k,omitempty" jsonschema:"number of results to return, default 10"`
}

// RetrieveResultOutput mirrors a single FusedResult for MCP clients.
type RetrieveResultOutput struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	FilePath      string   `json:"file_path,omitempty"`
	CombinedScore float64  `json:"combined_score"`
	Sources       []string `json:"sources"`
}

// RetrieveOutput is the MCP output schema for the code_search tool.
type RetrieveOutput struct {
	Results []RetrieveResultOutput `json:"results"`
}

// EvaluateInput is the MCP input schema for the evaluate tool.
type EvaluateInput struct {
	DatasetName string   `json:"dataset_name" jsonschema:"name of the dataset subdirectory under the server's datasets root"`
	KValues     []int    `json:"k_values,omitempty" jsonschema:"k values to compute metrics at, default [1,5,10]"`
	Metrics     []string `json:"metrics,omitempty" jsonschema:"metric names to compute: precision, recall, f1, hit, mrr, ndcg, map"`
}

// EvaluateOutput is the MCP output schema for the evaluate tool.
type EvaluateOutput struct {
	Metrics         map[string]map[string]float64 `json:"metrics"`
	QuestionCount   int                            `json:"question_count"`
	FailedQuestions int                            `json:"failed_questions"`
}

// New builds a Server over engine, an already-opened retrieval Engine, and
// datasetsRoot, the directory evaluate's dataset_name is resolved against.
// engine may be nil; code_search then reports an error at call time instead
// of failing construction.
func New(engine *retrieval.Engine, datasetsRoot string) *Server {
	s := &Server{
		engine:       engine,
		datasetsRoot: datasetsRoot,
		logger:       slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codesearch",
		Version: version.Version,
	}, nil)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_search",
		Description: "Hybrid dense + BM25 code retrieval. Fuses a vector similarity search with a code-aware BM25 lexical search and returns the top-k fused results.",
	}, s.handleRetrieve)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "evaluate",
		Description: "Run the evaluation pipeline for a named dataset against the local hybrid retrieval engine, returning Precision/Recall/F1/MRR/nDCG/MAP/Hit@k.",
	}, s.handleEvaluate)

	return s
}

// MCPServer returns the underlying SDK server, for tests and for wiring a
// transport in cmd/codesearch.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	if input.Query == "" {
		return nil, RetrieveOutput{}, errors.New("query is required")
	}
	if s.engine == nil {
		return nil, RetrieveOutput{}, errors.New("no retrieval engine configured")
	}

	k := input.K
	if k <= 0 {
		k = 10
	}

	results, err := s.engine.Search(ctx, input.Query, k, retrieval.Options{})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	out := RetrieveOutput{Results: make([]RetrieveResultOutput, len(results))}
	for i, r := range results {
		filePath, _ := r.Metadata["file_path"].(string)
		out.Results[i] = RetrieveResultOutput{
			ID:            r.ID,
			Content:       r.Content,
			FilePath:      filePath,
			CombinedScore: r.CombinedScore,
			Sources:       r.Sources,
		}
	}
	return nil, out, nil
}

func (s *Server) handleEvaluate(ctx context.Context, _ *mcp.CallToolRequest, input EvaluateInput) (
	*mcp.CallToolResult,
	EvaluateOutput,
	error,
) {
	if input.DatasetName == "" {
		return nil, EvaluateOutput{}, errors.New("dataset_name is required")
	}

	ds, report, err := dataset.Load(filepath.Join(s.datasetsRoot, input.DatasetName))
	if err != nil {
		return nil, EvaluateOutput{}, fmt.Errorf("load dataset: %w", err)
	}
	if !report.IsValid {
		return nil, EvaluateOutput{}, errors.New("dataset failed validation")
	}

	a, err := adapter.New(config.AdapterConfig{Type: "hybrid"}, s.engine)
	if err != nil {
		return nil, EvaluateOutput{}, fmt.Errorf("build adapter: %w", err)
	}
	defer a.Close()

	kValues := input.KValues
	if len(kValues) == 0 {
		kValues = []int{1, 5, 10}
	}
	metricNames := make([]metrics.Name, 0, len(input.Metrics))
	for _, m := range input.Metrics {
		metricNames = append(metricNames, metrics.Name(m))
	}
	if len(metricNames) == 0 {
		metricNames = metrics.AllNames
	}

	result, err := eval.Run(ctx, a, ds, kValues, metricNames, eval.Options{})
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	s.logger.Debug("evaluate tool completed",
		slog.String("dataset", input.DatasetName),
		slog.Int("questions", result.QuestionCount))

	metricsOut := make(map[string]map[string]float64, len(result.Metrics))
	for name, byK := range result.Metrics {
		m := make(map[string]float64, len(byK))
		for k, v := range byK {
			m[strconv.Itoa(k)] = v
		}
		metricsOut[name] = m
	}

	return nil, EvaluateOutput{
		Metrics:         metricsOut,
		QuestionCount:   result.QuestionCount,
		FailedQuestions: result.FailedQuestions,
	}, nil
}
