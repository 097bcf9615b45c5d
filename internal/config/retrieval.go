package config

// AdapterConfig configures the RAG-adapter layer. Exactly one
// backend is active per configured adapter instance; Type is the tagged
// union's discriminant.
type AdapterConfig struct {
	// Type selects the adapter variant: "mock", "http", "hybrid",
	// "bearer", "vector_only", "bm25_only".
	Type string `yaml:"type" json:"type"`

	Timeout    string `yaml:"timeout" json:"timeout"`       // request timeout, e.g. "10s"
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`

	// Generic HTTP adapter.
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	QueryField      string `yaml:"query_field" json:"query_field"`
	KField          string `yaml:"k_field" json:"k_field"`
	ResultsField    string `yaml:"results_field" json:"results_field"`
	ContentField    string `yaml:"content_field" json:"content_field"`
	ScoreField      string `yaml:"score_field" json:"score_field"`
	FilepathField   string `yaml:"filepath_field" json:"filepath_field"`

	// Bearer-auth HTTP adapter.
	AuthURL                   string  `yaml:"auth_url" json:"auth_url"`
	RetrievalURL              string  `yaml:"retrieval_url" json:"retrieval_url"`
	Username                  string  `yaml:"username" json:"username"`
	Password                  string  `yaml:"password" json:"password"`
	RepoIDs                   []int   `yaml:"repo_ids" json:"repo_ids"`
	Threshold                 float64 `yaml:"threshold" json:"threshold"`
	ApplyControllerPathFallback bool  `yaml:"apply_controller_path_fallback" json:"apply_controller_path_fallback"`

	// Hybrid / vector-only / bm25-only adapters delegate to the Hybrid
	// Retrieval Core; FusionMethod selects which leg(s) it exercises.
	FusionMethod string `yaml:"fusion_method" json:"fusion_method"`
}

// DefaultAdapterConfig returns the bearer-auth legacy defaults: repo id
// filter [28], similarity threshold 0.8,
// and the controller-path fallback left off (it is backend-specific and
// fragile, applied only when explicitly enabled).
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Type:                        "hybrid",
		Timeout:                     "10s",
		MaxRetries:                  3,
		QueryField:                  "query",
		KField:                      "k",
		ResultsField:                "results",
		ContentField:                "content",
		ScoreField:                  "score",
		FilepathField:               "file_path",
		RepoIDs:                     []int{28},
		Threshold:                   0.8,
		ApplyControllerPathFallback: false,
		FusionMethod:                "rrf",
	}
}

// EvalConfig configures the evaluation pipeline and dataset loader.
type EvalConfig struct {
	KValues     []int    `yaml:"k_values" json:"k_values"`
	Metrics     []string `yaml:"metrics" json:"metrics"`
	Parallelism int      `yaml:"parallelism" json:"parallelism"`

	ConvertFilepathToClasspath bool `yaml:"convert_filepath_to_classpath" json:"convert_filepath_to_classpath"`
	IgnoreMethodNames          bool `yaml:"ignore_method_names" json:"ignore_method_names"`

	// RunLogBackend selects the append-only evaluation log: "none",
	// "jsonl" (default), or "sqlite".
	RunLogBackend string `yaml:"run_log_backend" json:"run_log_backend"`
	RunLogPath    string `yaml:"run_log_path" json:"run_log_path"`
}

// DefaultEvalConfig returns sensible defaults: all seven metrics at k =
// {1, 5, 10}, sequential processing (parallelism 1, so downstream
// adapter rate limits are respected), classpath conversion off (it's
// Java-specific and opt-in).
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		KValues:                    []int{1, 5, 10},
		Metrics:                    []string{"precision", "recall", "f1", "hit", "mrr", "ndcg", "map"},
		Parallelism:                1,
		ConvertFilepathToClasspath: false,
		IgnoreMethodNames:          false,
		RunLogBackend:              "jsonl",
		RunLogPath:                 "",
	}
}

// RetrievalCoreConfig configures the hybrid retrieval engine.
type RetrievalCoreConfig struct {
	FusionMethod    string  `yaml:"fusion_method" json:"fusion_method"` // "weighted" | "rrf" | "vector_only" | "bm25_only"
	VectorWeight    float64 `yaml:"vector_weight" json:"vector_weight"`
	BM25Weight      float64 `yaml:"bm25_weight" json:"bm25_weight"`
	RRFConstant     int     `yaml:"rrf_constant" json:"rrf_constant"`
	MaxResults      int     `yaml:"max_results" json:"max_results"`
	DeadlineSeconds int     `yaml:"deadline_seconds" json:"deadline_seconds"`
}

// DefaultRetrievalCoreConfig returns the stock defaults: weighted-sum
// weights (0.7, 0.3), k_RRF = 60, max_results = 50, 30s deadline.
func DefaultRetrievalCoreConfig() RetrievalCoreConfig {
	return RetrievalCoreConfig{
		FusionMethod:    "rrf",
		VectorWeight:    0.7,
		BM25Weight:      0.3,
		RRFConstant:     60,
		MaxResults:      50,
		DeadlineSeconds: 30,
	}
}
