package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query telemetry recorded by previous search/eval/serve runs",
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `queries reports what the hybrid retrieval engine has seen: the
lexical/semantic/mixed split, the most frequent query terms, recent
zero-result queries, and the latency histogram, all persisted to
.codesearch/telemetry.db by every search, eval, serve, and mcp run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of query-type and latency history to include")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Summary             StatsQueriesSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []StatsTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// StatsQueriesSummary provides overview statistics.
type StatsQueriesSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(cmd *cobra.Command, jsonOutput bool, days int) error {
	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	if found, ferr := config.FindProjectRoot(root); ferr == nil {
		root = found
	}

	dbPath := filepath.Join(root, ".codesearch", "telemetry.db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no telemetry recorded in %s\nRun 'codesearch search' or 'codesearch serve' against an index first", root)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open telemetry database: %w", err)
	}
	defer db.Close()

	metricsStore, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		return fmt.Errorf("open metrics store: %w", err)
	}

	if days <= 0 {
		days = 7
	}
	output, err := getQueryStats(metricsStore, days)
	if err != nil {
		return fmt.Errorf("get query stats: %w", err)
	}

	if jsonOutput {
		return printStatsJSON(cmd, output)
	}
	return printStatsFormatted(cmd, output)
}

func getQueryStats(store *telemetry.SQLiteMetricsStore, days int) (*StatsQueriesOutput, error) {
	to := time.Now().Format("2006-01-02")
	from := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Format("2006-01-02")

	typeCounts, err := store.GetQueryTypeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get query type counts: %w", err)
	}

	latency, err := store.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	topTerms, err := store.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}

	zeroResults, err := store.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}

	var total int64
	queryTypeCounts := make(map[string]int64, len(typeCounts))
	for qt, count := range typeCounts {
		queryTypeCounts[string(qt)] = count
		total += count
	}

	latencyDist := make(map[string]int64, len(latency))
	for bucket, count := range latency {
		latencyDist[string(bucket)] = count
	}

	output := &StatsQueriesOutput{
		Summary: StatsQueriesSummary{
			TotalQueries: total,
		},
		QueryTypeCounts:     queryTypeCounts,
		TopTerms:            make([]StatsTermCount, 0, len(topTerms)),
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: latencyDist,
	}
	if total > 0 {
		output.Summary.ZeroResultPct = float64(len(zeroResults)) / float64(total) * 100
	}

	for _, tc := range topTerms {
		output.TopTerms = append(output.TopTerms, StatsTermCount{Term: tc.Term, Count: tc.Count})
	}

	return output, nil
}

func printStatsJSON(cmd *cobra.Command, output *StatsQueriesOutput) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func printStatsFormatted(cmd *cobra.Command, output *StatsQueriesOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Query Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Queries: %d\n", output.Summary.TotalQueries)
	fmt.Fprintf(w, "Zero Results:  %.1f%%\n", output.Summary.ZeroResultPct)
	fmt.Fprintln(w)

	if len(output.QueryTypeCounts) > 0 {
		fmt.Fprintln(w, "Query Type Distribution:")
		for _, qt := range []string{"lexical", "semantic", "mixed"} {
			if count, ok := output.QueryTypeCounts[qt]; ok {
				fmt.Fprintf(w, "  %s: %d\n", qt, count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(output.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range output.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
		fmt.Fprintln(w)
	}

	if len(output.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range output.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
		fmt.Fprintln(w)
	}

	if len(output.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		buckets := []string{"p10", "p50", "p100", "p500", "p1000"}
		labels := map[string]string{
			"p10":   "<10ms",
			"p50":   "10-50ms",
			"p100":  "50-100ms",
			"p500":  "100-500ms",
			"p1000": ">=500ms",
		}
		for _, b := range buckets {
			if count, ok := output.LatencyDistribution[b]; ok {
				fmt.Fprintf(w, "  %s: %d\n", labels[b], count)
			}
		}
	}

	return nil
}
