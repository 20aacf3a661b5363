package report

import (
	"connbench/benchmark"
	"connbench/worker"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/montanaflynn/stats"
)

// Summary statistics of one scenario; times in milliseconds
type Summary struct {
	Name     string
	Strategy benchmark.Strategy
	Query    benchmark.Complexity
	N        int
	Mean     float64
	StdDev   float64 // sample standard deviation
	StdErr   float64
	Median   float64
	P95      float64
	Min      float64
	Max      float64
	Ratio    float64 // fresh mean / reused mean for the same query, 0 when unknown
	Failed   bool
	Error    string
}

// Describes the run in the report header
type Run struct {
	ID      string
	Driver  string
	Server  string
	Catalog string
	Policy  worker.Policy
	Configs map[string]string
}

func Summarize(result *worker.Result) Summary {
	summary := Summary{
		Name:     result.Scenario.Name,
		Strategy: result.Scenario.Strategy,
		Query:    result.Scenario.Query,
		N:        len(result.Metric.Rts),
		Failed:   result.Failed(),
	}
	if summary.Failed {
		summary.Error = result.Metric.Err.Error()
	}
	if summary.N == 0 {
		return summary
	}

	data := make(stats.Float64Data, 0, summary.N)
	for _, rt := range result.Metric.Rts {
		data = append(data, rt*1000)
	}

	// errors only happen on empty input
	summary.Mean, _ = stats.Mean(data)
	summary.Median, _ = stats.Median(data)
	summary.Min, _ = stats.Min(data)
	summary.Max, _ = stats.Max(data)
	summary.P95, _ = stats.Percentile(data, 95)
	if summary.N > 1 {
		summary.StdDev, _ = stats.StandardDeviationSample(data)
		summary.StdErr = summary.StdDev / math.Sqrt(float64(summary.N))
	}

	return summary
}

// Summarizes every result and fills the fresh/reused ratios
func SummarizeAll(results []*worker.Result) []Summary {
	summaries := make([]Summary, 0, len(results))
	reusedMeans := map[benchmark.Complexity]float64{}

	for _, r := range results {
		s := Summarize(r)
		if s.Strategy == benchmark.Reused && s.N > 0 && !s.Failed {
			reusedMeans[s.Query] = s.Mean
		}
		summaries = append(summaries, s)
	}

	for i := range summaries {
		s := &summaries[i]
		reused, ok := reusedMeans[s.Query]
		if s.Strategy == benchmark.Fresh && ok && reused > 0 && s.N > 0 && !s.Failed {
			s.Ratio = s.Mean / reused
		}
	}

	return summaries
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// Writes the summary table followed by the Csv lines
func Print(w io.Writer, run Run, results []*worker.Result) {
	summaries := SummarizeAll(results)

	fmt.Fprintf(w, "run: %s\ndriver: %s\nserver: %s\ncatalog: %s\nwarmup: %d\niterations: %d\n",
		run.ID, run.Driver, run.Server, run.Catalog, run.Policy.Warmup, run.Policy.Iterations)

	// benchmark-specific configs
	configs := make([]string, 0, len(run.Configs))
	for k := range run.Configs {
		configs = append(configs, k)
	}
	sort.Strings(configs)
	for _, k := range configs {
		fmt.Fprintf(w, "%s: %s\n", k, run.Configs[k])
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Scenario", "Strategy", "Query", "N", "Mean (ms)", "StdDev", "StdErr",
			"Median", "P95", "Min", "Max", "Fresh/Reused")

	for _, s := range summaries {
		if s.Failed && s.N == 0 {
			t.Row(s.Name, s.Strategy.String(), s.Query.String(), "0", "FAILED", "", "", "", "", "", "", "")
		} else {
			mean := formatMs(s.Mean)
			if s.Failed {
				mean += " (FAILED)"
			}
			ratio := ""
			if s.Ratio > 0 {
				ratio = fmt.Sprintf("%.2fx", s.Ratio)
			}
			t.Row(s.Name, s.Strategy.String(), s.Query.String(), fmt.Sprint(s.N), mean,
				formatMs(s.StdDev), formatMs(s.StdErr), formatMs(s.Median), formatMs(s.P95),
				formatMs(s.Min), formatMs(s.Max), ratio)
		}
	}
	fmt.Fprintln(w, t.Render())

	for _, s := range summaries {
		if s.Failed {
			fmt.Fprintf(w, "error: %s: %s\n", s.Name, s.Error)
		}
	}
	for _, r := range results {
		if r.TeardownErr != nil {
			fmt.Fprintf(w, "teardown: %s: %v\n", r.Scenario.Name, r.TeardownErr)
		}
	}

	fmt.Fprintln(w, "Csv:run,driver,warmup,iterations,scenario,strategy,query,n,mean,stddev,stderr,median,p95,min,max,ratio,failed")
	prefix := strings.Join([]string{run.ID, run.Driver, fmt.Sprint(run.Policy.Warmup), fmt.Sprint(run.Policy.Iterations)}, ",")
	for _, s := range summaries {
		fmt.Fprintf(w, "Csv:%s,%s,%s,%s,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%t\n",
			prefix, s.Name, s.Strategy, s.Query, s.N, s.Mean, s.StdDev, s.StdErr, s.Median, s.P95,
			s.Min, s.Max, s.Ratio, s.Failed)
	}
}
