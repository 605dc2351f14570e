package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/usecase"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRun(w io.Writer, run *domain.RunResult, asJSON bool) error {
	if asJSON {
		return printJSON(w, run)
	}
	fmt.Fprintf(w, "Run %s (%s)\n", run.RunID, run.Name)
	fmt.Fprintf(w, "Questions: %d evaluated, %d failed of %d. Average score %.3f\n\n",
		run.Summary.Evaluated, run.Summary.Failed, run.Summary.TestSize, run.Summary.AvgScore)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tMEAN\tCOUNT\tEXCLUDED")
	for _, name := range sortedKeys(run.MetricStats) {
		stat := run.MetricStats[name]
		fmt.Fprintf(tw, "%s\t%.3f\t%d\t%d\n", name, stat.Mean, stat.Count, stat.Excluded)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(run.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, f := range run.Failures {
			fmt.Fprintf(w, "  %s [%s] %s\n", f.QuestionID, f.Stage, f.Error)
		}
	}
	return nil
}

func printComparison(w io.Writer, cmp *domain.ComparisonResult, asJSON bool) error {
	if asJSON {
		return printJSON(w, cmp)
	}
	fmt.Fprintf(w, "Baseline %s vs enhanced %s\n\n", cmp.BaselineRunID, cmp.EnhancedRunID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tBASELINE\tENHANCED\tDELTA\tSTATUS")
	for _, name := range sortedKeys(cmp.PerMetric) {
		m := cmp.PerMetric[name]
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%s\t%s\n", name, m.Baseline, m.Enhanced, m.DeltaPct, m.Status)
	}
	fmt.Fprintf(tw, "avg_score\t%.3f\t%.3f\t\t\n", cmp.BaselineAvgScore, cmp.EnhancedAvgScore)
	if err := tw.Flush(); err != nil {
		return err
	}

	verdict := "not met"
	if cmp.TargetMet {
		verdict = "met"
	}
	fmt.Fprintf(w, "\n%d of %d metrics improved by at least %.0f%%; target %s",
		cmp.AchievedCount, len(cmp.PerMetric), cmp.ThresholdPct, verdict)
	if cmp.BestMetric != "" {
		fmt.Fprintf(w, "; best metric %s", cmp.BestMetric)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func printEvaluation(w io.Writer, ev *usecase.Evaluation, asJSON bool) error {
	if asJSON {
		return printJSON(w, ev)
	}
	for _, run := range []*domain.RunResult{ev.Baseline, ev.Enhanced} {
		if run == nil {
			continue
		}
		if err := printRun(w, run, false); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if ev.Comparison == nil {
		return nil
	}
	return printComparison(w, ev.Comparison, false)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
