package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

const (
	defaultThresholdPct       = 30.0
	defaultMinMetricsAchieved = 1

	strongDeltaPct = 20.0
	goodDeltaPct   = 10.0

	// deltaPrecision strips floating point noise so that 0.5 -> 0.65 is
	// exactly +30%.
	deltaPrecision = 1e9
)

type ComparisonEngine struct {
	thresholdPct       float64
	minMetricsAchieved int
}

// NewComparisonEngine falls back to the default threshold only when
// thresholdPct is unset.
func NewComparisonEngine(thresholdPct float64, minMetricsAchieved int) *ComparisonEngine {
	if thresholdPct == 0 {
		thresholdPct = defaultThresholdPct
	}
	if minMetricsAchieved <= 0 {
		minMetricsAchieved = defaultMinMetricsAchieved
	}
	return &ComparisonEngine{thresholdPct: thresholdPct, minMetricsAchieved: minMetricsAchieved}
}

// Aggregate computes per-metric means over the records in which the metric
// was computable. Records with the metric absent count as excluded.
func Aggregate(records []domain.EvaluationRecord, failures []domain.QuestionFailure) (map[string]domain.MetricSummary, domain.RunSummary) {
	names := make(map[string]struct{})
	for _, rec := range records {
		for name := range rec.Scores {
			names[name] = struct{}{}
		}
		for name := range rec.MetricFailures {
			names[name] = struct{}{}
		}
	}

	stats := make(map[string]domain.MetricSummary, len(names))
	for name := range names {
		var sum float64
		count := 0
		for _, rec := range records {
			if v, ok := rec.Scores[name]; ok {
				sum += v
				count++
			}
		}
		summary := domain.MetricSummary{Count: count, Excluded: len(records) - count}
		if count > 0 {
			summary.Mean = sum / float64(count)
		}
		stats[name] = summary
	}

	return stats, domain.RunSummary{
		AvgScore:  averageOfMeans(stats),
		TestSize:  len(records) + len(failures),
		Evaluated: len(records),
		Failed:    len(failures),
	}
}

// MetricMeans flattens summaries to the metrics that have at least one value.
func MetricMeans(stats map[string]domain.MetricSummary) map[string]float64 {
	out := make(map[string]float64, len(stats))
	for name, s := range stats {
		if s.Count > 0 {
			out[name] = s.Mean
		}
	}
	return out
}

func averageOfMeans(stats map[string]domain.MetricSummary) float64 {
	names := sortedMetricNames(stats)
	var sum float64
	n := 0
	for _, name := range names {
		if stats[name].Count > 0 {
			sum += stats[name].Mean
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Compare computes per-metric deltas for the metrics present in both runs.
func (c *ComparisonEngine) Compare(baseline, enhanced *domain.RunResult) (*domain.ComparisonResult, error) {
	if baseline == nil || len(baseline.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNoSuccessfulRecords, "compare", runLabel(baseline, domain.PipelineBaseline))
	}
	if enhanced == nil || len(enhanced.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNoSuccessfulRecords, "compare", runLabel(enhanced, domain.PipelineEnhanced))
	}

	baseStats := statsOf(baseline)
	enhStats := statsOf(enhanced)

	result := &domain.ComparisonResult{
		BaselineRunID:      baseline.RunID,
		EnhancedRunID:      enhanced.RunID,
		ThresholdPct:       c.thresholdPct,
		MinMetricsAchieved: c.minMetricsAchieved,
		PerMetric:          make(map[string]domain.MetricComparison),
		BaselineAvgScore:   averageOfMeans(baseStats),
		EnhancedAvgScore:   averageOfMeans(enhStats),
	}

	bestDelta := math.Inf(-1)
	for _, name := range sortedMetricNames(baseStats) {
		b := baseStats[name]
		e, ok := enhStats[name]
		if !ok || b.Count == 0 || e.Count == 0 {
			continue
		}
		delta := percentDelta(b.Mean, e.Mean)
		achieved := delta.Defined && delta.Value >= c.thresholdPct
		result.PerMetric[name] = domain.MetricComparison{
			Baseline: b.Mean,
			Enhanced: e.Mean,
			DeltaPct: delta,
			Achieved: achieved,
			Status:   c.status(delta),
		}
		if achieved {
			result.AchievedCount++
		}
		if delta.Defined && delta.Value > bestDelta {
			bestDelta = delta.Value
			result.BestMetric = name
		}
	}
	result.TargetMet = result.AchievedCount >= c.minMetricsAchieved
	return result, nil
}

func (c *ComparisonEngine) status(delta domain.Delta) domain.ComparisonStatus {
	switch {
	case !delta.Defined:
		return domain.StatusUndefined
	case delta.Value >= c.thresholdPct:
		return domain.StatusTargetMet
	case delta.Value >= strongDeltaPct:
		return domain.StatusStrong
	case delta.Value >= goodDeltaPct:
		return domain.StatusGood
	case delta.Value >= 0:
		return domain.StatusMinor
	default:
		return domain.StatusDecreased
	}
}

func percentDelta(baseline, enhanced float64) domain.Delta {
	if baseline == 0 {
		return domain.UndefinedDelta()
	}
	raw := (enhanced - baseline) / baseline * 100
	return domain.DefinedDelta(math.Round(raw*deltaPrecision) / deltaPrecision)
}

// statsOf prefers the stored summaries and recomputes them for runs that
// carry only records.
func statsOf(run *domain.RunResult) map[string]domain.MetricSummary {
	if len(run.MetricStats) > 0 {
		return run.MetricStats
	}
	stats, _ := Aggregate(run.Records, run.Failures)
	return stats
}

func sortedMetricNames(stats map[string]domain.MetricSummary) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runLabel(run *domain.RunResult, role string) error {
	if run == nil {
		return fmt.Errorf("%s run is missing", role)
	}
	return fmt.Errorf("%s run %q", role, run.RunID)
}
