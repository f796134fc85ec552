// Package stats computes the rolling-window performance inputs to council
// selection and consensus weighting (§4.7): model.ExpertStats, read from the
// calibration buckets, per-week accuracy ledger, and eligibility gate that
// internal/outcome maintains as games are graded. Compute is the one
// producer of ExpertStats; internal/council treats it as an opaque input and
// does no I/O of its own.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
)

// Provider computes ExpertStats from persisted calibration/accuracy state.
type Provider struct {
	db *storage.DB
}

// NewProvider creates a Provider bound to the storage layer.
func NewProvider(db *storage.DB) *Provider {
	return &Provider{db: db}
}

// Compute builds one expert's ExpertStats for a run, over the trailing
// windowWeeks of graded games. registry supplies which categories are
// binary/enum (accuracy-graded) vs numeric/percentage (error-graded);
// focus is the expert's AnalyticalFocus, used to weight Specialisation
// toward the categories this expert is tuned to care about.
func (p *Provider) Compute(ctx context.Context, runID, expertID string, registry *model.CategoryRegistry, focus map[string]float64, windowWeeks int) (model.ExpertStats, error) {
	gate, err := p.db.GetEligibilityGate(ctx, runID, expertID)
	if err != nil {
		return model.ExpertStats{}, fmt.Errorf("stats: get eligibility gate: %w", err)
	}

	catAcc := make(map[string]float64)
	var accSum, calSum float64
	var accCount int
	for _, cat := range registry.All() {
		if cat.PredType != model.PredBinary && cat.PredType != model.PredEnum {
			continue
		}
		bucket, err := p.db.GetCalibrationBucket(ctx, runID, expertID, cat.ID)
		if err != nil {
			return model.ExpertStats{}, fmt.Errorf("stats: get calibration bucket %s: %w", cat.ID, err)
		}
		mean := betaMean(bucket.Alpha, bucket.Beta)
		catAcc[cat.ID] = mean
		accSum += mean
		calSum += 1 - 4*betaVariance(bucket.Alpha, bucket.Beta)
		accCount++
	}

	var accOverall, calibration float64
	if accCount > 0 {
		accOverall = accSum / float64(accCount)
		calibration = clip01(calSum / float64(accCount))
	}

	weeks, err := p.db.ListRecentWeekAccuracy(ctx, runID, expertID, windowWeeks)
	if err != nil {
		return model.ExpertStats{}, fmt.Errorf("stats: list recent week accuracy: %w", err)
	}
	trend, consistency := trendAndConsistency(weeks)

	return model.ExpertStats{
		ExpertID:         expertID,
		AccOverall:       accOverall,
		RecentTrend:      trend,
		Consistency:      consistency,
		Calibration:      calibration,
		Specialisation:   specialisation(catAcc, focus, accOverall),
		CategoryAccuracy: catAcc,
		Eligible:         gate.Eligible,
	}, nil
}

func betaMean(alpha, beta float64) float64 {
	if alpha+beta == 0 {
		return 0
	}
	return alpha / (alpha + beta)
}

// betaVariance computes Var[Beta(alpha,beta)]. A fresh Beta(1,1) prior has
// variance 1/12 ≈ 0.083 — plausible-but-unproven accuracy, not yet a
// confident calibration signal.
func betaVariance(alpha, beta float64) float64 {
	sum := alpha + beta
	if sum <= 0 {
		return 0
	}
	return (alpha * beta) / (sum * sum * (sum + 1))
}

// trendAndConsistency derives eq. 3's RecentTrend and Consistency terms from
// the expert's weekly accuracy series (oldest first). RecentTrend is the
// least-squares slope of accuracy over week index, clipped to [-1,1] then
// rescaled to [0,1]; Consistency is 1 minus the series' normalised variance.
// Fewer than two weeks of history yields neutral 0.5 for both — there isn't
// enough signal yet to call a trend or measure spread.
func trendAndConsistency(weeks []model.WeekAccuracy) (trend, consistency float64) {
	if len(weeks) < 2 {
		return 0.5, 0.5
	}

	accuracies := make([]float64, len(weeks))
	for i, w := range weeks {
		accuracies[i] = w.Accuracy()
	}

	slope := leastSquaresSlope(accuracies)
	clippedSlope := math.Max(-1, math.Min(1, slope*float64(len(accuracies))))
	trend = clip01(0.5 + clippedSlope/2)

	consistency = clip01(1 - 4*variance(accuracies))
	return trend, consistency
}

func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return sumSq / float64(len(xs))
}

// specialisation weights category accuracy by the expert's analytical focus
// (§3 Expert.analytical_focus), falling back to the overall accuracy when no
// focus weight is declared for any graded category.
func specialisation(catAcc map[string]float64, focus map[string]float64, fallback float64) float64 {
	if len(focus) == 0 || len(catAcc) == 0 {
		return fallback
	}

	var weightedSum, weightSum float64
	for _, factor := range sortedKeys(focus) {
		acc, ok := catAcc[factor]
		if !ok {
			continue
		}
		w := focus[factor]
		weightedSum += w * acc
		weightSum += w
	}
	if weightSum == 0 {
		return fallback
	}
	return weightedSum / weightSum
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
