package council

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ashita-ai/council/internal/model"
)

// Aggregate builds a ConsensusBundle from the council's bundles for one
// game. Bundles that are ineligible or schema_valid=false are excluded from
// every weighted sum (§4.7). If no council member contributes a usable
// bundle at all, the result has InsufficientQuorum=true and no categories —
// callers must treat this as the ConsensusEmpty condition (§7) and never
// surface it as an authoritative prediction.
func Aggregate(registry *model.CategoryRegistry, council []model.ExpertStats, bundles map[string]model.PredictionBundle) model.ConsensusBundle {
	result := model.ConsensusBundle{
		CreatedAt:  time.Now().UTC(),
		Categories: make(map[string]model.CategoryConsensus),
	}

	type contributor struct {
		stats  model.ExpertStats
		bundle model.PredictionBundle
	}
	contributors := make([]contributor, 0, len(council))
	for _, s := range council {
		b, ok := bundles[s.ExpertID]
		if !ok || !b.SchemaValid {
			continue
		}
		contributors = append(contributors, contributor{stats: s, bundle: b})
	}
	sort.Slice(contributors, func(i, j int) bool {
		return contributors[i].stats.ExpertID < contributors[j].stats.ExpertID
	})

	if len(contributors) == 0 {
		result.InsufficientQuorum = true
		return result
	}

	if len(contributors) > 0 {
		result.RunID = contributors[0].bundle.RunID
		result.GameID = contributors[0].bundle.GameID
	}
	for _, c := range contributors {
		result.ContributingExperts = append(result.ContributingExperts, c.stats.ExpertID)
	}

	for _, cat := range registry.All() {
		var votes []vote
		for _, c := range contributors {
			a, ok := c.bundle.Assertions[cat.ID]
			if !ok {
				continue
			}
			w := c.stats.VoteWeight(cat.ID)
			if w <= 0 {
				continue
			}
			votes = append(votes, vote{expertID: c.stats.ExpertID, value: a.Value, confidence: a.Confidence, weight: w})
		}
		if len(votes) == 0 {
			continue
		}

		var totalWeight float64
		for _, v := range votes {
			totalWeight += v.weight
		}
		if totalWeight <= 0 {
			continue
		}
		weights := make(map[string]float64, len(votes))
		for i := range votes {
			votes[i].weight /= totalWeight
			weights[votes[i].expertID] = votes[i].weight
		}

		var cc model.CategoryConsensus
		switch cat.PredType {
		case model.PredBinary, model.PredEnum:
			cc = aggregateDiscrete(cat.ID, votes, weights)
		default:
			cc = aggregateNumeric(cat.ID, votes, weights, cat.PredType == model.PredPercentage)
		}
		result.Categories[cat.ID] = cc
	}

	return result
}

// vote is one contributing expert's weighted assertion for a single
// category, after per-category renormalisation.
type vote struct {
	expertID   string
	value      any
	confidence float64
	weight     float64
}

func aggregateDiscrete(categoryID string, votes []vote, weights map[string]float64) model.CategoryConsensus {
	mass := make(map[string]float64)
	confSum := make(map[string]float64)
	confCount := make(map[string]int)
	for _, v := range votes {
		key := fmt.Sprintf("%v", v.value)
		mass[key] += v.weight
		confSum[key] += v.confidence
		confCount[key]++
	}

	var winnerKey string
	var winnerValue any
	var winnerMass float64
	var winnerAvgConf float64
	keysSorted := sortedKeys(mass)
	for _, k := range keysSorted {
		m := mass[k]
		avgConf := confSum[k] / float64(confCount[k])
		better := winnerKey == "" ||
			m > winnerMass ||
			(m == winnerMass && avgConf > winnerAvgConf) ||
			(m == winnerMass && avgConf == winnerAvgConf && k < winnerKey)
		if better {
			winnerKey = k
			winnerMass = m
			winnerAvgConf = avgConf
			for _, v := range votes {
				if fmt.Sprintf("%v", v.value) == k {
					winnerValue = v.value
					break
				}
			}
		}
	}

	var weightedConf float64
	for _, v := range votes {
		weightedConf += v.weight * v.confidence
	}

	dissenters := topDissenters(votes, winnerKey, 2)
	explanation := fmt.Sprintf(
		"Council favours %v with weight %.2f; %s",
		winnerValue, winnerMass, dissentSentence(dissenters),
	)

	return model.CategoryConsensus{
		CategoryID:    categoryID,
		Value:         winnerValue,
		AgreementMass: winnerMass,
		Confidence:    weightedConf,
		Weights:       weights,
		Dissenters:    dissenters,
		Explanation:   explanation,
	}
}

func aggregateNumeric(categoryID string, votes []vote, weights map[string]float64, isPercentage bool) model.CategoryConsensus {
	var mean, weightedConf float64
	for _, v := range votes {
		f, _ := asFloat(v.value)
		mean += v.weight * f
		weightedConf += v.weight * v.confidence
	}
	if isPercentage {
		mean = math.Max(0, math.Min(mean, 1.0))
	}

	var variance float64
	for _, v := range votes {
		f, _ := asFloat(v.value)
		d := f - mean
		variance += v.weight * d * d
	}
	stdev := math.Sqrt(variance)

	dissenters := topDissentersNumeric(votes, mean, 2)
	explanation := fmt.Sprintf(
		"Council settles on %.2f (stdev %.2f); %s",
		mean, stdev, dissentSentence(dissenters),
	)

	return model.CategoryConsensus{
		CategoryID:  categoryID,
		Value:       mean,
		AgreementMass: 1.0,
		Stdev:       &stdev,
		Confidence:  weightedConf,
		Weights:     weights,
		Dissenters:  dissenters,
		Explanation: explanation,
	}
}

func topDissenters(votes []vote, winnerKey string, n int) []model.Dissent {
	var out []model.Dissent
	for _, v := range votes {
		if fmt.Sprintf("%v", v.value) == winnerKey {
			continue
		}
		out = append(out, model.Dissent{ExpertID: v.expertID, Value: v.value, Weight: v.weight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topDissentersNumeric(votes []vote, mean float64, n int) []model.Dissent {
	var out []model.Dissent
	for _, v := range votes {
		f, _ := asFloat(v.value)
		if math.Abs(f-mean) < 1e-9 {
			continue
		}
		out = append(out, model.Dissent{ExpertID: v.expertID, Value: v.value, Weight: v.weight})
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func dissentSentence(dissenters []model.Dissent) string {
	if len(dissenters) == 0 {
		return "no material dissent."
	}
	if len(dissenters) == 1 {
		return fmt.Sprintf("one dissent from %s with weight %.2f.", dissenters[0].ExpertID, dissenters[0].Weight)
	}
	return fmt.Sprintf("two dissents led by %s (weight %.2f) and %s (weight %.2f).",
		dissenters[0].ExpertID, dissenters[0].Weight, dissenters[1].ExpertID, dissenters[1].Weight)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
