package council

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/council/internal/model"
)

func councilRegistry() *model.CategoryRegistry {
	return model.NewCategoryRegistry([]model.Category{
		{ID: "winner", PredType: model.PredBinary, Binary: [2]string{"HOME", "AWAY"}},
		{ID: "total_points", PredType: model.PredNumeric, Range: &model.NumericRange{Min: 0, Max: 160}},
		{ID: "win_probability", PredType: model.PredPercentage},
	})
}

func statsFor(expertID string, catAcc float64) model.ExpertStats {
	return model.ExpertStats{
		ExpertID:         expertID,
		AccOverall:       0.7,
		RecentTrend:      0.5,
		Calibration:      0.6,
		CategoryAccuracy: map[string]float64{"winner": catAcc, "total_points": catAcc, "win_probability": catAcc},
		Eligible:         true,
	}
}

func bundleFor(expertID, winner string, total, winProb float64) model.PredictionBundle {
	return model.PredictionBundle{
		RunID:       "run-1",
		GameID:      "game-1",
		ExpertID:    expertID,
		SchemaValid: true,
		CreatedAt:   time.Now(),
		Assertions: map[string]model.Assertion{
			"winner":          {CategoryID: "winner", Value: winner, Confidence: 0.7},
			"total_points":    {CategoryID: "total_points", Value: total, Confidence: 0.6},
			"win_probability": {CategoryID: "win_probability", Value: winProb, Confidence: 0.6},
		},
	}
}

func TestAggregate_InsufficientQuorumWhenNoContributors(t *testing.T) {
	out := Aggregate(councilRegistry(), nil, nil)
	assert.True(t, out.InsufficientQuorum)
	assert.Empty(t, out.Categories)
}

func TestAggregate_ExcludesSchemaInvalidBundles(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.8)}
	b := bundleFor("a", "HOME", 45, 0.6)
	b.SchemaValid = false
	out := Aggregate(councilRegistry(), council, map[string]model.PredictionBundle{"a": b})
	assert.True(t, out.InsufficientQuorum)
}

func TestAggregate_BinaryMajorityWins(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.9), statsFor("b", 0.9), statsFor("c", 0.1)}
	bundles := map[string]model.PredictionBundle{
		"a": bundleFor("a", "HOME", 45, 0.6),
		"b": bundleFor("b", "HOME", 47, 0.65),
		"c": bundleFor("c", "AWAY", 40, 0.3),
	}
	out := Aggregate(councilRegistry(), council, bundles)
	require.False(t, out.InsufficientQuorum)
	winner := out.Categories["winner"]
	assert.Equal(t, "HOME", winner.Value)
	assert.Greater(t, winner.AgreementMass, 0.5)
	assert.Len(t, winner.Dissenters, 1)
	assert.Equal(t, "c", winner.Dissenters[0].ExpertID)
}

func TestAggregate_WeightsRenormaliseToOne(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.9), statsFor("b", 0.3)}
	bundles := map[string]model.PredictionBundle{
		"a": bundleFor("a", "HOME", 45, 0.6),
		"b": bundleFor("b", "AWAY", 40, 0.3),
	}
	out := Aggregate(councilRegistry(), council, bundles)
	var sum float64
	for _, w := range out.Categories["winner"].Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAggregate_NumericWeightedMeanAndStdev(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.5), statsFor("b", 0.5)}
	bundles := map[string]model.PredictionBundle{
		"a": bundleFor("a", "HOME", 40, 0.5),
		"b": bundleFor("b", "HOME", 50, 0.5),
	}
	out := Aggregate(councilRegistry(), council, bundles)
	tp := out.Categories["total_points"]
	assert.InDelta(t, 45.0, tp.Value.(float64), 1e-6)
	require.NotNil(t, tp.Stdev)
	assert.Greater(t, *tp.Stdev, 0.0)
}

func TestAggregate_PercentageClippedToUnitInterval(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.9)}
	bundles := map[string]model.PredictionBundle{
		"a": bundleFor("a", "HOME", 45, 1.4),
	}
	out := Aggregate(councilRegistry(), council, bundles)
	wp := out.Categories["win_probability"]
	assert.InDelta(t, 1.0, wp.Value.(float64), 1e-9)
}

func TestAggregate_ContributingExpertsSortedByID(t *testing.T) {
	council := []model.ExpertStats{statsFor("zeta", 0.5), statsFor("alpha", 0.5)}
	bundles := map[string]model.PredictionBundle{
		"zeta":  bundleFor("zeta", "HOME", 45, 0.5),
		"alpha": bundleFor("alpha", "HOME", 45, 0.5),
	}
	out := Aggregate(councilRegistry(), council, bundles)
	assert.Equal(t, []string{"alpha", "zeta"}, out.ContributingExperts)
}

func TestAggregate_SkipsCategoryWithNoAssertions(t *testing.T) {
	council := []model.ExpertStats{statsFor("a", 0.5)}
	b := bundleFor("a", "HOME", 45, 0.5)
	delete(b.Assertions, "total_points")
	out := Aggregate(councilRegistry(), council, map[string]model.PredictionBundle{"a": b})
	_, ok := out.Categories["total_points"]
	assert.False(t, ok)
}
