package council

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/council/internal/model"
)

func TestSelect_ExcludesIneligibleExperts(t *testing.T) {
	stats := []model.ExpertStats{
		{ExpertID: "a", AccOverall: 0.9, Eligible: true},
		{ExpertID: "b", AccOverall: 0.95, Eligible: false},
	}
	out := Select(stats, 5)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ExpertID)
}

func TestSelect_TopNByCompositeScore(t *testing.T) {
	stats := []model.ExpertStats{
		{ExpertID: "a", AccOverall: 0.8, RecentTrend: 0.5, Consistency: 0.5, Calibration: 0.5, Specialisation: 0.5, Eligible: true},
		{ExpertID: "b", AccOverall: 0.9, RecentTrend: 0.9, Consistency: 0.9, Calibration: 0.9, Specialisation: 0.9, Eligible: true},
		{ExpertID: "c", AccOverall: 0.1, RecentTrend: 0.1, Consistency: 0.1, Calibration: 0.1, Specialisation: 0.1, Eligible: true},
	}
	out := Select(stats, 2)
	assert.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ExpertID)
	assert.Equal(t, "a", out[1].ExpertID)
}

func TestSelect_DeterministicTieBreak(t *testing.T) {
	stats := []model.ExpertStats{
		{ExpertID: "zeta", AccOverall: 0.5, Eligible: true},
		{ExpertID: "alpha", AccOverall: 0.5, Eligible: true},
	}
	out := Select(stats, 5)
	require := assert.New(t)
	require.Len(out, 2)
	require.Equal("alpha", out[0].ExpertID, "equal selection score and accuracy must tie-break on expert_id ascending")
	require.Equal("zeta", out[1].ExpertID)
}

func TestSelect_DefaultsCouncilSizeWhenNonPositive(t *testing.T) {
	stats := make([]model.ExpertStats, 0, 7)
	for i := 0; i < 7; i++ {
		stats = append(stats, model.ExpertStats{ExpertID: string(rune('a' + i)), AccOverall: float64(i), Eligible: true})
	}
	out := Select(stats, 0)
	assert.Len(t, out, DefaultCouncilSize)
}

func TestExpertStats_SelectionScoreMatchesFormula(t *testing.T) {
	s := model.ExpertStats{
		AccOverall:     0.8,
		RecentTrend:    0.6,
		Consistency:    0.7,
		Calibration:    0.9,
		Specialisation: 0.4,
	}
	want := 0.35*0.8 + 0.25*0.6 + 0.20*0.7 + 0.10*0.9 + 0.10*0.4
	assert.InDelta(t, want, s.SelectionScore(), 1e-9)
}

func TestExpertStats_VoteWeightMatchesFormula(t *testing.T) {
	s := model.ExpertStats{
		AccOverall:       0.8,
		RecentTrend:      0.6,
		Calibration:      0.9,
		CategoryAccuracy: map[string]float64{"winner": 0.75},
	}
	want := 0.40*0.75 + 0.30*0.8 + 0.20*0.6 + 0.10*0.9
	assert.InDelta(t, want, s.VoteWeight("winner"), 1e-9)
}

func TestExpertStats_VoteWeightDropsCategoryTermForUnscoredCategory(t *testing.T) {
	s := model.ExpertStats{AccOverall: 0.8, RecentTrend: 0.6, Calibration: 0.9}
	want := 0.30*0.8 + 0.20*0.6 + 0.10*0.9
	assert.InDelta(t, want, s.VoteWeight("never_scored"), 1e-9)
}
