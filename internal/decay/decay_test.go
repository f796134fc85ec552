package decay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecay_Boundaries(t *testing.T) {
	assert.InDelta(t, 1.0, Decay(0, 45), 1e-9)
	assert.InDelta(t, 0.5, Decay(45, 45), 1e-9)
}

func TestDecay_NegativeAgeClippedToZero(t *testing.T) {
	assert.InDelta(t, Decay(0, 45), Decay(-10, 45), 1e-12)
}

func TestDecay_MonotoneNonIncreasing(t *testing.T) {
	prev := Decay(0, 45)
	for age := 1.0; age <= 365; age++ {
		cur := Decay(age, 45)
		assert.LessOrEqualf(t, cur, prev, "decay must not increase with age (age=%v)", age)
		prev = cur
	}
}

// TestRankScore_S6 reproduces spec scenario S6: momentum_rider (H=45, a=0.4,
// b=0.6) at ages 30 and 180 days with sim=0.8.
func TestRankScore_S6MomentumRider(t *testing.T) {
	s30 := RankScore(0.8, 30, 0.4, 0.6, 45)
	s180 := RankScore(0.8, 180, 0.4, 0.6, 45)
	assert.InDelta(t, 0.697, s30, 0.01)
	assert.InDelta(t, 0.358, s180, 0.01)
	assert.Greater(t, s30, s180)
}

func TestRankScore_S6WeatherSpecialist(t *testing.T) {
	s30 := RankScore(0.8, 30, 0.4, 0.6, 730)
	s180 := RankScore(0.8, 180, 0.4, 0.6, 730)
	assert.InDelta(t, 0.903, s30, 0.01)
	assert.InDelta(t, 0.826, s180, 0.01, "long half-life memories lose little rank score over 150 days")
}

func TestRankScore_MonotoneInSimilarityAndAge(t *testing.T) {
	lo := RankScore(0.5, 10, 0.4, 0.6, 45)
	hi := RankScore(0.9, 10, 0.4, 0.6, 45)
	assert.Greater(t, hi, lo)

	young := RankScore(0.8, 5, 0.4, 0.6, 45)
	old := RankScore(0.8, 50, 0.4, 0.6, 45)
	assert.Greater(t, young, old)
}

func TestSeasonalHalfLife(t *testing.T) {
	assert.InDelta(t, 45*1.3, SeasonalHalfLife(45, 2, 1.3, 0.8), 1e-9)
	assert.InDelta(t, 45*0.8, SeasonalHalfLife(45, 14, 1.3, 0.8), 1e-9)
	assert.InDelta(t, 45.0, SeasonalHalfLife(45, 8, 1.3, 0.8), 1e-9)
}

func TestEffectiveLearningRate(t *testing.T) {
	lr := EffectiveLearningRate(0.05, 0, 45)
	assert.InDelta(t, 0.05, lr, 1e-9)
	lrOld := EffectiveLearningRate(0.05, 45, 45)
	assert.InDelta(t, 0.025, lrOld, 1e-9)
}
