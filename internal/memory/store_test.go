package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
)

func candidate(similarity float64, ageDays float64) storage.CandidateMemory {
	return storage.CandidateMemory{
		Memory: model.EpisodicMemory{
			MemoryID:  uuid.New(),
			CreatedAt: time.Now().Add(-time.Duration(ageDays*24) * time.Hour),
		},
		Similarity: similarity,
	}
}

func TestRescoreCandidates_BlendsSimilarityAndDecay(t *testing.T) {
	// At equal similarity, the fresher memory should rank above one that has
	// aged well past the half-life, per eq. (2).
	fresh := candidate(0.9, 0)
	stale := candidate(0.9, 60)

	out := rescoreCandidates([]storage.CandidateMemory{stale, fresh}, KMax, nil, 0.5, 0.5, 14)

	if assert.Len(t, out, 2) {
		assert.Equal(t, fresh.Memory.MemoryID, out[0].Memory.MemoryID, "fresher memory should rank first")
		assert.Greater(t, out[0].RankScore, out[1].RankScore)
	}
}

func TestRescoreCandidates_AlphaOneIgnoresAge(t *testing.T) {
	// alpha=1, beta=0 should make RankScore track similarity exactly,
	// regardless of age.
	fresh := candidate(0.6, 0)
	stale := candidate(0.9, 400)

	out := rescoreCandidates([]storage.CandidateMemory{fresh, stale}, KMax, nil, 1.0, 0.0, 14)

	if assert.Len(t, out, 2) {
		assert.Equal(t, stale.Memory.MemoryID, out[0].Memory.MemoryID)
		assert.InDelta(t, 0.9, out[0].RankScore, 1e-9)
		assert.InDelta(t, 0.6, out[1].RankScore, 1e-9)
	}
}

func TestRescoreCandidates_TruncatesToLimit(t *testing.T) {
	candidates := make([]storage.CandidateMemory, 0, KMax+5)
	for i := 0; i < KMax+5; i++ {
		candidates = append(candidates, candidate(0.5, float64(i)))
	}

	out := rescoreCandidates(candidates, KMax, nil, 0.5, 0.5, 14)

	assert.Len(t, out, KMax)
}

func TestRescoreCandidates_RecordsRelaxedFilters(t *testing.T) {
	c := candidate(0.7, 3)

	out := rescoreCandidates([]storage.CandidateMemory{c}, KMax, []string{"recency", "team"}, 0.5, 0.5, 14)

	if assert.Len(t, out, 1) {
		assert.Equal(t, []string{"recency", "team"}, out[0].RelaxedFilters)
	}
}

func TestRescoreCandidates_Empty(t *testing.T) {
	out := rescoreCandidates(nil, KMax, nil, 0.5, 0.5, 14)
	assert.Empty(t, out)
}

func TestSortRanked_DescendingByScore(t *testing.T) {
	rm := []model.RankedMemory{
		{RankScore: 0.2},
		{RankScore: 0.9},
		{RankScore: 0.5},
	}

	sortRanked(rm)

	assert.Equal(t, 0.9, rm[0].RankScore)
	assert.Equal(t, 0.5, rm[1].RankScore)
	assert.Equal(t, 0.2, rm[2].RankScore)
}

func TestSortRanked_SingleAndEmpty(t *testing.T) {
	assert.NotPanics(t, func() { sortRanked(nil) })
	assert.NotPanics(t, func() { sortRanked([]model.RankedMemory{{RankScore: 1}}) })
}

func TestQuery_ResolveTemporal_DefaultsWhenUnset(t *testing.T) {
	alpha, beta, halfLife := Query{}.resolveTemporal()
	assert.Equal(t, 0.5, alpha)
	assert.Equal(t, 0.5, beta)
	assert.Equal(t, float64(EqualWeightHalfLifeDays), halfLife)
}

func TestQuery_ResolveTemporal_UsesCallerValues(t *testing.T) {
	alpha, beta, halfLife := Query{Alpha: 0.7, Beta: 0.3, HalfLifeDays: 21}.resolveTemporal()
	assert.Equal(t, 0.7, alpha)
	assert.Equal(t, 0.3, beta)
	assert.Equal(t, 21.0, halfLife)
}
