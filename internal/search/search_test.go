package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/council/internal/model"
)

// TestReScore_FreshMemoryBarelyDiscounted verifies that a freshly formed
// memory (age 0) scores at full similarity, since decay(0, H) == 1.
func TestReScore_FreshMemoryBarelyDiscounted(t *testing.T) {
	id := uuid.New()
	memories := map[uuid.UUID]model.EpisodicMemory{
		id: {MemoryID: id, CreatedAt: time.Now()},
	}

	results := []Result{{MemoryID: id, Score: 0.9}}
	scored := ReScore(results, memories, 10, nil, 0.6, 0.4, 14)
	require.Len(t, scored, 1)
	// rank = 0.6*0.9 + 0.4*decay(0,14) = 0.6*0.9 + 0.4*1.0 = 0.94
	assert.InDelta(t, 0.94, scored[0].RankScore, 0.01)
}

// TestReScore_OldMemoryDiscountedByHalfLife verifies that a memory aged past
// its half-life scores lower than a fresh one at equal similarity.
func TestReScore_OldMemoryDiscountedByHalfLife(t *testing.T) {
	id := uuid.New()
	memories := map[uuid.UUID]model.EpisodicMemory{
		id: {MemoryID: id, CreatedAt: time.Now().Add(-60 * 24 * time.Hour)},
	}

	results := []Result{{MemoryID: id, Score: 0.9}}
	scored := ReScore(results, memories, 10, nil, 0.5, 0.5, 14)
	require.Len(t, scored, 1)
	assert.Less(t, scored[0].RankScore, 0.9*0.5+0.5)
}

// TestReScore_FresherMemoryOutranksOlderAtEqualSimilarity verifies ordering:
// given equal raw similarity, the less-decayed memory ranks first.
func TestReScore_FresherMemoryOutranksOlderAtEqualSimilarity(t *testing.T) {
	fresh := uuid.New()
	stale := uuid.New()

	memories := map[uuid.UUID]model.EpisodicMemory{
		fresh: {MemoryID: fresh, CreatedAt: time.Now()},
		stale: {MemoryID: stale, CreatedAt: time.Now().Add(-90 * 24 * time.Hour)},
	}

	results := []Result{
		{MemoryID: fresh, Score: 0.8},
		{MemoryID: stale, Score: 0.8},
	}

	scored := ReScore(results, memories, 10, nil, 0.5, 0.5, 14)
	require.Len(t, scored, 2)
	assert.Equal(t, fresh, scored[0].Memory.MemoryID)
}

// TestReScore_AlphaOneIgnoresAge verifies that alpha=1, beta=0 makes
// RankScore track raw similarity regardless of age, per eq. (2).
func TestReScore_AlphaOneIgnoresAge(t *testing.T) {
	fresh := uuid.New()
	stale := uuid.New()

	memories := map[uuid.UUID]model.EpisodicMemory{
		fresh: {MemoryID: fresh, CreatedAt: time.Now()},
		stale: {MemoryID: stale, CreatedAt: time.Now().Add(-365 * 24 * time.Hour)},
	}

	results := []Result{
		{MemoryID: fresh, Score: 0.7},
		{MemoryID: stale, Score: 0.9},
	}

	scored := ReScore(results, memories, 10, nil, 1.0, 0.0, 14)
	require.Len(t, scored, 2)
	assert.Equal(t, stale, scored[0].Memory.MemoryID, "alpha=1 should rank purely by similarity")
	assert.InDelta(t, 0.9, scored[0].RankScore, 1e-9)
	assert.InDelta(t, 0.7, scored[1].RankScore, 1e-9)
}

// TestReScore_DropsUnhydratedResults verifies that a Result whose memory row
// isn't present in the hydrated map (deleted, or not yet visible between ANN
// search and hydration) is silently skipped rather than erroring.
func TestReScore_DropsUnhydratedResults(t *testing.T) {
	present := uuid.New()
	missing := uuid.New()

	memories := map[uuid.UUID]model.EpisodicMemory{
		present: {MemoryID: present, CreatedAt: time.Now()},
	}

	results := []Result{
		{MemoryID: present, Score: 0.7},
		{MemoryID: missing, Score: 0.9},
	}

	scored := ReScore(results, memories, 10, nil, 0.5, 0.5, 14)
	require.Len(t, scored, 1)
	assert.Equal(t, present, scored[0].Memory.MemoryID)
}

// TestReScore_TruncatesToLimit verifies ReScore truncates the sorted result
// to at most `limit` entries.
func TestReScore_TruncatesToLimit(t *testing.T) {
	memories := make(map[uuid.UUID]model.EpisodicMemory)
	var results []Result
	for i := 0; i < 5; i++ {
		id := uuid.New()
		memories[id] = model.EpisodicMemory{MemoryID: id, CreatedAt: time.Now()}
		results = append(results, Result{MemoryID: id, Score: float32(i) / 10})
	}

	scored := ReScore(results, memories, 2, nil, 0.5, 0.5, 14)
	assert.Len(t, scored, 2)
}

// TestReScore_CarriesRelaxedFilters verifies the relaxedFilters slice passed
// in is attached to every scored memory unchanged.
func TestReScore_CarriesRelaxedFilters(t *testing.T) {
	id := uuid.New()
	memories := map[uuid.UUID]model.EpisodicMemory{
		id: {MemoryID: id, CreatedAt: time.Now()},
	}

	scored := ReScore([]Result{{MemoryID: id, Score: 0.5}}, memories, 10, []string{"recency", "team"}, 0.5, 0.5, 14)
	require.Len(t, scored, 1)
	assert.Equal(t, []string{"recency", "team"}, scored[0].RelaxedFilters)
}

// fakeSearcher is a deterministic Searcher stub for exercising the
// filter-relaxation ladder without a live Qdrant instance.
type fakeSearcher struct {
	// byStep maps how many non-empty filter fields remain (0..3-ish proxy via
	// the call count) to the results to return at that invocation.
	callResults [][]Result
	calls       int
}

func (f *fakeSearcher) Search(ctx context.Context, runID string, embedding []float32, filters MemoryFilters, limit int) ([]Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.callResults) {
		i = len(f.callResults) - 1
	}
	return f.callResults[i], nil
}

func (f *fakeSearcher) Healthy(ctx context.Context) error { return nil }

func TestRetrieveCandidates_SatisfiedOnFirstStep(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	searcher := &fakeSearcher{callResults: [][]Result{
		{{MemoryID: id1, Score: 0.9}, {MemoryID: id2, Score: 0.8}},
	}}

	hydrate := func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error) {
		out := make(map[uuid.UUID]model.EpisodicMemory, len(ids))
		for _, id := range ids {
			out[id] = model.EpisodicMemory{MemoryID: id, CreatedAt: time.Now()}
		}
		return out, nil
	}

	result, err := RetrieveCandidates(context.Background(), searcher, "run-1", make([]float32, 4), MemoryFilters{}, 2, 5, 0.5, 0.5, 14, hydrate)
	require.NoError(t, err)
	assert.False(t, result.Degraded, "reaching kMin on the exact step should not be degraded")
	assert.Len(t, result.Memories, 2)
	assert.Equal(t, 1, searcher.calls)
}

func TestRetrieveCandidates_RelaxesUntilKMinReached(t *testing.T) {
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()
	searcher := &fakeSearcher{callResults: [][]Result{
		{{MemoryID: id1, Score: 0.9}},                                           // exact: below kMin
		{{MemoryID: id1, Score: 0.9}, {MemoryID: id2, Score: 0.7}},              // recency dropped: still below kMin
		{{MemoryID: id1, Score: 0.9}, {MemoryID: id2, Score: 0.7}, {MemoryID: id3, Score: 0.5}}, // team dropped: reaches kMin
	}}

	hydrate := func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error) {
		out := make(map[uuid.UUID]model.EpisodicMemory, len(ids))
		for _, id := range ids {
			out[id] = model.EpisodicMemory{MemoryID: id, CreatedAt: time.Now()}
		}
		return out, nil
	}

	team := "NE"
	recency := 14
	filters := MemoryFilters{Team: &team, RecencyWindowDays: &recency}

	result, err := RetrieveCandidates(context.Background(), searcher, "run-1", make([]float32, 4), filters, 3, 10, 0.5, 0.5, 14, hydrate)
	require.NoError(t, err)
	assert.True(t, result.Degraded, "relaxing past the caller's exact filters should mark the result degraded")
	assert.Len(t, result.Memories, 3)
	assert.Equal(t, 3, searcher.calls)
}

func TestRetrieveCandidates_NeverReachesKMinStopsAtLooseststep(t *testing.T) {
	id1 := uuid.New()
	searcher := &fakeSearcher{callResults: [][]Result{
		{{MemoryID: id1, Score: 0.9}},
	}}

	hydrate := func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error) {
		out := make(map[uuid.UUID]model.EpisodicMemory, len(ids))
		for _, id := range ids {
			out[id] = model.EpisodicMemory{MemoryID: id, CreatedAt: time.Now()}
		}
		return out, nil
	}

	result, err := RetrieveCandidates(context.Background(), searcher, "run-1", make([]float32, 4), MemoryFilters{}, 5, 10, 0.5, 0.5, 14, hydrate)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Len(t, result.Memories, 1)
	// Every rung of the ladder (exact, recency, team, expert) runs once.
	assert.Equal(t, 4, searcher.calls)
}
