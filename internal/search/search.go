// Package search provides vector retrieval of episodic memories using an
// external ANN index (Qdrant), with transparent fallback to pgvector
// cosine-distance search in Postgres when the index is degraded or
// unreachable.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/council/internal/decay"
	"github.com/ashita-ai/council/internal/model"
)

// Searcher is the interface for ANN memory indexes. Implementations must be
// safe for concurrent use.
type Searcher interface {
	// Search returns memory IDs matching the query vector, scoped to one run
	// and filtered by the optional MemoryFilters. Returns IDs + raw
	// similarity scores; the caller hydrates full memories from Postgres.
	Search(ctx context.Context, runID string, embedding []float32, filters MemoryFilters, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable, or an error
	// describing the problem.
	Healthy(ctx context.Context) error
}

// RetrievalResult is the outcome of RetrieveCandidates: the ranked memories
// plus whether the filter-relaxation ladder had to drop below the caller's
// requested filters to reach the desired count.
type RetrievalResult struct {
	Memories []model.RankedMemory
	Degraded bool
}

// retrievalStep is one rung of the filter-relaxation ladder, from tightest
// to loosest.
type retrievalStep struct {
	name   string
	adjust func(MemoryFilters) MemoryFilters
}

var relaxationLadder = []retrievalStep{
	{name: "exact", adjust: func(f MemoryFilters) MemoryFilters { return f }},
	{name: "recency", adjust: func(f MemoryFilters) MemoryFilters {
		f.RecencyWindowDays = nil
		return f
	}},
	{name: "team", adjust: func(f MemoryFilters) MemoryFilters {
		f.RecencyWindowDays = nil
		f.Team = nil
		return f
	}},
	{name: "expert", adjust: func(MemoryFilters) MemoryFilters {
		return MemoryFilters{}
	}},
}

// RetrieveCandidates runs the filter-relaxation ladder against a Searcher:
// it starts with the caller's exact filters and, if fewer than kMin results
// come back, progressively drops recency, then team, then expert scoping
// until either kMin is reached or every filter has been dropped. Degraded is
// true whenever any relaxation beyond the caller's original filters fired.
// alpha, beta, and halfLifeDays are the expert's eq. (2) temporal-decay
// parameters (§4.2), already seasonally adjusted by the caller.
func RetrieveCandidates(ctx context.Context, searcher Searcher, runID string, embedding []float32, filters MemoryFilters, kMin, kMax int, alpha, beta, halfLifeDays float64, hydrate func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error)) (RetrievalResult, error) {
	var results []Result
	var relaxed []string

	for i, step := range relaxationLadder {
		stepFilters := step.adjust(filters)
		found, err := searcher.Search(ctx, runID, embedding, stepFilters, kMax)
		if err != nil {
			return RetrievalResult{}, err
		}
		results = found
		if i > 0 {
			relaxed = append(relaxed, step.name)
		}
		if len(results) >= kMin {
			break
		}
	}

	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.MemoryID
	}
	hydrated, err := hydrate(ctx, ids)
	if err != nil {
		return RetrievalResult{}, err
	}

	ranked := ReScore(results, hydrated, kMax, relaxed, alpha, beta, halfLifeDays)
	return RetrievalResult{Memories: ranked, Degraded: len(relaxed) > 0}, nil
}

// ReScore blends raw ANN similarity with each memory's temporal decay
// (eq. 2: rank_score = alpha*similarity + beta*decay(age_days, halfLifeDays))
// before sorting descending and truncating to limit. alpha, beta, and
// halfLifeDays come from the requesting expert's temporal config, not from
// the memory's own memory_strength/decay_rate — those per-memory fields
// drive memory_strength decay (§4.3 eviction), a separate concern from the
// retrieval-time rank score.
func ReScore(results []Result, memories map[uuid.UUID]model.EpisodicMemory, limit int, relaxedFilters []string, alpha, beta, halfLifeDays float64) []model.RankedMemory {
	now := time.Now()
	scored := make([]model.RankedMemory, 0, len(results))

	for _, r := range results {
		m, ok := memories[r.MemoryID]
		if !ok {
			// Memory was deleted or not yet visible between ANN search and hydration.
			continue
		}

		ageDays := math.Max(0, now.Sub(m.CreatedAt).Hours()/24.0)
		similarity := float64(r.Score)
		rank := decay.RankScore(similarity, ageDays, alpha, beta, halfLifeDays)

		scored = append(scored, model.RankedMemory{
			Memory:         m,
			Similarity:     similarity,
			AgeDays:        ageDays,
			RankScore:      rank,
			RelaxedFilters: relaxedFilters,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].RankScore > scored[j].RankScore
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
