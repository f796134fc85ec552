// Package memory implements the episodic memory store (C3): candidate
// retrieval with temporal-decay re-scoring and the filter-relaxation ladder
// that widens the search until KMin candidates are found or every filter has
// been dropped (returning at most KMax, and fewer than KMin when the run
// holds too few memories), falling back from the ANN
// index to pgvector cosine search in Postgres when the index is degraded.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/council/internal/decay"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/search"
	"github.com/ashita-ai/council/internal/storage"
)

// KMin and KMax bound the candidate set size (§4.3): retrieval climbs the
// filter-relaxation ladder until at least KMin candidates are found, and
// truncates to KMax.
const (
	KMin = 10
	KMax = 20
)

// Store retrieves and writes episodic memories, preferring the ANN index
// when healthy and falling back to Postgres pgvector search otherwise.
type Store struct {
	db     *storage.DB
	index  search.Searcher
	logger *slog.Logger
}

// NewStore creates a Store. index may be nil, in which case every retrieval
// goes straight to the pgvector fallback path.
func NewStore(db *storage.DB, index search.Searcher, logger *slog.Logger) *Store {
	return &Store{db: db, index: index, logger: logger}
}

// Query narrows a retrieval to a matchup and optionally one expert. Alpha,
// Beta, and HalfLifeDays are the requesting expert's eq. (2) temporal-decay
// parameters (§4.2) — callers resolve these from ExpertConfig.Temporal
// (seasonally adjusted via internal/decay.SeasonalHalfLife) before calling
// Retrieve; a zero HalfLifeDays is treated as "no decay preference" and
// falls back to EqualWeightHalfLifeDays so a caller that forgets to set it
// doesn't silently collapse every rank score to zero.
type Query struct {
	ExpertID          string
	Team              *string
	RecencyWindowDays *int
	Alpha             float64
	Beta              float64
	HalfLifeDays      float64
}

// EqualWeightHalfLifeDays is the neutral half-life used when a Query omits
// HalfLifeDays, matching the half-life at which similarity and recency are
// weighted as the caller specified without any additional decay bias.
const EqualWeightHalfLifeDays = 14

func (q Query) resolveTemporal() (alpha, beta, halfLifeDays float64) {
	alpha, beta = q.Alpha, q.Beta
	if alpha == 0 && beta == 0 {
		alpha, beta = 0.5, 0.5
	}
	halfLifeDays = q.HalfLifeDays
	if halfLifeDays <= 0 {
		halfLifeDays = EqualWeightHalfLifeDays
	}
	return alpha, beta, halfLifeDays
}

// Retrieve returns at most KMax candidate memories for a run (fewer than
// KMin when even the last rung of the ladder comes back short), ranked by a blend of embedding similarity and temporal decay (eq. 2).
// Degraded is true when the index was unavailable (pgvector fallback used)
// or when the filter-relaxation ladder had to drop below the caller's
// requested filters.
func (s *Store) Retrieve(ctx context.Context, runID string, queryEmbedding pgvector.Vector, q Query) (results []model.RankedMemory, degraded bool, err error) {
	if s.index != nil {
		if healthErr := s.index.Healthy(ctx); healthErr == nil {
			results, degraded, err = s.retrieveViaIndex(ctx, runID, queryEmbedding, q)
			if err == nil {
				return results, degraded, nil
			}
			s.logger.Warn("memory: ANN retrieval failed, falling back to pgvector", "run_id", runID, "error", err)
		} else {
			s.logger.Warn("memory: search index unhealthy, falling back to pgvector", "run_id", runID, "error", healthErr)
		}
	}
	results, err = s.retrieveViaPgvector(ctx, runID, queryEmbedding, q)
	return results, true, err
}

func (s *Store) retrieveViaIndex(ctx context.Context, runID string, queryEmbedding pgvector.Vector, q Query) ([]model.RankedMemory, bool, error) {
	filters := search.MemoryFilters{
		ExpertID:          q.ExpertID,
		Team:              q.Team,
		RecencyWindowDays: q.RecencyWindowDays,
	}
	alpha, beta, halfLifeDays := q.resolveTemporal()
	result, err := search.RetrieveCandidates(ctx, s.index, runID, queryEmbedding.Slice(), filters, KMin, KMax, alpha, beta, halfLifeDays,
		func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error) {
			return s.db.GetMemoriesByIDs(ctx, runID, ids)
		},
	)
	if err != nil {
		return nil, false, err
	}
	return result.Memories, result.Degraded, nil
}

// retrieveViaPgvector climbs the same filter-relaxation ladder directly
// against Postgres, re-scoring each rung's candidates with temporal decay.
func (s *Store) retrieveViaPgvector(ctx context.Context, runID string, queryEmbedding pgvector.Vector, q Query) ([]model.RankedMemory, error) {
	steps := []struct {
		name   string
		filter storage.MemoryFilter
	}{
		{"exact", storage.MemoryFilter{ExpertID: q.ExpertID, Team: q.Team, RecencyWindowDays: q.RecencyWindowDays, Limit: KMax * 3}},
		{"recency", storage.MemoryFilter{ExpertID: q.ExpertID, Team: q.Team, Limit: KMax * 3}},
		{"team", storage.MemoryFilter{ExpertID: q.ExpertID, Limit: KMax * 3}},
		{"expert", storage.MemoryFilter{Limit: KMax * 3}},
	}

	var candidates []storage.CandidateMemory
	var relaxed []string
	for i, step := range steps {
		found, err := s.db.ListCandidateMemories(ctx, runID, step.filter, queryEmbedding)
		if err != nil {
			return nil, fmt.Errorf("memory: list candidates (%s): %w", step.name, err)
		}
		candidates = found
		if i > 0 {
			relaxed = append(relaxed, step.name)
		}
		if len(candidates) >= KMin {
			break
		}
	}

	alpha, beta, halfLifeDays := q.resolveTemporal()
	return rescoreCandidates(candidates, KMax, relaxed, alpha, beta, halfLifeDays), nil
}

// rescoreCandidates applies the same eq. (2) temporal-decay blend as the ANN
// path (internal/search.ReScore) to pgvector-sourced candidates: rank_score
// = alpha*similarity + beta*decay(age_days, halfLifeDays), using the
// requesting expert's configured (alpha, beta, halfLifeDays) rather than the
// memory's own memory_strength/decay_rate.
func rescoreCandidates(candidates []storage.CandidateMemory, limit int, relaxedFilters []string, alpha, beta, halfLifeDays float64) []model.RankedMemory {
	now := time.Now()
	out := make([]model.RankedMemory, 0, len(candidates))
	for _, c := range candidates {
		ageDays := math.Max(0, now.Sub(c.Memory.CreatedAt).Hours()/24.0)
		rank := decay.RankScore(c.Similarity, ageDays, alpha, beta, halfLifeDays)
		out = append(out, model.RankedMemory{
			Memory:         c.Memory,
			Similarity:     c.Similarity,
			AgeDays:        ageDays,
			RankScore:      rank,
			RelaxedFilters: relaxedFilters,
		})
	}
	sortRanked(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortRanked(rm []model.RankedMemory) {
	for i := 1; i < len(rm); i++ {
		for j := i; j > 0 && rm[j].RankScore > rm[j-1].RankScore; j-- {
			rm[j], rm[j-1] = rm[j-1], rm[j]
		}
	}
}
