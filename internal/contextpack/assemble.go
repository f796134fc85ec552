// Package contextpack implements the Context Pack Assembler (C5): the
// per-(run_id, expert_id, game_id) read-only input handed to Bundle Gen,
// combining a query-embedding-driven memory retrieval with the expert's
// persona, guardrails, policy, and the category registry.
package contextpack

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/council/internal/decay"
	"github.com/ashita-ai/council/internal/llm"
	"github.com/ashita-ai/council/internal/memory"
	"github.com/ashita-ai/council/internal/model"
)

// KDesired is the default candidate count requested from the Memory Store
// before the filter-relaxation ladder runs (§4.5 step 2).
const KDesired = 12

// MaxLiveBriefs bounds how many short-TTL live briefs are attached (§4.5
// step 4).
const MaxLiveBriefs = 8

// LiveBriefSource supplies short-TTL, non-system-of-record context (breaking
// news, injury updates) for a game. Implementations are expected to return
// quickly; Assembler treats a failure here as non-fatal.
type LiveBriefSource interface {
	RecentBriefs(ctx context.Context, gameID string, limit int) ([]string, error)
}

// Assembler builds Context Packs from the Memory Store, the category
// registry, and an embedder collaborator.
type Assembler struct {
	store     *memory.Store
	embedder  llm.Embedder
	registry  *model.CategoryRegistry
	liveBriefs LiveBriefSource // optional
}

// NewAssembler creates an Assembler. liveBriefs may be nil to disable live
// brief attachment.
func NewAssembler(store *memory.Store, embedder llm.Embedder, registry *model.CategoryRegistry, liveBriefs LiveBriefSource) *Assembler {
	return &Assembler{store: store, embedder: embedder, registry: registry, liveBriefs: liveBriefs}
}

// Build assembles a Context Pack for one expert/game within a run (§4.5).
func (a *Assembler) Build(ctx context.Context, runID string, cfg model.ExpertConfig, game model.Game, policy model.BundlePolicy, guardrails model.Guardrails, recencyWindowDays *int) (model.ContextPack, error) {
	queryText := buildQueryText(game, cfg)
	queryEmbedding, err := a.embedder.Embed(ctx, queryText)
	if err != nil {
		return model.ContextPack{}, fmt.Errorf("contextpack: embed query: %w", err)
	}

	memories, kReductions, _, err := a.retrieveWithTeamFallback(ctx, runID, cfg, game, queryEmbedding, recencyWindowDays)
	if err != nil {
		return model.ContextPack{}, fmt.Errorf("contextpack: retrieve: %w", err)
	}

	pack := model.ContextPack{
		RunID:            runID,
		ExpertID:         cfg.ExpertID,
		GameID:           game.GameID,
		Memories:         memories,
		CtxK:             len(memories),
		Degraded:         len(memories) < memory.KMin,
		KReductions:      kReductions,
		CategoryRegistry: a.registry,
		Persona:          cfg.Personality,
		Guardrails:       guardrails,
		Policy:           policy,
		BuiltAt:          time.Now().UTC(),
	}

	if a.liveBriefs != nil {
		briefs, briefErr := a.liveBriefs.RecentBriefs(ctx, game.GameID, MaxLiveBriefs)
		if briefErr != nil {
			// Live briefs are a short-TTL cache, not system of record: a
			// failure here degrades the pack's freshness, not its validity.
			briefs = nil
		}
		if len(briefs) > MaxLiveBriefs {
			briefs = briefs[:MaxLiveBriefs]
		}
		pack.LiveBriefs = briefs
	}

	return pack, nil
}

// retrieveWithTeamFallback calls the Memory Store filtered to the game's
// matchup, retrying without a team filter if the result is degraded (§4.5
// step 2). The Memory Store's Query carries a single Team filter matching
// either side of a matchup, so the matchup filter is applied as two passes
// (home, then away) merged and truncated to at most KMax — this widens
// slightly on the "both teams" filter the spec names, trading a little
// precision for reusing the Store's existing single-team query shape.
func (a *Assembler) retrieveWithTeamFallback(ctx context.Context, runID string, cfg model.ExpertConfig, game model.Game, queryEmbedding pgvector.Vector, recencyWindowDays *int) ([]model.RankedMemory, int, bool, error) {
	home := game.HomeTeam
	away := game.AwayTeam

	merged, degraded, err := a.retrieveMerged(ctx, runID, cfg, game.Week, queryEmbedding, &home, &away, recencyWindowDays)
	if err != nil {
		return nil, 0, false, err
	}
	if !degraded && len(merged) >= memory.KMin {
		return truncate(merged), 0, false, nil
	}

	// Relax: drop the team filter entirely and retry once.
	retried, retriedDegraded, err := a.retrieveMerged(ctx, runID, cfg, game.Week, queryEmbedding, nil, nil, recencyWindowDays)
	if err != nil {
		return nil, 0, false, err
	}
	if len(retried) > len(merged) {
		return truncate(retried), 1, retriedDegraded, nil
	}
	return truncate(merged), 0, degraded, nil
}

// retrieveMerged resolves the expert's eq. (2) temporal-decay parameters —
// alpha/beta from cfg.Temporal, half-life from cfg.HalfLifeFor seasonally
// adjusted for the game's week via decay.SeasonalHalfLife (§4.2) — and
// threads them into every memory.Query this Context Pack issues.
func (a *Assembler) retrieveMerged(ctx context.Context, runID string, cfg model.ExpertConfig, week int, queryEmbedding pgvector.Vector, home, away *string, recencyWindowDays *int) ([]model.RankedMemory, bool, error) {
	seen := make(map[string]bool)
	var out []model.RankedMemory
	var anyDegraded bool

	earlyFactor := cfg.Temporal.EarlySeasonFactor
	if earlyFactor <= 0 {
		earlyFactor = 1.0
	}
	lateFactor := cfg.Temporal.LateSeasonFactor
	if lateFactor <= 0 {
		lateFactor = 1.0
	}
	halfLifeDays := decay.SeasonalHalfLife(cfg.HalfLifeFor(""), week, earlyFactor, lateFactor)

	teams := []*string{nil}
	if home != nil || away != nil {
		teams = []*string{home, away}
	}

	for _, team := range teams {
		results, degraded, err := a.store.Retrieve(ctx, runID, queryEmbedding, memory.Query{
			ExpertID:          cfg.ExpertID,
			Team:              team,
			RecencyWindowDays: recencyWindowDays,
			Alpha:             cfg.Temporal.SimilarityWeight,
			Beta:              cfg.Temporal.TemporalWeight,
			HalfLifeDays:      halfLifeDays,
		})
		if err != nil {
			return nil, false, err
		}
		anyDegraded = anyDegraded || degraded
		for _, rm := range results {
			key := rm.Memory.MemoryID.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rm)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RankScore > out[j].RankScore })
	return out, anyDegraded, nil
}

func truncate(memories []model.RankedMemory) []model.RankedMemory {
	if len(memories) > memory.KMax {
		return memories[:memory.KMax]
	}
	return memories
}

// buildQueryText mixes the game's factual fields with the expert's
// analytical-focus keywords into a deterministic string for embedding
// (§4.5 step 1: "repeated calls with the same inputs are deterministic
// within a run").
func buildQueryText(game model.Game, cfg model.ExpertConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s @ %s week %d season %d", game.AwayTeam, game.HomeTeam, game.Week, game.Season)
	if game.Market.Spread != nil {
		fmt.Fprintf(&b, " spread %.1f", *game.Market.Spread)
	}
	if game.Market.Total != nil {
		fmt.Fprintf(&b, " total %.1f", *game.Market.Total)
	}
	if game.Weather != nil && game.Weather.WindMPH != nil {
		fmt.Fprintf(&b, " wind %.0fmph", *game.Weather.WindMPH)
	}

	keywords := make([]string, 0, len(cfg.AnalyticalFocus))
	for k := range cfg.AnalyticalFocus {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	for _, k := range keywords {
		fmt.Fprintf(&b, " %s:%.2f", k, cfg.AnalyticalFocus[k])
	}
	return b.String()
}
