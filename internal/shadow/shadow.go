// Package shadow implements the isolated shadow-run partition (C9): running
// a candidate model alongside the primary run without ever letting its
// output reach the council, the coherence graph, or bankroll settlement.
//
// Isolation is enforced twice: the storage layer's shadow_assertions table
// carries CHECK constraints forcing used_in_council/used_in_coherence/
// used_in_settlement to false, and this package never reads a shadow
// assertion back into any code path that feeds Select/Aggregate/Grade — it
// only ever compares shadow output against the already-settled primary
// bundle to produce telemetry.
package shadow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ashita-ai/council/internal/bundle"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
)

// Runner drafts shadow bundles with a candidate model and records them in
// the isolated partition. It never writes to the primary bundles table and
// never returns a bundle that could be mistaken for a primary one.
type Runner struct {
	db *storage.DB
}

// NewRunner creates a shadow Runner bound to the storage layer.
func NewRunner(db *storage.DB) *Runner {
	return &Runner{db: db}
}

// Run drafts one shadow bundle for expertID/gameID using drafter (already
// configured with the shadow model's generator) and persists each assertion
// as a ShadowAssertion keyed by shadowRunID, not mainRunID. primaryModel is
// recorded for telemetry only.
func (r *Runner) Run(ctx context.Context, drafter *bundle.Drafter, shadowRunID, mainRunID, gameID string, cfg model.ExpertConfig, playbook model.RunPlaybook, contextPack, shadowModel, primaryModel string) error {
	b, err := drafter.Generate(ctx, shadowRunID, cfg.ExpertID, gameID, cfg, playbook, contextPack)
	if err != nil {
		return fmt.Errorf("shadow: generate: %w", err)
	}

	now := time.Now().UTC()
	for categoryID, a := range b.Assertions {
		sa := model.ShadowAssertion{
			ShadowRunID:  shadowRunID,
			MainRunID:    mainRunID,
			GameID:       gameID,
			ExpertID:     cfg.ExpertID,
			ShadowModel:  shadowModel,
			PrimaryModel: primaryModel,
			CategoryID:   categoryID,
			Value:        a.Value,
			Confidence:   a.Confidence,
			Stake:        a.Stake,
			Why:          a.Why,
			CreatedAt:    now,
		}
		if err := r.db.InsertShadowAssertion(ctx, sa); err != nil {
			return fmt.Errorf("shadow: insert assertion %s: %w", categoryID, err)
		}
	}
	return nil
}

// Comparator computes agreement/confidence-similarity telemetry between a
// shadow run and the already-settled primary bundles it shadows, and
// persists the aggregate.
type Comparator struct {
	db *storage.DB
}

// NewComparator creates a Comparator bound to the storage layer.
func NewComparator(db *storage.DB) *Comparator {
	return &Comparator{db: db}
}

// Compare loads every shadow assertion for shadowRunID/gameID, compares each
// against the corresponding category in the primary bundle, and upserts the
// resulting summary. primary must be the already-settled bundle for the same
// expert and game; Compare never mutates it and never feeds its own input
// back into primary's assertions.
func (c *Comparator) Compare(ctx context.Context, shadowRunID, gameID string, primary model.PredictionBundle) (model.ShadowTelemetrySummary, error) {
	shadowAssertions, err := c.db.ListShadowAssertions(ctx, shadowRunID, gameID)
	if err != nil {
		return model.ShadowTelemetrySummary{}, fmt.Errorf("shadow: list assertions: %w", err)
	}
	if len(shadowAssertions) == 0 {
		return model.ShadowTelemetrySummary{}, fmt.Errorf("shadow: no assertions for run %s/%s", shadowRunID, gameID)
	}

	var agreeSum, confSimSum float64
	var compared int
	for _, sa := range shadowAssertions {
		pa, ok := primary.Assertions[sa.CategoryID]
		if !ok {
			continue
		}
		compared++
		if valuesAgree(sa.Value, pa.Value) {
			agreeSum++
		}
		confSimSum += 1 - math.Abs(sa.Confidence-pa.Confidence)
	}

	summary := model.ShadowTelemetrySummary{ShadowRunID: shadowRunID}
	if compared > 0 {
		summary.AgreementWithPrimary = agreeSum / float64(compared)
		summary.ConfidenceSimilarity = confSimSum / float64(compared)
	}

	if err := c.db.UpsertShadowTelemetry(ctx, summary); err != nil {
		return model.ShadowTelemetrySummary{}, fmt.Errorf("shadow: upsert telemetry: %w", err)
	}
	return summary, nil
}

// valuesAgree reports whether two assertion values agree. Binary/enum values
// compare as strings; numeric/percentage values compare with a small
// tolerance since a shadow model restating the same pick with a slightly
// different number is still "agreement" for A/B comparison purposes.
func valuesAgree(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return math.Abs(af-bf) <= 0.5
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
