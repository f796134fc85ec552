package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/council/internal/model"
)

// InsertShadowAssertion stores one shadow assertion. The hot-path flags
// (used_in_council, used_in_coherence, used_in_settlement) are never read
// from the struct here: the shadow_assertions table carries CHECK
// constraints forcing all three to false at the database layer, so even a
// caller bug upstream can't let a shadow value leak into the main council
// decision.
func (db *DB) InsertShadowAssertion(ctx context.Context, a model.ShadowAssertion) error {
	why, err := json.Marshal(a.Why)
	if err != nil {
		return fmt.Errorf("storage: marshal shadow why: %w", err)
	}
	valueJSON, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("storage: marshal shadow value: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO shadow_assertions (
		     shadow_run_id, main_run_id, game_id, expert_id, shadow_model, primary_model,
		     category_id, value, confidence, stake, why, created_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11::jsonb, $12)
		 ON CONFLICT (shadow_run_id, expert_id, game_id, category_id) DO NOTHING`,
		a.ShadowRunID, a.MainRunID, a.GameID, a.ExpertID, a.ShadowModel, a.PrimaryModel,
		a.CategoryID, valueJSON, a.Confidence, a.Stake, why, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert shadow assertion: %w", err)
	}
	return nil
}

// ListShadowAssertions returns every shadow assertion for one shadow run and
// game, for shadow telemetry aggregation. The used_in_* columns always scan
// false; they are read back anyway so a regression in the check constraint
// itself would surface as a non-false value here instead of silently passing.
func (db *DB) ListShadowAssertions(ctx context.Context, shadowRunID, gameID string) ([]model.ShadowAssertion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT shadow_run_id, main_run_id, game_id, expert_id, shadow_model, primary_model,
		        category_id, value, confidence, stake, why,
		        used_in_council, used_in_coherence, used_in_settlement, created_at
		 FROM shadow_assertions WHERE shadow_run_id = $1 AND game_id = $2
		 ORDER BY expert_id ASC, category_id ASC`,
		shadowRunID, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list shadow assertions: %w", err)
	}
	defer rows.Close()

	var out []model.ShadowAssertion
	for rows.Next() {
		var a model.ShadowAssertion
		var valueJSON, whyJSON []byte
		if err := rows.Scan(
			&a.ShadowRunID, &a.MainRunID, &a.GameID, &a.ExpertID, &a.ShadowModel, &a.PrimaryModel,
			&a.CategoryID, &valueJSON, &a.Confidence, &a.Stake, &whyJSON,
			&a.UsedInCouncil, &a.UsedInCoherence, &a.UsedInSettlement, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan shadow assertion: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &a.Value); err != nil {
			return nil, fmt.Errorf("storage: unmarshal shadow value: %w", err)
		}
		if len(whyJSON) > 0 {
			if err := json.Unmarshal(whyJSON, &a.Why); err != nil {
				return nil, fmt.Errorf("storage: unmarshal shadow why: %w", err)
			}
		}
		if a.UsedInCouncil || a.UsedInCoherence || a.UsedInSettlement {
			return nil, fmt.Errorf("storage: shadow assertion %s/%s/%s: %w", a.ExpertID, a.GameID, a.CategoryID, ErrShadowLeaked)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ErrShadowLeaked indicates a shadow assertion was read back with a hot-path
// flag set true, meaning the isolation check constraint did not hold.
var ErrShadowLeaked = errors.New("storage: shadow assertion used_in_* flag is true")

// UpsertShadowTelemetry stores the aggregated comparison metrics for one
// shadow run.
func (db *DB) UpsertShadowTelemetry(ctx context.Context, s model.ShadowTelemetrySummary) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO shadow_telemetry (
		     shadow_run_id, success_rate, avg_latency_ms, avg_cost_usd,
		     agreement_with_primary, confidence_similarity, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (shadow_run_id) DO UPDATE SET
		     success_rate = EXCLUDED.success_rate,
		     avg_latency_ms = EXCLUDED.avg_latency_ms,
		     avg_cost_usd = EXCLUDED.avg_cost_usd,
		     agreement_with_primary = EXCLUDED.agreement_with_primary,
		     confidence_similarity = EXCLUDED.confidence_similarity,
		     updated_at = EXCLUDED.updated_at`,
		s.ShadowRunID, s.SuccessRate, s.AvgLatencyMS, s.AvgCostUSD,
		s.AgreementWithPrimary, s.ConfidenceSimilarity, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert shadow telemetry: %w", err)
	}
	return nil
}

// GetShadowTelemetry retrieves the aggregated comparison metrics for one
// shadow run.
func (db *DB) GetShadowTelemetry(ctx context.Context, shadowRunID string) (model.ShadowTelemetrySummary, error) {
	var s model.ShadowTelemetrySummary
	err := db.pool.QueryRow(ctx,
		`SELECT shadow_run_id, success_rate, avg_latency_ms, avg_cost_usd,
		        agreement_with_primary, confidence_similarity
		 FROM shadow_telemetry WHERE shadow_run_id = $1`,
		shadowRunID,
	).Scan(
		&s.ShadowRunID, &s.SuccessRate, &s.AvgLatencyMS, &s.AvgCostUSD,
		&s.AgreementWithPrimary, &s.ConfidenceSimilarity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ShadowTelemetrySummary{}, fmt.Errorf("storage: shadow telemetry %s: %w", shadowRunID, ErrNotFound)
		}
		return model.ShadowTelemetrySummary{}, fmt.Errorf("storage: get shadow telemetry: %w", err)
	}
	return s, nil
}
