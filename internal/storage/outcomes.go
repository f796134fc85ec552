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

// ErrOutcomeDuplicate indicates the same (run, game, expert, category)
// settlement was already recorded; re-ingestion of an identical grade is a
// no-op rather than an error.
var ErrOutcomeDuplicate = errors.New("storage: outcome already settled for natural key")

// InsertOutcome stores a graded Outcome, keyed by (run_id, game_id,
// expert_id, category_id). A resubmission with an identical content hash is
// a no-op; contentHash is computed by the caller via internal/integrity.
func (db *DB) InsertOutcome(ctx context.Context, o model.Outcome, contentHash string) error {
	if o.SettledAt.IsZero() {
		o.SettledAt = time.Now().UTC()
	}
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO outcomes (run_id, game_id, expert_id, category_id, correct, error, content_hash, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, game_id, expert_id, category_id) DO NOTHING`,
		o.RunID, o.GameID, o.ExpertID, o.CategoryID, o.Correct, o.Error, contentHash, o.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var existingHash string
		err := db.pool.QueryRow(ctx,
			`SELECT content_hash FROM outcomes WHERE run_id = $1 AND game_id = $2 AND expert_id = $3 AND category_id = $4`,
			o.RunID, o.GameID, o.ExpertID, o.CategoryID,
		).Scan(&existingHash)
		if err != nil {
			return fmt.Errorf("storage: insert outcome: %w", ErrOutcomeDuplicate)
		}
		if existingHash != contentHash {
			return fmt.Errorf("storage: outcome %s/%s/%s/%s: %w", o.RunID, o.GameID, o.ExpertID, o.CategoryID, ErrOutcomeConflict)
		}
	}
	return nil
}

// ErrOutcomeConflict indicates a natural-key collision with a different
// content hash — the same assertion was graded twice with different results.
var ErrOutcomeConflict = errors.New("storage: outcome natural key reused with a different grade")

// ListOutcomesForGame returns every settled outcome for a game across all
// experts, the input the provenance-graph audit job Merkle-hashes.
func (db *DB) ListOutcomesForGame(ctx context.Context, runID, gameID string) ([]model.Outcome, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, game_id, expert_id, category_id, correct, error, settled_at
		 FROM outcomes WHERE run_id = $1 AND game_id = $2
		 ORDER BY expert_id ASC, category_id ASC`,
		runID, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list outcomes for game: %w", err)
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.RunID, &o.GameID, &o.ExpertID, &o.CategoryID, &o.Correct, &o.Error, &o.SettledAt); err != nil {
			return nil, fmt.Errorf("storage: scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordWeekAccuracy adds one graded binary/enum assertion's outcome to the
// running per-week tally, used by internal/stats to compute rolling trend
// and consistency. Non-binary assertions (numeric/percentage error) do not
// call this — only correct/incorrect grades count toward accuracy.
func (db *DB) RecordWeekAccuracy(ctx context.Context, runID, expertID string, week int, correct bool) error {
	correctInc := 0
	if correct {
		correctInc = 1
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO expert_week_accuracy (run_id, expert_id, week, correct_count, total_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (run_id, expert_id, week) DO UPDATE SET
		     correct_count = expert_week_accuracy.correct_count + EXCLUDED.correct_count,
		     total_count = expert_week_accuracy.total_count + 1`,
		runID, expertID, week, correctInc,
	)
	if err != nil {
		return fmt.Errorf("storage: record week accuracy: %w", err)
	}
	return nil
}

// ListRecentWeekAccuracy returns an expert's per-week accuracy tallies for
// the most recent windowWeeks distinct weeks on record, oldest first.
func (db *DB) ListRecentWeekAccuracy(ctx context.Context, runID, expertID string, windowWeeks int) ([]model.WeekAccuracy, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, expert_id, week, correct_count, total_count
		 FROM expert_week_accuracy
		 WHERE run_id = $1 AND expert_id = $2
		 ORDER BY week DESC
		 LIMIT $3`,
		runID, expertID, windowWeeks,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list recent week accuracy: %w", err)
	}
	defer rows.Close()

	var out []model.WeekAccuracy
	for rows.Next() {
		var w model.WeekAccuracy
		if err := rows.Scan(&w.RunID, &w.ExpertID, &w.Week, &w.CorrectCount, &w.TotalCount); err != nil {
			return nil, fmt.Errorf("storage: scan week accuracy: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetCalibrationBucket retrieves the running calibration statistics for one
// (run, expert, category), or a fresh Beta(1,1)/EMA(0,0) bucket if none exists.
func (db *DB) GetCalibrationBucket(ctx context.Context, runID, expertID, categoryID string) (model.CalibrationBucket, error) {
	var b model.CalibrationBucket
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, category_id, alpha, beta, mu, sigma, updated_at
		 FROM calibration_buckets WHERE run_id = $1 AND expert_id = $2 AND category_id = $3`,
		runID, expertID, categoryID,
	).Scan(&b.RunID, &b.ExpertID, &b.CategoryID, &b.Alpha, &b.Beta, &b.Mu, &b.Sigma, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CalibrationBucket{
				RunID: runID, ExpertID: expertID, CategoryID: categoryID,
				Alpha: 1, Beta: 1, Mu: 0, Sigma: 0,
			}, nil
		}
		return model.CalibrationBucket{}, fmt.Errorf("storage: get calibration bucket: %w", err)
	}
	return b, nil
}

// UpsertCalibrationBucket stores updated calibration statistics.
func (db *DB) UpsertCalibrationBucket(ctx context.Context, b model.CalibrationBucket) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO calibration_buckets (run_id, expert_id, category_id, alpha, beta, mu, sigma, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, expert_id, category_id) DO UPDATE SET
		     alpha = EXCLUDED.alpha, beta = EXCLUDED.beta,
		     mu = EXCLUDED.mu, sigma = EXCLUDED.sigma,
		     updated_at = EXCLUDED.updated_at`,
		b.RunID, b.ExpertID, b.CategoryID, b.Alpha, b.Beta, b.Mu, b.Sigma, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert calibration bucket: %w", err)
	}
	return nil
}

// GetFactorWeights retrieves an expert's learned factor weights, or an empty
// map (callers default unseen factors to 1.0) if none exist yet.
func (db *DB) GetFactorWeights(ctx context.Context, runID, expertID string) (model.LearnedFactorWeights, error) {
	var w model.LearnedFactorWeights
	var weightsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, weights, updated_at FROM learned_factor_weights
		 WHERE run_id = $1 AND expert_id = $2`,
		runID, expertID,
	).Scan(&w.RunID, &w.ExpertID, &weightsJSON, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LearnedFactorWeights{RunID: runID, ExpertID: expertID, Weights: map[string]float64{}}, nil
		}
		return model.LearnedFactorWeights{}, fmt.Errorf("storage: get factor weights: %w", err)
	}
	if err := json.Unmarshal(weightsJSON, &w.Weights); err != nil {
		return model.LearnedFactorWeights{}, fmt.Errorf("storage: unmarshal factor weights: %w", err)
	}
	return w, nil
}

// UpsertFactorWeights stores updated learned factor weights. Callers must
// clip every value via model.ClipFactorWeight before calling this.
func (db *DB) UpsertFactorWeights(ctx context.Context, w model.LearnedFactorWeights) error {
	weightsJSON, err := json.Marshal(w.Weights)
	if err != nil {
		return fmt.Errorf("storage: marshal factor weights: %w", err)
	}
	w.UpdatedAt = time.Now().UTC()
	_, err = db.pool.Exec(ctx,
		`INSERT INTO learned_factor_weights (run_id, expert_id, weights, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4)
		 ON CONFLICT (run_id, expert_id) DO UPDATE SET
		     weights = EXCLUDED.weights, updated_at = EXCLUDED.updated_at`,
		w.RunID, w.ExpertID, weightsJSON, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert factor weights: %w", err)
	}
	return nil
}

// GetBankroll retrieves an expert's virtual stake ledger, seeding a fresh one
// at model.DefaultStartingUnits if none exists.
func (db *DB) GetBankroll(ctx context.Context, runID, expertID string) (model.Bankroll, error) {
	var b model.Bankroll
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, current_units, starting_units, peak_units
		 FROM bankrolls WHERE run_id = $1 AND expert_id = $2`,
		runID, expertID,
	).Scan(&b.RunID, &b.ExpertID, &b.CurrentUnits, &b.StartingUnits, &b.PeakUnits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bankroll{
				RunID: runID, ExpertID: expertID,
				CurrentUnits: model.DefaultStartingUnits, StartingUnits: model.DefaultStartingUnits, PeakUnits: model.DefaultStartingUnits,
			}, nil
		}
		return model.Bankroll{}, fmt.Errorf("storage: get bankroll: %w", err)
	}
	return b, nil
}

// UpsertBankroll stores an expert's updated virtual stake ledger.
func (db *DB) UpsertBankroll(ctx context.Context, b model.Bankroll) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO bankrolls (run_id, expert_id, current_units, starting_units, peak_units)
		 VALUES ($1, $2, $3, $4, GREATEST($5::float8, $3::float8))
		 ON CONFLICT (run_id, expert_id) DO UPDATE SET
		     current_units = EXCLUDED.current_units,
		     peak_units = GREATEST(bankrolls.peak_units, EXCLUDED.current_units)`,
		b.RunID, b.ExpertID, b.CurrentUnits, b.StartingUnits, b.PeakUnits,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert bankroll: %w", err)
	}
	return nil
}

// GetEligibilityGate retrieves an expert's SLO-gated council eligibility, or
// a fresh eligible gate with zeroed EMAs if none exists yet.
func (db *DB) GetEligibilityGate(ctx context.Context, runID, expertID string) (model.EligibilityGate, error) {
	var g model.EligibilityGate
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, schema_validity_rate_ema, avg_latency_ms_ema, eligible
		 FROM eligibility_gates WHERE run_id = $1 AND expert_id = $2`,
		runID, expertID,
	).Scan(&g.RunID, &g.ExpertID, &g.SchemaValidityRateEMA, &g.AvgLatencyMSEMA, &g.Eligible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EligibilityGate{RunID: runID, ExpertID: expertID, Eligible: true}, nil
		}
		return model.EligibilityGate{}, fmt.Errorf("storage: get eligibility gate: %w", err)
	}
	return g, nil
}

// UpsertEligibilityGate stores an expert's updated eligibility gate.
func (db *DB) UpsertEligibilityGate(ctx context.Context, g model.EligibilityGate) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO eligibility_gates (run_id, expert_id, schema_validity_rate_ema, avg_latency_ms_ema, eligible)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, expert_id) DO UPDATE SET
		     schema_validity_rate_ema = EXCLUDED.schema_validity_rate_ema,
		     avg_latency_ms_ema = EXCLUDED.avg_latency_ms_ema,
		     eligible = EXCLUDED.eligible`,
		g.RunID, g.ExpertID, g.SchemaValidityRateEMA, g.AvgLatencyMSEMA, g.Eligible,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert eligibility gate: %w", err)
	}
	return nil
}
