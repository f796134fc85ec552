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

// InsertBundle stores a PredictionBundle. The natural key (run_id, expert_id,
// game_id) is unique: a resubmission with an identical content hash is a
// no-op, a resubmission with a different hash is a conflict the caller must
// resolve explicitly (belief revision goes through the outcome pipeline, not
// a silent bundle overwrite).
func (db *DB) InsertBundle(ctx context.Context, b model.PredictionBundle) error {
	assertions, err := json.Marshal(b.Assertions)
	if err != nil {
		return fmt.Errorf("storage: marshal assertions: %w", err)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO prediction_bundles (
		     run_id, expert_id, game_id, overall, assertions,
		     schema_valid, degraded, repair_iterations, latency_ms, model, content_hash, created_at
		 )
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (run_id, expert_id, game_id) DO NOTHING`,
		b.RunID, b.ExpertID, b.GameID, b.Overall, assertions,
		b.SchemaValid, b.Degraded, b.RepairIterations, b.LatencyMS, b.Model, b.ContentHash, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert bundle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := db.GetBundle(ctx, b.RunID, b.ExpertID, b.GameID)
		if getErr != nil {
			return fmt.Errorf("storage: insert bundle %s: %w", b.NaturalKey(), ErrBundleDuplicate)
		}
		if existing.ContentHash != b.ContentHash {
			return fmt.Errorf("storage: insert bundle %s: %w", b.NaturalKey(), ErrBundleConflict)
		}
		return nil
	}
	return nil
}

// ErrBundleDuplicate indicates a natural-key collision where the existing row
// could not be re-read to compare content hashes.
var ErrBundleDuplicate = errors.New("storage: bundle already exists for natural key")

// ErrBundleConflict indicates a natural-key collision with a different
// content hash: the same (run, expert, game) was submitted twice with
// different assertions. Belief revision must go through the outcome
// pipeline rather than silently overwriting a settled bundle.
var ErrBundleConflict = errors.New("storage: bundle natural key reused with different content")

// GetBundle retrieves one expert's bundle for a game.
func (db *DB) GetBundle(ctx context.Context, runID, expertID, gameID string) (model.PredictionBundle, error) {
	var b model.PredictionBundle
	var assertions []byte

	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, game_id, overall, assertions,
		        schema_valid, degraded, repair_iterations, latency_ms, model, content_hash, created_at
		 FROM prediction_bundles WHERE run_id = $1 AND expert_id = $2 AND game_id = $3`,
		runID, expertID, gameID,
	).Scan(
		&b.RunID, &b.ExpertID, &b.GameID, &b.Overall, &assertions,
		&b.SchemaValid, &b.Degraded, &b.RepairIterations, &b.LatencyMS, &b.Model, &b.ContentHash, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PredictionBundle{}, fmt.Errorf("storage: bundle %s/%s/%s: %w", runID, expertID, gameID, ErrNotFound)
		}
		return model.PredictionBundle{}, fmt.Errorf("storage: get bundle: %w", err)
	}
	if err := json.Unmarshal(assertions, &b.Assertions); err != nil {
		return model.PredictionBundle{}, fmt.Errorf("storage: unmarshal assertions: %w", err)
	}
	return b, nil
}

// ListBundlesForGame returns every expert's bundle for a game, the input the
// council aggregation step consumes.
func (db *DB) ListBundlesForGame(ctx context.Context, runID, gameID string) ([]model.PredictionBundle, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, expert_id, game_id, overall, assertions,
		        schema_valid, degraded, repair_iterations, latency_ms, model, content_hash, created_at
		 FROM prediction_bundles WHERE run_id = $1 AND game_id = $2
		 ORDER BY expert_id ASC`,
		runID, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list bundles for game: %w", err)
	}
	defer rows.Close()

	var out []model.PredictionBundle
	for rows.Next() {
		var b model.PredictionBundle
		var assertions []byte
		if err := rows.Scan(
			&b.RunID, &b.ExpertID, &b.GameID, &b.Overall, &assertions,
			&b.SchemaValid, &b.Degraded, &b.RepairIterations, &b.LatencyMS, &b.Model, &b.ContentHash, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan bundle: %w", err)
		}
		if err := json.Unmarshal(assertions, &b.Assertions); err != nil {
			return nil, fmt.Errorf("storage: unmarshal assertions: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
