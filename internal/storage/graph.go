package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashita-ai/council/internal/model"
)

// EnqueueGraphEdges queues provenance edges for the C4 write-behind mirror.
// Called immediately after the corresponding primary-store write commits;
// the graph itself is never the system of record, so a failed enqueue here
// does not roll back the caller's write — it is logged and left for the
// audit job to repair (§4.4 consistency).
func (db *DB) EnqueueGraphEdges(ctx context.Context, edges []model.GraphEdge) error {
	for _, e := range edges {
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("storage: marshal edge properties: %w", err)
		}
		if _, err := db.pool.Exec(ctx,
			`INSERT INTO graph_outbox (run_id, edge_type, from_label, from_id, to_label, to_id, properties)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
			e.RunID, string(e.Type), string(e.FromLabel), e.FromID, string(e.ToLabel), e.ToID, props,
		); err != nil {
			return fmt.Errorf("storage: enqueue graph edge: %w", err)
		}
	}
	return nil
}

// GraphOutboxEntry is one pending row from graph_outbox.
type GraphOutboxEntry struct {
	ID       int64
	Edge     model.GraphEdge
	Attempts int
}

// ClaimGraphOutboxBatch locks up to batchSize pending graph_outbox rows for
// exclusive processing by this worker, mirroring the search outbox's
// SELECT ... FOR UPDATE SKIP LOCKED claim pattern.
func (db *DB) ClaimGraphOutboxBatch(ctx context.Context, batchSize int) ([]GraphOutboxEntry, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin graph outbox claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, run_id, edge_type, from_label, from_id, to_label, to_id, properties, attempts, created_at
		 FROM graph_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxGraphOutboxAttempts, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: select pending graph edges: %w", err)
	}

	var entries []GraphOutboxEntry
	var ids []int64
	for rows.Next() {
		var e GraphOutboxEntry
		var propsJSON []byte
		if err := rows.Scan(
			&e.ID, &e.Edge.RunID, &e.Edge.Type, &e.Edge.FromLabel, &e.Edge.FromID,
			&e.Edge.ToLabel, &e.Edge.ToID, &propsJSON, &e.Attempts, &e.Edge.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage: scan graph outbox entry: %w", err)
		}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Edge.Properties); err != nil {
				rows.Close()
				return nil, fmt.Errorf("storage: unmarshal edge properties: %w", err)
			}
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate graph outbox rows: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE graph_outbox SET locked_until = now() + interval '60 seconds' WHERE id = ANY($1)`,
		ids,
	); err != nil {
		return nil, fmt.Errorf("storage: lock graph outbox entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit graph outbox claim: %w", err)
	}
	return entries, nil
}

const maxGraphOutboxAttempts = 10

// InsertGraphEdge writes one settled provenance edge to graph_edges. Natural
// key collisions (a re-mirrored edge) are a no-op.
func (db *DB) InsertGraphEdge(ctx context.Context, e model.GraphEdge) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("storage: marshal edge properties: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO graph_edges (run_id, edge_type, from_label, from_id, to_label, to_id, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (run_id, edge_type, from_label, from_id, to_label, to_id) DO NOTHING`,
		e.RunID, string(e.Type), string(e.FromLabel), e.FromID, string(e.ToLabel), e.ToID, props, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert graph edge: %w", err)
	}
	return nil
}

// MarkGraphOutboxDone deletes successfully mirrored outbox entries.
func (db *DB) MarkGraphOutboxDone(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.pool.Exec(ctx, `DELETE FROM graph_outbox WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("storage: delete done graph outbox entries: %w", err)
	}
	return nil
}

// MarkGraphOutboxFailed increments the attempt count and records the error
// for entries that failed to mirror, leaving them for retry or eventual
// dead-lettering.
func (db *DB) MarkGraphOutboxFailed(ctx context.Context, ids []int64, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.pool.Exec(ctx,
		`UPDATE graph_outbox SET attempts = attempts + 1, last_error = $2, locked_until = NULL WHERE id = ANY($1)`,
		ids, errMsg,
	); err != nil {
		return fmt.Errorf("storage: mark graph outbox failed: %w", err)
	}
	return nil
}

// CleanupGraphDeadLetters archives and removes graph_outbox rows that have
// exhausted their attempts and aged past the retention window, mirroring the
// search outbox's dead-letter archival job.
func (db *DB) CleanupGraphDeadLetters(ctx context.Context) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage: begin graph dead-letter cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`WITH candidates AS (
		    SELECT id, run_id, edge_type, from_label, from_id, to_label, to_id, attempts, last_error, created_at, locked_until
		    FROM graph_outbox
		    WHERE attempts >= $1
		      AND (locked_until IS NULL OR locked_until < now())
		      AND created_at < now() - interval '7 days'
		    FOR UPDATE SKIP LOCKED
		)
		INSERT INTO graph_outbox_dead_letters (
		    outbox_id, run_id, edge_type, from_label, from_id, to_label, to_id, attempts, last_error, created_at, locked_until
		)
		SELECT id, run_id, edge_type, from_label, from_id, to_label, to_id, attempts, last_error, created_at, locked_until
		FROM candidates
		ON CONFLICT (outbox_id) DO NOTHING`,
		maxGraphOutboxAttempts,
	); err != nil {
		return 0, fmt.Errorf("storage: archive graph dead-letters: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM graph_outbox g
		 WHERE g.attempts >= $1
		   AND (g.locked_until IS NULL OR g.locked_until < now())
		   AND g.created_at < now() - interval '7 days'
		   AND EXISTS (SELECT 1 FROM graph_outbox_dead_letters d WHERE d.outbox_id = g.id)`,
		maxGraphOutboxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: delete archived graph dead-letters: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("storage: commit graph dead-letter cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EdgesTo returns every edge pointing at the given node, ordered by edge
// type then from_id. Used for orphan detection (§4.4 invariant: every
// Assertion's why[] memories must exist as a USED_IN edge) and relationship
// queries.
func (db *DB) EdgesTo(ctx context.Context, runID string, toLabel model.GraphNodeLabel, toID string) ([]model.GraphEdge, error) {
	return db.queryEdges(ctx,
		`SELECT run_id, edge_type, from_label, from_id, to_label, to_id, properties, created_at
		 FROM graph_edges WHERE run_id = $1 AND to_label = $2 AND to_id = $3
		 ORDER BY edge_type ASC, from_id ASC`,
		runID, string(toLabel), toID,
	)
}

// EdgesFrom returns every edge originating at the given node.
func (db *DB) EdgesFrom(ctx context.Context, runID string, fromLabel model.GraphNodeLabel, fromID string) ([]model.GraphEdge, error) {
	return db.queryEdges(ctx,
		`SELECT run_id, edge_type, from_label, from_id, to_label, to_id, properties, created_at
		 FROM graph_edges WHERE run_id = $1 AND from_label = $2 AND from_id = $3
		 ORDER BY edge_type ASC, to_id ASC`,
		runID, string(fromLabel), fromID,
	)
}

func (db *DB) queryEdges(ctx context.Context, query string, args ...any) ([]model.GraphEdge, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query graph edges: %w", err)
	}
	defer rows.Close()

	var out []model.GraphEdge
	for rows.Next() {
		var e model.GraphEdge
		var propsJSON []byte
		if err := rows.Scan(&e.RunID, &e.Type, &e.FromLabel, &e.FromID, &e.ToLabel, &e.ToID, &propsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan graph edge: %w", err)
		}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return nil, fmt.Errorf("storage: unmarshal edge properties: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
