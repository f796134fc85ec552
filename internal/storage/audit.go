package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MutationAuditEntry is an append-only audit event for a state change that
// isn't otherwise reconstructable from history: belief-revision weight
// adjustments, calibration bucket updates, and council-membership changes.
// Bundle and outcome writes carry their own content hash and don't need a
// separate audit row; this is for mutations to derived state.
type MutationAuditEntry struct {
	RunID      string
	ExpertID   string
	Operation  string // e.g. "factor_weight_adjust", "council_membership_change"
	BeforeData any
	AfterData  any
	Metadata   map[string]any
}

// pgxExecer is the subset of pgx.Tx / pgxpool.Pool used for INSERT execution.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// insertMutationAudit is the shared implementation for both InsertMutationAudit
// and InsertMutationAuditTx. It marshals JSON fields and executes the INSERT
// against the provided executor (pool or transaction).
func insertMutationAudit(ctx context.Context, exec pgxExecer, e MutationAuditEntry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	var (
		beforeJSON []byte
		afterJSON  []byte
		err        error
	)
	if e.BeforeData != nil {
		beforeJSON, err = json.Marshal(e.BeforeData)
		if err != nil {
			return fmt.Errorf("storage: marshal mutation audit before_data: %w", err)
		}
	}
	if e.AfterData != nil {
		afterJSON, err = json.Marshal(e.AfterData)
		if err != nil {
			return fmt.Errorf("storage: marshal mutation audit after_data: %w", err)
		}
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal mutation audit metadata: %w", err)
	}

	_, err = exec.Exec(ctx,
		`INSERT INTO mutation_audit_log (
		     run_id, expert_id, operation, before_data, after_data, metadata
		 )
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb)`,
		e.RunID, e.ExpertID, e.Operation, beforeJSON, afterJSON, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("storage: insert mutation audit: %w", err)
	}
	return nil
}

// InsertMutationAudit appends a mutation audit event using the connection pool.
// Use InsertMutationAuditTx when the audit must be atomic with a mutation.
func (db *DB) InsertMutationAudit(ctx context.Context, e MutationAuditEntry) error {
	return insertMutationAudit(ctx, db.pool, e)
}

// InsertMutationAuditTx appends a mutation audit event within an existing
// transaction. If the transaction rolls back, the audit entry is also rolled
// back, so mutations never persist without their audit record.
func InsertMutationAuditTx(ctx context.Context, tx pgx.Tx, e MutationAuditEntry) error {
	return insertMutationAudit(ctx, tx, e)
}
