package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/council/internal/telemetry"
)

// outboxEntry represents a single row from the search_outbox table.
type outboxEntry struct {
	ID        int64
	MemoryID  uuid.UUID
	RunID     string
	Operation string
	Attempts  int
}

// MemoryForIndex holds the fields needed to build a Qdrant point. Populated
// by the outbox worker from Postgres.
type MemoryForIndex struct {
	MemoryID   uuid.UUID
	RunID      string
	ExpertID   string
	GameID     string
	HomeTeam   string
	AwayTeam   string
	MemoryType string
	CreatedAt  time.Time
	Embedding  []float32
}

// OutboxWorker polls the search_outbox table and syncs episodic memory
// changes to Qdrant, keeping the ANN index eventually consistent with
// Postgres without requiring callers to write to both stores transactionally.
type OutboxWorker struct {
	pool         *pgxpool.Pool
	index        *QdrantIndex
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	started     atomic.Bool
	cancelLoop  context.CancelFunc
	done        chan struct{}
	once        sync.Once // guards close(done)
	drainOnce   sync.Once // guards Drain to prevent double-drain panics
	lastCleanup time.Time
	drainCh     chan context.Context // carries the drain context to pollLoop for the final poll
}

// NewOutboxWorker creates a new outbox worker.
func NewOutboxWorker(pool *pgxpool.Pool, index *QdrantIndex, logger *slog.Logger, pollInterval time.Duration, batchSize int) *OutboxWorker {
	return &OutboxWorker{
		pool:         pool,
		index:        index,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
		drainCh:      make(chan context.Context, 1),
	}
}

// Start begins the background poll loop. It is safe to call only once;
// subsequent calls are no-ops and log a warning.
func (w *OutboxWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("search outbox: Start called more than once, ignoring")
		return
	}
	w.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.pollLoop(loopCtx)
}

// Drain signals the poll loop to stop, processes remaining entries, and blocks
// until done or the context expires. The ctx parameter is passed to the final
// poll so it respects the caller's deadline. Safe to call multiple times;
// only the first call triggers the drain.
func (w *OutboxWorker) Drain(ctx context.Context) {
	w.drainOnce.Do(func() {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		select {
		case w.drainCh <- ctx:
		case <-sendCtx.Done():
			w.logger.Warn("search outbox: drain context channel busy, final poll will use fallback timeout")
		}
		sendCancel()
		if w.cancelLoop != nil {
			w.cancelLoop()
		}
	})
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("search outbox: drain timed out")
	}
}

func (w *OutboxWorker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			var drainCtx context.Context
			select {
			case drainCtx = <-w.drainCh:
			default:
			}
			if drainCtx != nil {
				w.processBatch(drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				w.processBatch(fallbackCtx)
				cancel()
			}
			w.once.Do(func() { close(w.done) })
			return
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			w.processBatch(batchCtx)
			cancel()
		}
	}
}

// maxOutboxAttempts must match the partial index predicate in migration
// 001_initial.sql (WHERE attempts < 10). Changing this value requires a new migration.
const maxOutboxAttempts = 10

func (w *OutboxWorker) processBatch(ctx context.Context) {
	if w.pool == nil {
		w.logger.Warn("search outbox: skipping batch, pool is nil")
		return
	}
	if w.index == nil {
		w.logger.Warn("search outbox: skipping batch, index is nil")
		return
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.logger.Error("search outbox: begin tx", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, memory_id, run_id, operation, attempts
		 FROM search_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxOutboxAttempts, w.batchSize,
	)
	if err != nil {
		w.logger.Error("search outbox: select pending", "error", err)
		return
	}

	entries, err := scanOutboxEntries(rows)
	if err != nil {
		w.logger.Error("search outbox: scan entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	// Lock the entries for 60 seconds (must exceed the 30s batchCtx timeout
	// to prevent a second worker from picking up entries whose lock expired
	// while the first worker is still processing).
	entryIDs := make([]int64, len(entries))
	for i, e := range entries {
		entryIDs[i] = e.ID
	}
	if _, err := tx.Exec(ctx,
		`UPDATE search_outbox SET locked_until = now() + interval '60 seconds' WHERE id = ANY($1)`,
		entryIDs,
	); err != nil {
		w.logger.Error("search outbox: lock entries", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		w.logger.Error("search outbox: commit lock", "error", err)
		return
	}

	var upserts []outboxEntry
	var deletes []outboxEntry
	for _, e := range entries {
		switch e.Operation {
		case "upsert":
			upserts = append(upserts, e)
		case "delete":
			deletes = append(deletes, e)
		}
	}

	if len(upserts) > 0 {
		w.processUpserts(ctx, upserts)
	}
	if len(deletes) > 0 {
		w.processDeletes(ctx, deletes)
	}

	if time.Since(w.lastCleanup) > time.Hour {
		w.cleanupDeadLetters(ctx)
		w.lastCleanup = time.Now()
	}
}

func (w *OutboxWorker) cleanupDeadLetters(ctx context.Context) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.logger.Error("search outbox: begin dead-letter cleanup tx failed", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`WITH candidates AS (
		    SELECT id, memory_id, run_id, operation, attempts, last_error, created_at, locked_until
		    FROM search_outbox
		    WHERE attempts >= $1
		      AND (locked_until IS NULL OR locked_until < now())
		      AND created_at < now() - interval '7 days'
		    FOR UPDATE SKIP LOCKED
		)
		INSERT INTO search_outbox_dead_letters (
		    outbox_id, memory_id, run_id, operation, attempts, last_error, created_at, locked_until
		)
		SELECT id, memory_id, run_id, operation, attempts, last_error, created_at, locked_until
		FROM candidates
		ON CONFLICT (outbox_id) DO NOTHING`,
		maxOutboxAttempts,
	); err != nil {
		w.logger.Error("search outbox: archive dead-letters failed", "error", err)
		return
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM search_outbox s
		 WHERE s.attempts >= $1
		   AND (s.locked_until IS NULL OR s.locked_until < now())
		   AND s.created_at < now() - interval '7 days'
		   AND EXISTS (
		     SELECT 1
		     FROM search_outbox_dead_letters d
		     WHERE d.outbox_id = s.id
		   )`,
		maxOutboxAttempts,
	)
	if err != nil {
		w.logger.Error("search outbox: delete archived dead-letters failed", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		w.logger.Error("search outbox: commit dead-letter cleanup failed", "error", err)
		return
	}

	if tag.RowsAffected() > 0 {
		w.logger.Info("search outbox: archived and cleaned dead-letter entries", "deleted", tag.RowsAffected())
	}
}

func (w *OutboxWorker) processUpserts(ctx context.Context, entries []outboxEntry) {
	memoryIDs := make([]uuid.UUID, len(entries))
	runIDs := make([]string, len(entries))
	for i, e := range entries {
		memoryIDs[i] = e.MemoryID
		runIDs[i] = e.RunID
	}

	memories, err := w.fetchMemoriesForIndex(ctx, memoryIDs, runIDs)
	if err != nil {
		w.logger.Error("search outbox: fetch memories", "error", err, "count", len(memoryIDs))
		w.failEntries(ctx, entries, err.Error())
		return
	}

	readyEntries, readyMemories, pendingEntries := partitionUpsertEntries(entries, memories)

	if len(readyEntries) > 0 {
		points := make([]MemoryPoint, 0, len(readyMemories))
		for _, m := range readyMemories {
			points = append(points, MemoryPoint{
				MemoryID:   m.MemoryID,
				RunID:      m.RunID,
				ExpertID:   m.ExpertID,
				GameID:     m.GameID,
				HomeTeam:   m.HomeTeam,
				AwayTeam:   m.AwayTeam,
				MemoryType: m.MemoryType,
				CreatedAt:  m.CreatedAt,
				Embedding:  m.Embedding,
			})
		}

		if err := w.index.Upsert(ctx, points); err != nil {
			w.logger.Error("search outbox: qdrant upsert", "error", err, "count", len(points))
			w.failEntries(ctx, readyEntries, err.Error())
		} else {
			w.succeedEntries(ctx, readyEntries)
			w.logger.Info("search outbox: upserted", "count", len(points))
		}
	}

	if len(pendingEntries) > 0 {
		// Entries with no combined embedding yet (or whose memory row is not
		// visible yet). Defer with incrementing attempts so we eventually
		// dead-letter if the embedding is never backfilled.
		var toDefer, toFail []outboxEntry
		for _, e := range pendingEntries {
			if e.Attempts >= maxOutboxAttempts-1 {
				toFail = append(toFail, e)
			} else {
				toDefer = append(toDefer, e)
			}
		}
		if len(toFail) > 0 {
			w.failEntries(ctx, toFail, "memory not ready after max defer cycles (missing embedding or not found)")
		}
		if len(toDefer) > 0 {
			w.deferPendingEntries(ctx, toDefer, "memory not ready for indexing (missing embedding or not found)")
		}
	}
}

func (w *OutboxWorker) processDeletes(ctx context.Context, entries []outboxEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.MemoryID
	}

	if err := w.index.DeleteByIDs(ctx, ids); err != nil {
		w.logger.Error("search outbox: qdrant delete", "error", err, "count", len(ids))
		w.failEntries(ctx, entries, err.Error())
		return
	}

	w.succeedEntries(ctx, entries)
	w.logger.Info("search outbox: deleted", "count", len(ids))
}

func (w *OutboxWorker) succeedEntries(ctx context.Context, entries []outboxEntry) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if _, err := w.pool.Exec(ctx,
		`DELETE FROM search_outbox WHERE id = ANY($1)`, ids,
	); err != nil {
		w.logger.Error("search outbox: delete completed entries", "error", err)
	}
}

// deferPendingEntries defers entries, incrementing attempts and using a 30-minute
// backoff. Entries that exceed maxOutboxAttempts are routed to failEntries instead.
func (w *OutboxWorker) deferPendingEntries(ctx context.Context, entries []outboxEntry, errMsg string) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if _, err := w.pool.Exec(ctx,
		`UPDATE search_outbox
		 SET attempts = attempts + 1,
		     last_error = $1,
		     locked_until = now() + interval '30 minutes'
		 WHERE id = ANY($2)`,
		errMsg, ids,
	); err != nil {
		w.logger.Error("search outbox: defer pending entries", "error", err)
	}
}

func (w *OutboxWorker) failEntries(ctx context.Context, entries []outboxEntry, errMsg string) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	// Exponential backoff: locked_until = now() + 2^(attempts+1) seconds (capped at 5 minutes),
	// where attempts is the count before this failure is added.
	if _, err := w.pool.Exec(ctx,
		`UPDATE search_outbox
		 SET attempts = attempts + 1,
		     last_error = $1,
		     locked_until = now() + LEAST(POWER(2, attempts + 1), 300) * interval '1 second'
		 WHERE id = ANY($2)`,
		errMsg, ids,
	); err != nil {
		w.logger.Error("search outbox: update failed entries", "error", err)
	}

	for _, e := range entries {
		if e.Attempts+1 >= maxOutboxAttempts {
			w.logger.Warn("search outbox: dead-letter entry",
				"outbox_id", e.ID,
				"memory_id", e.MemoryID,
				"operation", e.Operation,
				"attempts", e.Attempts+1,
			)
		}
	}
}

func (w *OutboxWorker) fetchMemoriesForIndex(ctx context.Context, ids []uuid.UUID, runIDs []string) ([]MemoryForIndex, error) {
	if len(ids) == 0 || len(runIDs) == 0 || len(ids) != len(runIDs) {
		return nil, nil
	}

	rows, err := w.pool.Query(ctx,
		`SELECT m.memory_id, m.run_id, m.expert_id, m.game_id, m.home_team, m.away_team, m.type,
		        m.created_at, m.combined_embedding
		 FROM episodic_memories m
		 JOIN unnest($1::uuid[], $2::text[]) AS pair(mid, rid)
		   ON m.memory_id = pair.mid AND m.run_id = pair.rid
		 WHERE m.combined_embedding IS NOT NULL`,
		ids, runIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("search outbox: query memories: %w", err)
	}
	defer rows.Close()

	var results []MemoryForIndex
	for rows.Next() {
		var m MemoryForIndex
		var emb pgvector.Vector
		if err := rows.Scan(
			&m.MemoryID, &m.RunID, &m.ExpertID, &m.GameID, &m.HomeTeam, &m.AwayTeam, &m.MemoryType,
			&m.CreatedAt, &emb,
		); err != nil {
			return nil, fmt.Errorf("search outbox: scan memory: %w", err)
		}
		m.Embedding = emb.Slice()
		results = append(results, m)
	}
	return results, rows.Err()
}

// registerMetrics registers observable OTEL gauges for outbox health monitoring.
func (w *OutboxWorker) registerMetrics() {
	meter := telemetry.Meter("council/outbox")

	_, _ = meter.Int64ObservableGauge("council.outbox.depth",
		metric.WithDescription("Estimated pending entries in the search outbox (via pg_class.reltuples)"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			// Use pg_class.reltuples for an O(1) estimate instead of SELECT COUNT(*),
			// which requires a full table scan and becomes expensive under sustained
			// Qdrant outages when the outbox table grows.
			var estimate float64
			err := w.pool.QueryRow(ctx,
				`SELECT reltuples FROM pg_class WHERE relname = 'search_outbox'`,
			).Scan(&estimate)
			if err != nil {
				return nil // Non-fatal: just skip this observation.
			}
			if estimate < 0 {
				estimate = 0
			}
			o.Observe(int64(estimate))
			return nil
		}),
	)
}

func scanOutboxEntries(rows pgx.Rows) ([]outboxEntry, error) {
	defer rows.Close()
	var entries []outboxEntry
	for rows.Next() {
		var e outboxEntry
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.RunID, &e.Operation, &e.Attempts); err != nil {
			return nil, fmt.Errorf("search outbox: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// partitionUpsertEntries splits outbox entries by whether the backing memory row
// is ready for indexing. Returns:
//   - readyEntries: outbox rows that have a matching memory with an embedding
//   - readyMemories: memories in the same order as readyEntries
//   - pendingEntries: outbox rows with no matching memory (yet)
func partitionUpsertEntries(entries []outboxEntry, memories []MemoryForIndex) ([]outboxEntry, []MemoryForIndex, []outboxEntry) {
	byID := make(map[uuid.UUID]MemoryForIndex, len(memories))
	for _, m := range memories {
		byID[m.MemoryID] = m
	}

	readyEntries := make([]outboxEntry, 0, len(entries))
	readyMemories := make([]MemoryForIndex, 0, len(entries))
	pendingEntries := make([]outboxEntry, 0)
	for _, e := range entries {
		m, ok := byID[e.MemoryID]
		if !ok {
			pendingEntries = append(pendingEntries, e)
			continue
		}
		readyEntries = append(readyEntries, e)
		readyMemories = append(readyMemories, m)
	}
	return readyEntries, readyMemories, pendingEntries
}
