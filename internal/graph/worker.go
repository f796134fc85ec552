package graph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/council/internal/storage"
)

// OutboxWorker polls graph_outbox and materializes queued edges into
// graph_edges, keeping the provenance mirror eventually consistent with the
// primary store. Structure mirrors internal/search.OutboxWorker: a single
// poll loop, a batch claim under SELECT ... FOR UPDATE SKIP LOCKED, and
// periodic dead-letter archival for entries that exhaust their attempts.
type OutboxWorker struct {
	db           *storage.DB
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	started     atomic.Bool
	cancelLoop  context.CancelFunc
	done        chan struct{}
	once        sync.Once
	drainOnce   sync.Once
	lastCleanup time.Time
	drainCh     chan context.Context
}

// NewOutboxWorker creates a graph outbox worker.
func NewOutboxWorker(db *storage.DB, logger *slog.Logger, pollInterval time.Duration, batchSize int) *OutboxWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		db:           db,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
		drainCh:      make(chan context.Context, 1),
	}
}

// Start begins the background poll loop. Safe to call only once.
func (w *OutboxWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("graph outbox: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.pollLoop(loopCtx)
}

// Drain stops the poll loop, processes remaining entries, and blocks until
// done or ctx expires. Safe to call multiple times.
func (w *OutboxWorker) Drain(ctx context.Context) {
	w.drainOnce.Do(func() {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		select {
		case w.drainCh <- ctx:
		case <-sendCtx.Done():
			w.logger.Warn("graph outbox: drain context channel busy, final poll will use fallback timeout")
		}
		sendCancel()
		if w.cancelLoop != nil {
			w.cancelLoop()
		}
	})
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("graph outbox: drain timed out")
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

func (w *OutboxWorker) processBatch(ctx context.Context) {
	entries, err := w.db.ClaimGraphOutboxBatch(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("graph outbox: claim batch", "error", err)
		return
	}
	if len(entries) == 0 {
		w.maybeCleanup(ctx)
		return
	}

	var done, failed []int64
	for _, e := range entries {
		if err := w.db.InsertGraphEdge(ctx, e.Edge); err != nil {
			w.logger.Error("graph outbox: insert edge", "error", err, "edge_type", e.Edge.Type)
			failed = append(failed, e.ID)
			continue
		}
		done = append(done, e.ID)
	}

	if len(done) > 0 {
		if err := w.db.MarkGraphOutboxDone(ctx, done); err != nil {
			w.logger.Error("graph outbox: mark done", "error", err)
		}
	}
	if len(failed) > 0 {
		if err := w.db.MarkGraphOutboxFailed(ctx, failed, "insert failed"); err != nil {
			w.logger.Error("graph outbox: mark failed", "error", err)
		}
	}

	w.maybeCleanup(ctx)
}

func (w *OutboxWorker) maybeCleanup(ctx context.Context) {
	if time.Since(w.lastCleanup) <= time.Hour {
		return
	}
	archived, err := w.db.CleanupGraphDeadLetters(ctx)
	if err != nil {
		w.logger.Error("graph outbox: dead-letter cleanup", "error", err)
		return
	}
	w.lastCleanup = time.Now()
	if archived > 0 {
		w.logger.Info("graph outbox: archived dead-letter entries", "count", archived)
	}
}
