// Package ctxutil carries per-request scoping values through a context.Context:
// the run that scopes all storage reads/writes, the expert task currently
// executing, and the deadline budget that bounds it. There is no global
// expert state — everything mutable is scoped by (run_id, expert_id) and
// threaded through these values rather than held in package-level state.
package ctxutil

import (
	"context"
	"time"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	expertIDKey
	gameIDKey
	deadlineBudgetKey
)

// WithRunID attaches the active run_id to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run_id attached to ctx, or "" if none.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// WithExpertID attaches the expert currently executing to ctx.
func WithExpertID(ctx context.Context, expertID string) context.Context {
	return context.WithValue(ctx, expertIDKey, expertID)
}

// ExpertID returns the expert_id attached to ctx, or "" if none.
func ExpertID(ctx context.Context) string {
	v, _ := ctx.Value(expertIDKey).(string)
	return v
}

// WithGameID attaches the game currently being processed to ctx.
func WithGameID(ctx context.Context, gameID string) context.Context {
	return context.WithValue(ctx, gameIDKey, gameID)
}

// GameID returns the game_id attached to ctx, or "" if none.
func GameID(ctx context.Context) string {
	v, _ := ctx.Value(gameIDKey).(string)
	return v
}

// Budget is the cumulative time and tool-call allowance for one expert task
// (§5: "each suspension is annotated with a budget"). It is consulted at every
// suspension point; tasks that exceed it are cancelled cooperatively.
type Budget struct {
	Deadline     time.Time
	MaxToolCalls int
	toolCalls    int
}

// WithBudget attaches a tool/time budget to ctx and derives a context that is
// cancelled at the budget's deadline. The returned CancelFunc must be called
// on every exit path to release the timer.
func WithBudget(ctx context.Context, b Budget) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, deadlineBudgetKey, &b)
	return context.WithDeadline(ctx, b.Deadline)
}

// BudgetFromContext returns the budget attached to ctx, if any.
func BudgetFromContext(ctx context.Context) (*Budget, bool) {
	b, ok := ctx.Value(deadlineBudgetKey).(*Budget)
	return b, ok
}

// ErrBudgetExceeded is returned by ConsumeToolCall when the per-expert tool
// call cap (§5: "max 10 tool calls per expert per game") has been reached.
type ErrBudgetExceeded struct{ MaxToolCalls int }

func (e *ErrBudgetExceeded) Error() string {
	return "ctxutil: tool call budget exceeded"
}

// ConsumeToolCall records one tool invocation against the budget attached to
// ctx, returning ErrBudgetExceeded once MaxToolCalls is reached. A context
// with no attached budget imposes no limit.
func ConsumeToolCall(ctx context.Context) error {
	b, ok := BudgetFromContext(ctx)
	if !ok || b.MaxToolCalls <= 0 {
		return nil
	}
	b.toolCalls++
	if b.toolCalls > b.MaxToolCalls {
		return &ErrBudgetExceeded{MaxToolCalls: b.MaxToolCalls}
	}
	return nil
}
