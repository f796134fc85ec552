package model

import "fmt"

// Kind is the error taxonomy for the engine: a small closed set of failure
// categories rather than a type per package. Callers switch on Kind to decide
// propagation policy (contain vs. abort vs. retry).
type Kind string

const (
	// KindConfigInvalid: expert or run config fails validation. Fatal to the run.
	KindConfigInvalid Kind = "config_invalid"
	// KindUnknownExpert: reference to a missing expert_id.
	KindUnknownExpert Kind = "unknown_expert"
	// KindUnknownCategory: reference to a missing category_id.
	KindUnknownCategory Kind = "unknown_category"
	// KindRetrievalDegraded: K < 10 after filter relaxation. Non-fatal.
	KindRetrievalDegraded Kind = "retrieval_degraded"
	// KindSchemaViolation: bundle fails validation after repairs.
	KindSchemaViolation Kind = "schema_violation"
	// KindToolBudgetExceeded: per-expert tool call cap hit.
	KindToolBudgetExceeded Kind = "tool_budget_exceeded"
	// KindTimeout: per-expert or per-operation deadline exceeded.
	KindTimeout Kind = "timeout"
	// KindConsensusEmpty: all council members ineligible or invalid.
	KindConsensusEmpty Kind = "consensus_empty"
	// KindOutcomeDuplicate: re-submission of an already-settled (run_id, game_id).
	KindOutcomeDuplicate Kind = "outcome_duplicate"
	// KindShadowIsolationViolation: an attempt to read shadow data into the hot path.
	KindShadowIsolationViolation Kind = "shadow_isolation_violation"
	// KindTransportFailure: an external dependency was unreachable.
	KindTransportFailure Kind = "transport_failure"
)

// CoreError is the engine's single error type: a Kind, the component that
// raised it, and the wrapped cause. Components never define their own
// sentinel error types for the §7 taxonomy — they construct a CoreError.
type CoreError struct {
	Kind      Kind
	Component string
	Field     string // first offending field, for ConfigInvalid
	Cause     error
}

func (e *CoreError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Field, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// Is reports whether target is a *CoreError with the same Kind, so callers
// can use errors.Is(err, &model.CoreError{Kind: model.KindUnknownExpert}).
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return true
	}
	return e.Kind == t.Kind
}

// NewError constructs a CoreError.
func NewError(kind Kind, component string, cause error) *CoreError {
	return &CoreError{Kind: kind, Component: component, Cause: cause}
}

// NewFieldError constructs a ConfigInvalid-style CoreError naming the first offending field.
func NewFieldError(kind Kind, component, field string, cause error) *CoreError {
	return &CoreError{Kind: kind, Component: component, Field: field, Cause: cause}
}
