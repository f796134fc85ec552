package model

import "time"

// Assertion is a single typed prediction for one category within a bundle
// (§3 Assertion, GLOSSARY).
type Assertion struct {
	CategoryID string   `json:"category_id"`
	Value      any       `json:"value"` // typed per the category's PredType
	Confidence float64  `json:"confidence"`
	Stake      float64  `json:"stake"`
	Why        []string `json:"why,omitempty"` // memory_ids referenced
	Rationale  string   `json:"rationale,omitempty"`
}

// ContextPack is the immutable, per-(run_id, expert_id, game_id) read-only
// input handed to Bundle Gen (§3, §4.5).
type ContextPack struct {
	RunID    string
	ExpertID string
	GameID   string

	Memories     []RankedMemory
	CtxK         int  // effective K actually returned, at most 20 (below 10 only when Degraded)
	Degraded     bool // true if fewer than 10 candidates were available even after relaxation
	KReductions  int  // count of filter relaxations applied

	CategoryRegistry *CategoryRegistry
	Persona          string
	Guardrails       Guardrails
	Policy           BundlePolicy

	LiveBriefs []string // up to 8, short-TTL cache, not system of record

	BuiltAt time.Time
}

// Guardrails carries the per-expert operational limits attached to a Context Pack.
type Guardrails struct {
	StakeCap    float64
	ToolBudget  ToolBudget
	RiskProfile string
}

// BundlePolicy carries the orchestrator's generation policy for this context pack.
type BundlePolicy struct {
	Mode           BundleMode
	DraftModel     string
	CriticModel    string
	RepairMaxIters int
}

// PredictionBundle is the complete set of 83 assertions an expert produces
// for a game (§3 PredictionBundle, GLOSSARY).
type PredictionBundle struct {
	RunID    string `json:"run_id"`
	GameID   string `json:"game_id"`
	ExpertID string `json:"expert_id"`

	Overall    string               `json:"overall"`
	Assertions map[string]Assertion `json:"assertions"` // keyed by category_id, exactly 83 entries

	SchemaValid      bool `json:"schema_valid"`
	Degraded         bool `json:"degraded"`
	RepairIterations int  `json:"repair_iterations"` // 0-2

	LatencyMS int    `json:"latency_ms"`
	Model     string `json:"model"`

	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// NaturalKey is the idempotency key for bundle writes (§4.6, §8): a
// resubmission of the same (run_id, expert_id, game_id) is idempotent.
func (b PredictionBundle) NaturalKey() string {
	return b.RunID + "|" + b.ExpertID + "|" + b.GameID
}

// ShadowAssertion mirrors Assertion but lives in an isolated partition and
// carries forced-false hot-path flags enforced by a storage check constraint
// (§3 ShadowAssertion, §4.9).
type ShadowAssertion struct {
	ShadowRunID  string    `json:"shadow_run_id"`
	MainRunID    string    `json:"main_run_id"`
	GameID       string    `json:"game_id"`
	ExpertID     string    `json:"expert_id"`
	ShadowModel  string    `json:"shadow_model"`
	PrimaryModel string    `json:"primary_model"`
	CategoryID   string    `json:"category_id"`
	Value        any       `json:"value"`
	Confidence   float64   `json:"confidence"`
	Stake        float64   `json:"stake"`
	Why          []string  `json:"why,omitempty"`

	UsedInCouncil     bool `json:"used_in_council"`     // forced false by storage check constraint
	UsedInCoherence   bool `json:"used_in_coherence"`   // forced false
	UsedInSettlement  bool `json:"used_in_settlement"`  // forced false

	CreatedAt time.Time `json:"created_at"`
}

// ShadowTelemetrySummary aggregates comparative metrics for one shadow_run_id (§4.9).
type ShadowTelemetrySummary struct {
	ShadowRunID      string  `json:"shadow_run_id"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	AvgCostUSD       float64 `json:"avg_cost_usd"`
	AgreementWithPrimary float64 `json:"agreement_with_primary"`
	ConfidenceSimilarity float64 `json:"confidence_similarity"`
}
