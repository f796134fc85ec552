package model

import "time"

// ExpertStats holds the rolling-window (W weeks) performance inputs to
// council selection and consensus weighting (§4.7, eq. 3/4). It is computed
// upstream from graded Outcomes and calibration buckets; this package treats
// it as an opaque input so that selection and aggregation remain pure
// functions of stored bundles + rolling stats, as the Council API promises.
type ExpertStats struct {
	ExpertID string

	AccOverall     float64 // share of correct binary/enum assertions over W
	RecentTrend    float64 // slope of weekly accuracy over W, clipped to [-1,1] then rescaled to [0,1]
	Consistency    float64 // 1 - normalised variance of weekly accuracy
	Calibration    float64 // 1 - Brier score on confidence-labelled binaries
	Specialisation float64 // pre-computed relevance-weighted category accuracy for this game

	// CategoryAccuracy maps category_id -> accuracy over W, used for the
	// category_accuracy(e, cat, W) term in the vote-weight formula (eq. 4).
	CategoryAccuracy map[string]float64

	Eligible bool // false if the expert's EligibilityGate excludes it (§3)
}

// SelectionScore computes sel(e) per eq. (3).
func (s ExpertStats) SelectionScore() float64 {
	return 0.35*s.AccOverall + 0.25*s.RecentTrend + 0.20*s.Consistency +
		0.10*s.Calibration + 0.10*s.Specialisation
}

// VoteWeight computes the unnormalised w(e, g) for one category per eq. (4).
// Renormalisation across council members happens in the aggregator, since it
// is per-category and depends on which members actually asserted that
// category.
func (s ExpertStats) VoteWeight(categoryID string) float64 {
	catAcc := s.CategoryAccuracy[categoryID]
	return 0.40*catAcc + 0.30*s.AccOverall + 0.20*s.RecentTrend + 0.10*s.Calibration
}

// Dissent names a council member whose assertion for a category disagreed
// with the winning value, and the weight their vote carried.
type Dissent struct {
	ExpertID string  `json:"expert_id"`
	Value    any     `json:"value"`
	Weight   float64 `json:"weight"`
}

// CategoryConsensus is the aggregated result for one category_id (§4.7).
type CategoryConsensus struct {
	CategoryID    string             `json:"category_id"`
	Value         any                `json:"value"`
	AgreementMass float64            `json:"agreement_mass"` // binary/enum winning mass; 1.0 for numeric/percentage
	Stdev         *float64           `json:"stdev,omitempty"` // numeric/percentage only: weighted stdev
	Confidence    float64            `json:"confidence"`      // mean confidence weighted by w
	Weights       map[string]float64 `json:"weights"`         // expert_id -> renormalised weight
	Dissenters    []Dissent          `json:"dissenters,omitempty"`
	Explanation   string             `json:"explanation"`
}

// ConsensusBundle is the council's aggregated prediction for one game (§4.7,
// §8 POST /council/consensus). InsufficientQuorum is set when every council
// member was ineligible or schema-invalid; consumers must treat such a
// bundle as non-authoritative (ConsensusEmpty, §7).
type ConsensusBundle struct {
	RunID  string `json:"run_id"`
	GameID string `json:"game_id"`

	Categories map[string]CategoryConsensus `json:"categories"`

	ContributingExperts []string `json:"contributing_experts"`
	InsufficientQuorum  bool     `json:"insufficient_quorum"`

	CreatedAt time.Time `json:"created_at"`
}
