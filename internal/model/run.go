package model

import "time"

// GameStatus is the lifecycle state of a Game.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameLive      GameStatus = "live"
	GameFinal     GameStatus = "final"
)

// MarketLines holds pre-game market data for a Game. External, read-only.
type MarketLines struct {
	Spread    *float64 `json:"spread,omitempty"`
	Total     *float64 `json:"total,omitempty"`
	Moneyline *int     `json:"moneyline,omitempty"`
}

// Weather holds optional pre-game weather data.
type Weather struct {
	TempF     *float64 `json:"temp_f,omitempty"`
	WindMPH   *float64 `json:"wind_mph,omitempty"`
	Precip    *string  `json:"precip,omitempty"`
}

// FinalScore holds the settled result of a Game (§4.8 input).
type FinalScore struct {
	HomeScore int            `json:"home_score"`
	AwayScore int            `json:"away_score"`
	Props     map[string]any `json:"props,omitempty"` // resolved prop values by category_id
}

// Game is the external, read-only input the core treats with a stable schema
// (§3 Game). Ingestion of live feeds is out of scope; the core only consumes
// already-typed Game records via the GameFeed collaborator interface.
type Game struct {
	GameID     string       `json:"game_id"`
	Season     int          `json:"season"`
	Week       int          `json:"week"`
	Date       time.Time    `json:"date"`
	HomeTeam   string       `json:"home_team"`
	AwayTeam   string       `json:"away_team"`
	Venue      string       `json:"venue"`
	Weather    *Weather     `json:"weather,omitempty"`
	Market     MarketLines  `json:"market_lines"`
	Injuries   []string     `json:"injuries,omitempty"`
	Status     GameStatus   `json:"status"`
	Final      *FinalScore  `json:"final,omitempty"`
}

// RunPlaybook is the active policy for a run (§6 configuration): the single
// explicit mapping of recognised options. Unknown options are rejected by
// the caller constructing this struct (no reflection, no implicit fields).
type RunPlaybook struct {
	RunID               string            `json:"run_id"`
	CouncilSize         int               `json:"council_size"`          // N, default 5
	RollingWindowWeeks   int               `json:"rolling_window_weeks"` // W, default 4
	Mode                 BundleMode        `json:"mode"`
	KDesired             int               `json:"k_desired"` // 10-20
	RepairMaxIters       int               `json:"repair_max_iters"`        // default 2
	PerExpertDeadlineMS  int               `json:"per_expert_deadline_ms"`  // default 30000
	ToolBudget           ToolBudget        `json:"tool_budget"`
	ShadowEnabled        bool              `json:"shadow_enabled"`
	ShadowModels         map[string]string `json:"shadow_models,omitempty"` // expert_id -> model
	StakePayoffSchedule  string            `json:"stake_payoff_schedule"`   // policy field, see Open Questions
	ToolCallsOrchestratorMediated bool     `json:"tool_calls_orchestrator_mediated"` // default true, see §9
	EligibilityEvictionAtWeekBoundary bool `json:"eligibility_eviction_at_week_boundary"` // default true, see §9
}

// BundleMode selects the C6 generation mode (§4.6).
type BundleMode string

const (
	ModeOneShot    BundleMode = "one-shot"
	ModeDeliberate BundleMode = "deliberate"
)

// DefaultRunPlaybook returns the documented defaults from §6.
func DefaultRunPlaybook(runID string) RunPlaybook {
	return RunPlaybook{
		RunID:               runID,
		CouncilSize:         5,
		RollingWindowWeeks:  4,
		Mode:                ModeDeliberate,
		KDesired:            12,
		RepairMaxIters:      2,
		PerExpertDeadlineMS: 30000,
		ToolBudget:          ToolBudget{MaxCalls: 10, MaxTimeMS: 2000},
		ShadowEnabled:       false,
		StakePayoffSchedule: "flat-1.0",
		ToolCallsOrchestratorMediated:     true,
		EligibilityEvictionAtWeekBoundary: true,
	}
}
